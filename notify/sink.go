// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package notify

import (
	"fmt"

	"github.com/negrel/desk/battery"
	"golang.org/x/xerrors"
)

const (
	DefaultAppName = "dev.negrel.desk.powermon"
	DefaultSummary = "Low battery"
	DefaultIcon    = "battery-caution"
)

// NotificationState remembers the low battery notification on screen, if any.
type NotificationState struct {
	ActiveID uint32
}

func (s NotificationState) Active() bool {
	return s.ActiveID != 0
}

type Template struct {
	AppName string
	Summary string
	Icon    string
}

func DefaultTemplate() Template {
	return Template{
		AppName: DefaultAppName,
		Summary: DefaultSummary,
		Icon:    DefaultIcon,
	}
}

// LowBatterySink turns battery transitions into one replaceable
// notification.
type LowBatterySink struct {
	notifier Notifier
	Template Template
	State    NotificationState
}

func NewLowBatterySink(notifier Notifier, tpl Template) *LowBatterySink {
	return &LowBatterySink{
		notifier: notifier,
		Template: tpl,
	}
}

func LowBatteryBody(percentage float64) string {
	return fmt.Sprintf("Please charge now, %.0f%% remaining.", percentage)
}

func (s *LowBatterySink) Dispatch(tr battery.Transition) error {
	switch tr := tr.(type) {
	case battery.LowBatteryEntered:
		logger.Info("low battery, sending notification")
		id, err := s.notifier.Notify(Notification{
			AppName:   s.Template.AppName,
			Summary:   s.Template.Summary,
			Body:      LowBatteryBody(tr.Percentage),
			Icon:      s.Template.Icon,
			Urgency:   UrgencyCritical,
			ReplaceID: s.State.ActiveID,
			Timeout:   0,
		})
		if err != nil {
			return err
		}
		s.State.ActiveID = id

	case battery.LowBatteryCleared:
		if !s.State.Active() {
			return nil
		}
		logger.Info("battery no longer low, closing notification", s.State.ActiveID)
		if err := s.notifier.Close(s.State.ActiveID); err != nil {
			return err
		}
		s.State.ActiveID = 0

	default:
		return xerrors.Errorf("unexpected transition %T", tr)
	}
	return nil
}
