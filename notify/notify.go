// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package notify

import (
	"github.com/godbus/dbus/v5"
	notifications "github.com/linuxdeepin/go-dbus-factory/session/org.freedesktop.notifications"
	"github.com/linuxdeepin/go-lib/log"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("desk/notify")

func SetLogLevel(level log.Priority) {
	logger.SetLogLevel(level)
}

// Urgency is the "urgency" hint of the desktop notification protocol.
type Urgency byte

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyCritical
)

type Notification struct {
	AppName   string
	Summary   string
	Body      string
	Icon      string
	Urgency   Urgency
	ReplaceID uint32
	// Timeout in milliseconds, 0 never expires, -1 lets the server decide.
	Timeout int32
}

type Notifier interface {
	Notify(n Notification) (uint32, error)
	Close(id uint32) error
}

type notificationsProxy interface {
	Notify(flags dbus.Flags, appName string, replacesId uint32, appIcon string,
		summary string, body string, actions []string, hints map[string]dbus.Variant,
		expireTimeout int32) (uint32, error)
	CloseNotification(flags dbus.Flags, id uint32) error
}

type dbusNotifier struct {
	proxy notificationsProxy
}

// NewDBusNotifier talks to org.freedesktop.Notifications on the given
// session bus connection.
func NewDBusNotifier(sessionBus *dbus.Conn) Notifier {
	return &dbusNotifier{
		proxy: notifications.NewNotifications(sessionBus),
	}
}

func (n *dbusNotifier) Notify(notif Notification) (uint32, error) {
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(notif.Urgency)),
	}
	id, err := n.proxy.Notify(0, notif.AppName, notif.ReplaceID, notif.Icon,
		notif.Summary, notif.Body, nil, hints, notif.Timeout)
	if err != nil {
		return 0, xerrors.Errorf("send notification %q: %w", notif.Summary, err)
	}
	logger.Debugf("notification %d sent (replaces %d)", id, notif.ReplaceID)
	return id, nil
}

func (n *dbusNotifier) Close(id uint32) error {
	err := n.proxy.CloseNotification(0, id)
	if err != nil {
		return xerrors.Errorf("close notification %d: %w", id, err)
	}
	logger.Debugf("notification %d closed", id)
	return nil
}
