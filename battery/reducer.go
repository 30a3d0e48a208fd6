// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package battery

import (
	"github.com/godbus/dbus/v5"
	"golang.org/x/xerrors"
)

// Transition is a locally meaningful change of one battery.
type Transition interface {
	transition()
}

// LowBatteryEntered is emitted when a battery becomes low, and again each
// time the percentage of a low battery moves.
type LowBatteryEntered struct {
	Percentage float64
}

type LowBatteryCleared struct{}

func (LowBatteryEntered) transition() {}
func (LowBatteryCleared) transition() {}

type Reducer struct {
	Threshold float64
}

func NewReducer(threshold float64) *Reducer {
	if threshold <= 0 {
		threshold = DefaultLowThreshold
	}
	return &Reducer{Threshold: threshold}
}

// Reduce applies every recognized field of one PropertiesChanged event and
// only then decides what changed.
func (r *Reducer) Reduce(old Snapshot, changes map[string]dbus.Variant) (Snapshot, []Transition) {
	next := apply(old, changes)
	if next == old {
		return next, nil
	}

	wasLow := old.IsLow(r.Threshold)
	isLow := next.IsLow(r.Threshold)

	switch {
	case isLow && (!wasLow || next.Percentage != old.Percentage):
		return next, []Transition{LowBatteryEntered{Percentage: next.Percentage}}
	case wasLow && !isLow:
		return next, []Transition{LowBatteryCleared{}}
	case old.State == StateDischarging && next.State != StateDischarging:
		return next, []Transition{LowBatteryCleared{}}
	}
	return next, nil
}

// Initial evaluates a freshly discovered battery.
func (r *Reducer) Initial(s Snapshot) []Transition {
	if s.IsLow(r.Threshold) {
		return []Transition{LowBatteryEntered{Percentage: s.Percentage}}
	}
	return nil
}

func apply(s Snapshot, changes map[string]dbus.Variant) Snapshot {
	for key, value := range changes {
		switch key {
		case PropState:
			var v uint32
			if err := value.Store(&v); err != nil {
				logger.Debugf("skip %s: %v", key, err)
				continue
			}
			s.State = State(v)
		case PropBatteryLevel:
			var v uint32
			if err := value.Store(&v); err != nil {
				logger.Debugf("skip %s: %v", key, err)
				continue
			}
			s.Level = Level(v)
		case PropPercentage:
			var v float64
			if err := value.Store(&v); err != nil {
				logger.Debugf("skip %s: %v", key, err)
				continue
			}
			s.Percentage = v
		default:
			logger.Debugf("ignore changed property %q", key)
		}
	}
	return s
}

// FromProperties builds the initial snapshot from a Properties.GetAll reply.
// BatteryLevel is optional: older UPower releases do not have it.
func FromProperties(props map[string]dbus.Variant) (Snapshot, error) {
	for _, required := range []string{PropState, PropPercentage} {
		if _, ok := props[required]; !ok {
			return Snapshot{}, xerrors.Errorf("missing property %s", required)
		}
	}
	s := apply(Snapshot{}, props)

	// apply skips values of the wrong type, which would silently leave the
	// zero value in place.
	var (
		state uint32
		pct   float64
	)
	if err := props[PropState].Store(&state); err != nil {
		return Snapshot{}, xerrors.Errorf("property %s: %w", PropState, err)
	}
	if err := props[PropPercentage].Store(&pct); err != nil {
		return Snapshot{}, xerrors.Errorf("property %s: %w", PropPercentage, err)
	}
	return s, nil
}
