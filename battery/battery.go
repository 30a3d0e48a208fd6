// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package battery

import (
	"fmt"

	"github.com/linuxdeepin/go-lib/log"
)

var logger = log.NewLogger("desk/battery")

func SetLogLevel(level log.Priority) {
	logger.SetLogLevel(level)
}

// DefaultLowThreshold is the percentage under which a discharging battery is
// low whatever its reported level.
const DefaultLowThreshold = 20.0

// State is the UPower Device.State property.
type State uint32

const (
	StateUnknown State = iota
	StateCharging
	StateDischarging
	StateEmpty
	StateFullyCharged
	StatePendingCharge
	StatePendingDischarge
)

var stateNames = [...]string{
	StateUnknown:          "Unknown",
	StateCharging:         "Charging",
	StateDischarging:      "Discharging",
	StateEmpty:            "Empty",
	StateFullyCharged:     "FullyCharged",
	StatePendingCharge:    "PendingCharge",
	StatePendingDischarge: "PendingDischarge",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint32(s))
}

// Level is the UPower Device.BatteryLevel property.
type Level uint32

const (
	LevelUnknown Level = iota
	LevelNone
	LevelLow
	LevelCritical
	LevelNormal
	LevelHigh
	LevelFull
)

var levelNames = [...]string{
	LevelUnknown:  "Unknown",
	LevelNone:     "None",
	LevelLow:      "Low",
	LevelCritical: "Critical",
	LevelNormal:   "Normal",
	LevelHigh:     "High",
	LevelFull:     "Full",
}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", uint32(l))
}

// DeviceType is the UPower Device.Type property. Only batteries are watched.
type DeviceType uint32

const (
	TypeUnknown DeviceType = iota
	TypeLinePower
	TypeBattery
	TypeUPS
	TypeMonitor
	TypeMouse
	TypeKeyboard
)

func (t DeviceType) String() string {
	switch t {
	case TypeLinePower:
		return "line-power"
	case TypeBattery:
		return "battery"
	case TypeUPS:
		return "ups"
	case TypeMonitor:
		return "monitor"
	case TypeMouse:
		return "mouse"
	case TypeKeyboard:
		return "keyboard"
	case TypeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("type-%d", uint32(t))
	}
}

// UPower property names.
const (
	PropState        = "State"
	PropBatteryLevel = "BatteryLevel"
	PropPercentage   = "Percentage"
	PropType         = "Type"
)

type Snapshot struct {
	Percentage float64
	Level      Level
	State      State
}

func (s Snapshot) String() string {
	return fmt.Sprintf("percentage=%.1f level=%s state=%s", s.Percentage, s.Level, s.State)
}

// IsLow reports whether s is a discharging battery that is either reported
// low by UPower or under threshold percent.
func (s Snapshot) IsLow(threshold float64) bool {
	return s.State == StateDischarging &&
		(s.Level == LevelLow || s.Percentage < threshold)
}
