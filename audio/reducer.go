// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package audio

type Event interface {
	// Property is the name of the exported property the event updates.
	Property() string
	Value() interface{}
}

type VolumeChanged struct {
	Percentage float64
}

type MuteChanged struct {
	Muted bool
}

func (VolumeChanged) Property() string { return "VolumePercentage" }
func (MuteChanged) Property() string   { return "Muted" }

func (ev VolumeChanged) Value() interface{} { return ev.Percentage }
func (ev MuteChanged) Value() interface{}   { return ev.Muted }

// Reduce applies one Props parameter. Each event is emitted only when its
// source field was present, volume first.
func Reduce(old Snapshot, p Params) (Snapshot, []Event) {
	next := old
	var events []Event

	if len(p.ChannelVolumes) > 0 {
		next.VolumePercentage = VolumePercentage(p.ChannelVolumes)
		events = append(events, VolumeChanged{Percentage: next.VolumePercentage})
	} else if p.ChannelVolumes != nil {
		logger.Debug("ignore empty channel volumes of", old.Name)
	}

	if p.Mute != nil {
		next.Muted = *p.Mute
		events = append(events, MuteChanged{Muted: next.Muted})
	}
	return next, events
}
