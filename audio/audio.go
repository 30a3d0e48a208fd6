// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package audio

import (
	"fmt"
	"math"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/negrel/desk/registry"
)

var logger = log.NewLogger("desk/audio")

func SetLogLevel(level log.Priority) {
	logger.SetLogLevel(level)
}

const (
	MediaClassSink   = "Audio/Sink"
	MediaClassSource = "Audio/Source"
)

// KindFromMediaClass maps a PipeWire media.class onto a tracked kind.
func KindFromMediaClass(class string) registry.Kind {
	switch class {
	case MediaClassSink:
		return registry.KindAudioSink
	case MediaClassSource:
		return registry.KindAudioSource
	}
	return registry.KindUnknown
}

type Snapshot struct {
	Name             string
	Description      string
	VolumePercentage float64
	Muted            bool
}

func (s Snapshot) String() string {
	muted := ""
	if s.Muted {
		muted = " (muted)"
	}
	return fmt.Sprintf("%s: volume %.0f%%%s", s.Name, s.VolumePercentage, muted)
}

// Params is the subset of a node's Props parameter we care about. A nil
// field was absent from the parameter.
type Params struct {
	ChannelVolumes []float64
	Mute           *bool
}

func (p Params) Empty() bool {
	return len(p.ChannelVolumes) == 0 && p.Mute == nil
}

// VolumePercentage averages the per channel linear gains after mapping each
// one on a cubic loudness curve.
func VolumePercentage(gains []float64) float64 {
	if len(gains) == 0 {
		return 0
	}
	var sum float64
	for _, g := range gains {
		sum += math.Cbrt(g) * 100
	}
	return sum / float64(len(gains))
}

// ObjectPath returns the path a device is exported at on the bus.
func ObjectPath(base dbus.ObjectPath, name string) dbus.ObjectPath {
	return dbus.ObjectPath(string(base) + "/devices/" + sanitize(name))
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == '/':
			return r
		}
		return '_'
	}, name)
}
