// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package registry

import (
	"fmt"
)

// Handle identifies a remote object for as long as the registry client
// reports it alive.
type Handle string

type Kind uint8

const (
	KindUnknown Kind = iota
	KindBattery
	KindAudioSink
	KindAudioSource
)

func (k Kind) String() string {
	switch k {
	case KindBattery:
		return "battery"
	case KindAudioSink:
		return "audio-sink"
	case KindAudioSource:
		return "audio-source"
	default:
		return "unknown"
	}
}

// Event is one notification delivered by a registry client to the loop.
type Event interface {
	event()
}

type ObjectDiscovered struct {
	Handle Handle
	Kind   Kind
	// Props is the domain specific property snapshot.
	Props interface{}
}

type ObjectChanged struct {
	Handle Handle
	// Changes is the domain specific set of changed values.
	Changes interface{}
}

type ObjectRemoved struct {
	Handle Handle
}

// SourceFailed is posted by the loop itself when a source returns.
type SourceFailed struct {
	Source string
	Err    error
}

// ConfigReloaded carries a configuration that was rewritten on disk.
type ConfigReloaded struct {
	Path   string
	Config interface{}
}

func (ObjectDiscovered) event() {}
func (ObjectChanged) event()    {}
func (ObjectRemoved) event()    {}
func (SourceFailed) event()     {}
func (ConfigReloaded) event()   {}

func (ev ObjectDiscovered) String() string {
	return fmt.Sprintf("<discovered %s %s>", ev.Kind, ev.Handle)
}

func (ev ObjectChanged) String() string {
	return fmt.Sprintf("<changed %s>", ev.Handle)
}

func (ev ObjectRemoved) String() string {
	return fmt.Sprintf("<removed %s>", ev.Handle)
}

func (ev SourceFailed) String() string {
	return fmt.Sprintf("<source %s failed: %v>", ev.Source, ev.Err)
}

func (ev ConfigReloaded) String() string {
	return fmt.Sprintf("<reloaded %s>", ev.Path)
}
