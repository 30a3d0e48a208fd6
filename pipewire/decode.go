// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pipewire

import (
	"strconv"

	"github.com/negrel/desk/audio"
	"github.com/negrel/desk/registry"
)

const (
	typeNode = "PipeWire:Interface:Node"

	keyMediaClass      = "media.class"
	keyNodeName        = "node.name"
	keyNodeDescription = "node.description"
)

// Global is one registry object as printed by pw-dump. A nil Info means the
// global was removed.
type Global struct {
	ID   uint32      `json:"id"`
	Type string      `json:"type"`
	Info *GlobalInfo `json:"info"`
}

type GlobalInfo struct {
	Props  map[string]interface{} `json:"props"`
	Params *GlobalParams          `json:"params"`
}

type GlobalParams struct {
	Props []PropsParam `json:"Props"`
}

// PropsParam is one SPA_PARAM_Props object. The "volume" field is left out
// on purpose: it reports 1.0 whatever the device.
type PropsParam struct {
	Mute           *bool     `json:"mute"`
	ChannelVolumes []float64 `json:"channelVolumes"`
}

// Node is the payload of a discovered audio node.
type Node struct {
	ID          uint32
	Name        string
	Description string
	Params      audio.Params
}

func Handle(id uint32) registry.Handle {
	return registry.Handle(strconv.FormatUint(uint64(id), 10))
}

// Decoder turns pw-dump messages into registry events. It remembers which
// globals were announced so that later updates become change events.
type Decoder struct {
	known map[uint32]registry.Kind
}

func NewDecoder() *Decoder {
	return &Decoder{
		known: make(map[uint32]registry.Kind),
	}
}

func (d *Decoder) Decode(globals []Global) []registry.Event {
	var events []registry.Event
	for _, g := range globals {
		if ev := d.decodeGlobal(g); ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

func (d *Decoder) decodeGlobal(g Global) registry.Event {
	_, known := d.known[g.ID]

	if g.Info == nil {
		if !known {
			return nil
		}
		delete(d.known, g.ID)
		return registry.ObjectRemoved{Handle: Handle(g.ID)}
	}

	if known {
		params, ok := g.Info.props()
		if !ok {
			return nil
		}
		return registry.ObjectChanged{Handle: Handle(g.ID), Changes: params}
	}

	if g.Type != typeNode {
		logger.Debugf("skip global %d of type %s", g.ID, g.Type)
		return nil
	}
	kind := audio.KindFromMediaClass(g.Info.prop(keyMediaClass))
	if kind == registry.KindUnknown {
		logger.Debugf("skip node %d of class %q", g.ID, g.Info.prop(keyMediaClass))
		return nil
	}

	d.known[g.ID] = kind
	params, _ := g.Info.props()
	return registry.ObjectDiscovered{
		Handle: Handle(g.ID),
		Kind:   kind,
		Props: Node{
			ID:          g.ID,
			Name:        g.Info.prop(keyNodeName),
			Description: g.Info.prop(keyNodeDescription),
			Params:      params,
		},
	}
}

func (info *GlobalInfo) prop(key string) string {
	v, ok := info.Props[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// props merges the Props parameters, first value wins.
func (info *GlobalInfo) props() (audio.Params, bool) {
	var p audio.Params
	if info.Params == nil || len(info.Params.Props) == 0 {
		return p, false
	}
	for _, pp := range info.Params.Props {
		if p.ChannelVolumes == nil && pp.ChannelVolumes != nil {
			p.ChannelVolumes = pp.ChannelVolumes
		}
		if p.Mute == nil && pp.Mute != nil {
			p.Mute = pp.Mute
		}
	}
	return p, !p.Empty()
}
