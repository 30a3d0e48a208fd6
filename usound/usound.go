// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package usound

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/negrel/desk/audio"
	"github.com/negrel/desk/pipewire"
	"github.com/negrel/desk/registry"
	"github.com/negrel/desk/tracker"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("desk/usound")

func SetLogLevel(level log.Priority) {
	logger.SetLogLevel(level)
}

// Watcher subscribes to the changes of one registry object.
type Watcher interface {
	Watch(h registry.Handle) (tracker.Releaser, error)
}

type Daemon struct {
	manager *Manager
	watcher Watcher
	store   *tracker.Store[audio.Snapshot]
	devices map[registry.Handle]*Device
	owners  map[dbus.ObjectPath]registry.Handle
}

func NewDaemon(service Service, watcher Watcher) *Daemon {
	return &Daemon{
		manager: newManager(service),
		watcher: watcher,
		store:   tracker.NewStore[audio.Snapshot](),
		devices: make(map[registry.Handle]*Device),
		owners:  make(map[dbus.ObjectPath]registry.Handle),
	}
}

// Start exports the root object and takes the well-known name.
func Start(service *dbusutil.Service, watcher Watcher) (*Daemon, error) {
	d := NewDaemon(service, watcher)
	err := service.Export(dbusPath, d.manager)
	if err != nil {
		return nil, err
	}
	err = service.RequestName(dbusServiceName)
	if err != nil {
		return nil, xerrors.Errorf("request name %s: %w", dbusServiceName, err)
	}
	return d, nil
}

func (d *Daemon) Dispatch(ev registry.Event) error {
	switch ev := ev.(type) {
	case registry.ObjectDiscovered:
		node, ok := ev.Props.(pipewire.Node)
		if !ok {
			return xerrors.Errorf("unexpected props %T for %s", ev.Props, ev.Handle)
		}
		return d.handleDiscovered(ev.Handle, ev.Kind, node)

	case registry.ObjectChanged:
		params, ok := ev.Changes.(audio.Params)
		if !ok {
			return xerrors.Errorf("unexpected changes %T for %s", ev.Changes, ev.Handle)
		}
		d.handleChanged(ev.Handle, params)
		return nil

	case registry.ObjectRemoved:
		return d.store.Remove(ev.Handle)

	default:
		return xerrors.Errorf("unexpected event %T", ev)
	}
}

func (d *Daemon) handleDiscovered(h registry.Handle, kind registry.Kind, node pipewire.Node) error {
	fetch := func(registry.Handle) (audio.Snapshot, error) {
		return audio.Snapshot{Name: node.Name, Description: node.Description}, nil
	}
	subscribe := func(obj *tracker.Object[audio.Snapshot]) (tracker.Releaser, error) {
		return d.watcher.Watch(obj.Handle)
	}

	obj, created, err := d.store.Upsert(h, kind, fetch, subscribe)
	if err != nil {
		return err
	}
	if !created {
		logger.Debug("already tracking", obj)
		return nil
	}
	logger.Infof("new %s %s (%s)", kind, node.Name, node.Description)

	path := audio.ObjectPath(dbusPath, node.Name)
	if owner, ok := d.owners[path]; ok {
		logger.Warningf("%s is not published, %s already owns %s", h, owner, path)
	} else {
		dev := newDevice(d.manager.service, path, obj.Snapshot)
		err = d.manager.publish(dev)
		if err != nil {
			logger.Warningf("publish %s: %v", path, err)
		} else {
			d.devices[h] = dev
			d.owners[path] = h
			obj.SetPublication(tracker.OnceReleaser(func() error {
				delete(d.devices, h)
				delete(d.owners, path)
				return d.manager.unpublish(dev)
			}))
		}
	}

	if !node.Params.Empty() {
		d.handleChanged(h, node.Params)
	}
	return nil
}

func (d *Daemon) handleChanged(h registry.Handle, params audio.Params) {
	obj, ok := d.store.Get(h)
	if !ok {
		logger.Debug("ignore change of untracked node", h)
		return
	}

	next, events := audio.Reduce(obj.Snapshot, params)
	d.store.Update(h, next)
	if logger.GetLogLevel() == log.LevelDebug {
		logger.Debug(spew.Sdump(next))
	}

	if dev, ok := d.devices[h]; ok {
		dev.update(next, events)
	}
}

func (d *Daemon) Close() error {
	return d.store.Close()
}
