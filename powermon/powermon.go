// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package powermon

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/negrel/desk/battery"
	"github.com/negrel/desk/notify"
	"github.com/negrel/desk/registry"
	"github.com/negrel/desk/tracker"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("desk/powermon")

func SetLogLevel(level log.Priority) {
	logger.SetLogLevel(level)
}

// DeviceBus is the part of the UPower client the daemon needs.
type DeviceBus interface {
	EnumerateDevices() ([]dbus.ObjectPath, error)
	DeviceType(path dbus.ObjectPath) (battery.DeviceType, error)
	Properties(path dbus.ObjectPath) (map[string]dbus.Variant, error)
	Watch(path dbus.ObjectPath) (tracker.Releaser, error)
}

type Daemon struct {
	bus     DeviceBus
	store   *tracker.Store[battery.Snapshot]
	reducer *battery.Reducer
	sink    *notify.LowBatterySink
}

func NewDaemon(bus DeviceBus, notifier notify.Notifier, cfg *Config) *Daemon {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Daemon{
		bus:     bus,
		store:   tracker.NewStore[battery.Snapshot](),
		reducer: battery.NewReducer(cfg.LowPercentage),
		sink:    notify.NewLowBatterySink(notifier, cfg.Template()),
	}
}

// Bootstrap tracks the batteries present at startup. Batteries plugged in
// later are not picked up.
func (d *Daemon) Bootstrap() error {
	paths, err := d.bus.EnumerateDevices()
	if err != nil {
		return xerrors.Errorf("enumerate devices: %w", err)
	}

	for _, path := range paths {
		typ, err := d.bus.DeviceType(path)
		if err != nil {
			logger.Warningf("skip device %s: %v", path, err)
			continue
		}
		if typ != battery.TypeBattery {
			logger.Debugf("skip device %s of type %s", path, typ)
			continue
		}

		obj, _, err := d.store.Upsert(registry.Handle(path), registry.KindBattery,
			d.fetch, d.subscribe)
		if err != nil {
			logger.Warning(err)
			continue
		}
		logger.Info("tracking", obj)
		if logger.GetLogLevel() == log.LevelDebug {
			logger.Debug(spew.Sdump(obj.Snapshot))
		}
		d.dispatch(d.reducer.Initial(obj.Snapshot))
	}

	if d.store.Len() == 0 {
		logger.Warning("no battery found")
	}
	return nil
}

func (d *Daemon) fetch(h registry.Handle) (battery.Snapshot, error) {
	props, err := d.bus.Properties(dbus.ObjectPath(h))
	if err != nil {
		return battery.Snapshot{}, err
	}
	return battery.FromProperties(props)
}

func (d *Daemon) subscribe(obj *tracker.Object[battery.Snapshot]) (tracker.Releaser, error) {
	return d.bus.Watch(dbus.ObjectPath(obj.Handle))
}

func (d *Daemon) Dispatch(ev registry.Event) error {
	switch ev := ev.(type) {
	case registry.ObjectChanged:
		return d.handleChanged(ev)

	case registry.ConfigReloaded:
		cfg, ok := ev.Config.(*Config)
		if !ok {
			return xerrors.Errorf("unexpected config %T", ev.Config)
		}
		d.reload(cfg)

	case registry.ObjectDiscovered, registry.ObjectRemoved:
		logger.Debug("ignore", ev)

	default:
		return xerrors.Errorf("unexpected event %T", ev)
	}
	return nil
}

func (d *Daemon) handleChanged(ev registry.ObjectChanged) error {
	obj, ok := d.store.Get(ev.Handle)
	if !ok {
		logger.Debug("ignore change of untracked device", ev.Handle)
		return nil
	}
	changes, ok := ev.Changes.(map[string]dbus.Variant)
	if !ok {
		return xerrors.Errorf("unexpected changes %T for %s", ev.Changes, ev.Handle)
	}

	next, transitions := d.reducer.Reduce(obj.Snapshot, changes)
	if next == obj.Snapshot {
		return nil
	}
	d.store.Update(ev.Handle, next)
	logger.Debugf("%s: %s", ev.Handle, next)
	return d.dispatch(transitions)
}

func (d *Daemon) dispatch(transitions []battery.Transition) error {
	var firstErr error
	for _, tr := range transitions {
		err := d.sink.Dispatch(tr)
		if err != nil {
			logger.Warningf("dispatch %T: %v", tr, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// reload applies a new config. Batteries crossing the new threshold are
// evaluated again.
func (d *Daemon) reload(cfg *Config) {
	logger.Info("reload config")
	if logger.GetLogLevel() == log.LevelDebug {
		logger.Debug(spew.Sdump(cfg))
	}

	old := d.reducer.Threshold
	d.reducer.Threshold = cfg.LowPercentage
	d.sink.Template = cfg.Template()

	var transitions []battery.Transition
	d.store.ForEach(func(obj *tracker.Object[battery.Snapshot]) {
		wasLow := obj.Snapshot.IsLow(old)
		isLow := obj.Snapshot.IsLow(cfg.LowPercentage)
		switch {
		case isLow && !wasLow:
			transitions = append(transitions, battery.LowBatteryEntered{Percentage: obj.Snapshot.Percentage})
		case wasLow && !isLow:
			transitions = append(transitions, battery.LowBatteryCleared{})
		}
	})
	d.dispatch(transitions)
}

func (d *Daemon) Close() error {
	return d.store.Close()
}
