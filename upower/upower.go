// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package upower

import (
	"context"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/negrel/desk/battery"
	"github.com/negrel/desk/registry"
	"github.com/negrel/desk/tracker"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("desk/upower")

func SetLogLevel(level log.Priority) {
	logger.SetLogLevel(level)
}

const (
	dbusServiceName     = "org.freedesktop.UPower"
	dbusPath            = "/org/freedesktop/UPower"
	dbusInterface       = dbusServiceName
	dbusDeviceInterface = dbusInterface + ".Device"

	methodEnumerateDevices = dbusInterface + ".EnumerateDevices"

	propsInterface       = "org.freedesktop.DBus.Properties"
	methodGetAll         = propsInterface + ".GetAll"
	sigPropertiesChanged = "PropertiesChanged"
)

// Client reads UPower devices on the system bus.
type Client struct {
	conn  *dbus.Conn
	obj   dbus.BusObject
	sigCh chan *dbus.Signal
}

// NewClient registers the signal channel right away so that changes matched
// before the loop starts are queued, not lost.
func NewClient(conn *dbus.Conn) *Client {
	c := &Client{
		conn:  conn,
		obj:   conn.Object(dbusServiceName, dbusPath),
		sigCh: make(chan *dbus.Signal, 32),
	}
	conn.Signal(c.sigCh)
	return c
}

func (c *Client) EnumerateDevices() ([]dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	err := c.obj.Call(methodEnumerateDevices, 0).Store(&paths)
	if err != nil {
		return nil, xerrors.Errorf("enumerate devices: %w", err)
	}
	return paths, nil
}

func (c *Client) DeviceType(path dbus.ObjectPath) (battery.DeviceType, error) {
	v, err := c.conn.Object(dbusServiceName, path).GetProperty(dbusDeviceInterface + "." + battery.PropType)
	if err != nil {
		return battery.TypeUnknown, xerrors.Errorf("get type of %s: %w", path, err)
	}
	var t uint32
	if err := v.Store(&t); err != nil {
		return battery.TypeUnknown, xerrors.Errorf("read type of %s: %w", path, err)
	}
	return battery.DeviceType(t), nil
}

// Properties returns every property of the device in one round trip.
func (c *Client) Properties(path dbus.ObjectPath) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	err := c.conn.Object(dbusServiceName, path).
		Call(methodGetAll, 0, dbusDeviceInterface).Store(&props)
	if err != nil {
		return nil, xerrors.Errorf("get properties of %s: %w", path, err)
	}
	return props, nil
}

func matchOptions(path dbus.ObjectPath) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchSender(dbusServiceName),
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(propsInterface),
		dbus.WithMatchMember(sigPropertiesChanged),
	}
}

// Watch adds the PropertiesChanged match rule of one device. Releasing the
// result removes it.
func (c *Client) Watch(path dbus.ObjectPath) (tracker.Releaser, error) {
	logger.Debugf("add signal match path: %s, interface: %s, member: %s",
		path, propsInterface, sigPropertiesChanged)
	err := c.conn.AddMatchSignal(matchOptions(path)...)
	if err != nil {
		return nil, xerrors.Errorf("watch %s: %w", path, err)
	}
	return tracker.OnceReleaser(func() error {
		logger.Debug("remove signal match path:", path)
		return c.conn.RemoveMatchSignal(matchOptions(path)...)
	}), nil
}

// Source forwards device property changes to the loop. The system bus going
// away ends the source with an error.
func (c *Client) Source() registry.Source {
	return func(ctx context.Context, post func(registry.Event)) error {
		defer c.conn.RemoveSignal(c.sigCh)
		for {
			select {
			case sig, ok := <-c.sigCh:
				if !ok {
					return xerrors.New("system bus connection closed")
				}
				if ev, ok := decodeSignal(sig); ok {
					post(ev)
				}
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func decodeSignal(sig *dbus.Signal) (registry.ObjectChanged, bool) {
	if sig.Name != propsInterface+"."+sigPropertiesChanged {
		return registry.ObjectChanged{}, false
	}

	var (
		iface       string
		changed     map[string]dbus.Variant
		invalidated []string
	)
	err := dbus.Store(sig.Body, &iface, &changed, &invalidated)
	if err != nil {
		logger.Warning("failed to decode PropertiesChanged of", sig.Path, err)
		return registry.ObjectChanged{}, false
	}
	if iface != dbusDeviceInterface {
		logger.Debug("signal on interface", iface)
		return registry.ObjectChanged{}, false
	}
	return registry.ObjectChanged{
		Handle:  registry.Handle(sig.Path),
		Changes: changed,
	}, true
}
