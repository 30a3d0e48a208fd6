// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package usound

import (
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/negrel/desk/audio"
)

const (
	dbusServiceName     = "dev.negrel.desk.USound"
	dbusPath            = "/dev/negrel/desk/USound"
	dbusInterface       = dbusServiceName
	dbusInterfaceDevice = dbusInterface + ".Device"

	Version = "v0.1.0"

	signalDeviceAdded   = "DeviceAdded"
	signalDeviceRemoved = "DeviceRemoved"
)

// Service is the part of dbusutil.Service used to publish objects.
type Service interface {
	Export(path dbus.ObjectPath, ifcs ...dbusutil.Implementer) error
	StopExport(ifc dbusutil.Implementer) error
	Emit(v dbusutil.Implementer, signalName string, values ...interface{}) error
	EmitPropertiesChanged(v dbusutil.Implementer, propValMap map[string]interface{}, invalidatedProps ...string) error
}

// Manager is the root object of the service.
type Manager struct {
	service Service

	PropsMu sync.RWMutex
	Version string

	devicesMu sync.Mutex
	devices   []*Device

	signals *struct {
		DeviceAdded struct {
			path dbus.ObjectPath
		}
		DeviceRemoved struct {
			path dbus.ObjectPath
		}
	}

	methods *struct {
		EnumerateDevices func() `out:"devices"`
	}
}

func newManager(service Service) *Manager {
	return &Manager{
		service: service,
		Version: Version,
	}
}

func (m *Manager) GetInterfaceName() string {
	return dbusInterface
}

// EnumerateDevices lists the published devices, oldest first.
func (m *Manager) EnumerateDevices() ([]dbus.ObjectPath, *dbus.Error) {
	m.devicesMu.Lock()
	defer m.devicesMu.Unlock()

	paths := make([]dbus.ObjectPath, len(m.devices))
	for idx, dev := range m.devices {
		paths[idx] = dev.path
	}
	return paths, nil
}

func (m *Manager) publish(dev *Device) error {
	err := m.service.Export(dev.path, dev)
	if err != nil {
		return err
	}

	m.devicesMu.Lock()
	m.devices = append(m.devices, dev)
	m.devicesMu.Unlock()

	err = m.service.Emit(m, signalDeviceAdded, dev.path)
	if err != nil {
		logger.Warning(err)
	}
	return nil
}

func (m *Manager) unpublish(dev *Device) error {
	m.devicesMu.Lock()
	for idx, d := range m.devices {
		if d == dev {
			m.devices = append(m.devices[:idx], m.devices[idx+1:]...)
			break
		}
	}
	m.devicesMu.Unlock()

	err := m.service.Emit(m, signalDeviceRemoved, dev.path)
	if err != nil {
		logger.Warning(err)
	}
	return m.service.StopExport(dev)
}

// Device is one audio sink or source. Its properties are read only on the
// bus.
type Device struct {
	service Service
	path    dbus.ObjectPath

	PropsMu          sync.RWMutex
	Name             string
	Description      string
	VolumePercentage float64
	Muted            bool
}

func newDevice(service Service, path dbus.ObjectPath, s audio.Snapshot) *Device {
	return &Device{
		service:          service,
		path:             path,
		Name:             s.Name,
		Description:      s.Description,
		VolumePercentage: s.VolumePercentage,
		Muted:            s.Muted,
	}
}

func (d *Device) GetInterfaceName() string {
	return dbusInterfaceDevice
}

// update stores s and announces the properties named by events, and only
// those.
func (d *Device) update(s audio.Snapshot, events []audio.Event) {
	d.PropsMu.Lock()
	d.VolumePercentage = s.VolumePercentage
	d.Muted = s.Muted
	d.PropsMu.Unlock()

	if len(events) == 0 {
		return
	}
	changed := make(map[string]interface{}, len(events))
	for _, ev := range events {
		changed[ev.Property()] = ev.Value()
	}
	err := d.service.EmitPropertiesChanged(d, changed)
	if err != nil {
		logger.Warning(err)
	}
}
