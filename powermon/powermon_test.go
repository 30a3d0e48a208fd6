// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package powermon

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/negrel/desk/battery"
	"github.com/negrel/desk/notify"
	"github.com/negrel/desk/registry"
	"github.com/negrel/desk/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(n notify.Notification) (uint32, error) {
	args := m.Called(n)
	return args.Get(0).(uint32), args.Error(1)
}

func (m *mockNotifier) Close(id uint32) error {
	args := m.Called(id)
	return args.Error(0)
}

type fakeDevice struct {
	typ      battery.DeviceType
	props    map[string]dbus.Variant
	propsErr error
	watchErr error
}

type fakeBus struct {
	paths    []dbus.ObjectPath
	devices  map[dbus.ObjectPath]*fakeDevice
	watched  map[dbus.ObjectPath]int
	released map[dbus.ObjectPath]int
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		devices:  make(map[dbus.ObjectPath]*fakeDevice),
		watched:  make(map[dbus.ObjectPath]int),
		released: make(map[dbus.ObjectPath]int),
	}
}

func (b *fakeBus) add(path dbus.ObjectPath, dev *fakeDevice) {
	b.paths = append(b.paths, path)
	b.devices[path] = dev
}

func (b *fakeBus) EnumerateDevices() ([]dbus.ObjectPath, error) {
	return b.paths, nil
}

func (b *fakeBus) DeviceType(path dbus.ObjectPath) (battery.DeviceType, error) {
	return b.devices[path].typ, nil
}

func (b *fakeBus) Properties(path dbus.ObjectPath) (map[string]dbus.Variant, error) {
	dev := b.devices[path]
	return dev.props, dev.propsErr
}

func (b *fakeBus) Watch(path dbus.ObjectPath) (tracker.Releaser, error) {
	if err := b.devices[path].watchErr; err != nil {
		return nil, err
	}
	b.watched[path]++
	return tracker.OnceReleaser(func() error {
		b.released[path]++
		return nil
	}), nil
}

func batteryDevice(state battery.State, pct float64) *fakeDevice {
	return &fakeDevice{
		typ: battery.TypeBattery,
		props: map[string]dbus.Variant{
			battery.PropType:         dbus.MakeVariant(uint32(battery.TypeBattery)),
			battery.PropState:        dbus.MakeVariant(uint32(state)),
			battery.PropPercentage:   dbus.MakeVariant(pct),
			battery.PropBatteryLevel: dbus.MakeVariant(uint32(battery.LevelNone)),
		},
	}
}

func lowNotification(body string, replace uint32) notify.Notification {
	return notify.Notification{
		AppName:   notify.DefaultAppName,
		Summary:   notify.DefaultSummary,
		Body:      body,
		Icon:      notify.DefaultIcon,
		Urgency:   notify.UrgencyCritical,
		ReplaceID: replace,
	}
}

func changed(path dbus.ObjectPath, key string, value interface{}) registry.ObjectChanged {
	return registry.ObjectChanged{
		Handle:  registry.Handle(path),
		Changes: map[string]dbus.Variant{key: dbus.MakeVariant(value)},
	}
}

func TestDaemon_Bootstrap(t *testing.T) {
	bus := newFakeBus()
	bus.add("/org/freedesktop/UPower/devices/line_power_AC", &fakeDevice{typ: battery.TypeLinePower})
	bus.add("/org/freedesktop/UPower/devices/battery_BAT0", batteryDevice(battery.StateDischarging, 80))
	bus.add("/org/freedesktop/UPower/devices/battery_BAT1", &fakeDevice{
		typ:      battery.TypeBattery,
		propsErr: errors.New("no such object"),
	})
	bus.add("/org/freedesktop/UPower/devices/battery_BAT2", &fakeDevice{
		typ:      battery.TypeBattery,
		props:    batteryDevice(battery.StateCharging, 40).props,
		watchErr: errors.New("match rule rejected"),
	})

	n := new(mockNotifier)
	d := NewDaemon(bus, n, nil)
	require.NoError(t, d.Bootstrap())

	assert.Equal(t, []registry.Handle{"/org/freedesktop/UPower/devices/battery_BAT0"}, d.store.Handles())
	assert.Equal(t, 1, bus.watched["/org/freedesktop/UPower/devices/battery_BAT0"])
	n.AssertNotCalled(t, "Notify", mock.Anything)

	require.NoError(t, d.Close())
	assert.Equal(t, 1, bus.released["/org/freedesktop/UPower/devices/battery_BAT0"])
	assert.Equal(t, 0, d.store.Len())
}

func TestDaemon_BootstrapLowBattery(t *testing.T) {
	bus := newFakeBus()
	bus.add("/bat0", batteryDevice(battery.StateDischarging, 12))

	n := new(mockNotifier)
	n.On("Notify", lowNotification("Please charge now, 12% remaining.", 0)).Return(uint32(4), nil).Once()

	d := NewDaemon(bus, n, nil)
	require.NoError(t, d.Bootstrap())
	n.AssertExpectations(t)
	assert.Equal(t, uint32(4), d.sink.State.ActiveID)
}

func TestDaemon_Dispatch(t *testing.T) {
	bus := newFakeBus()
	bus.add("/bat0", batteryDevice(battery.StateDischarging, 50))

	n := new(mockNotifier)
	n.On("Notify", lowNotification("Please charge now, 15% remaining.", 0)).Return(uint32(9), nil).Once()
	n.On("Close", uint32(9)).Return(nil).Once()

	d := NewDaemon(bus, n, nil)
	require.NoError(t, d.Bootstrap())

	events := []registry.Event{
		changed("/bat0", battery.PropPercentage, 15.0),
		changed("/bat0", battery.PropPercentage, 25.0),
		changed("/bat0", battery.PropState, uint32(battery.StateFullyCharged)),
		// unknown properties do nothing
		changed("/bat0", "UpdateTime", uint64(1700000000)),
		// neither do untracked devices, hot plugged or removed ones
		changed("/bat9", battery.PropPercentage, 1.0),
		registry.ObjectDiscovered{Handle: "/bat9", Kind: registry.KindBattery},
		registry.ObjectRemoved{Handle: "/bat0"},
	}
	for _, ev := range events {
		require.NoError(t, d.Dispatch(ev), "%v", ev)
	}
	n.AssertExpectations(t)

	obj, ok := d.store.Get("/bat0")
	require.True(t, ok)
	assert.Equal(t, battery.Snapshot{
		Percentage: 25,
		Level:      battery.LevelNone,
		State:      battery.StateFullyCharged,
	}, obj.Snapshot)
}

func TestDaemon_DispatchErrors(t *testing.T) {
	bus := newFakeBus()
	bus.add("/bat0", batteryDevice(battery.StateDischarging, 50))

	n := new(mockNotifier)
	n.On("Notify", mock.Anything).Return(uint32(0), errors.New("no notification daemon"))

	d := NewDaemon(bus, n, nil)
	require.NoError(t, d.Bootstrap())

	assert.Error(t, d.Dispatch(registry.ObjectChanged{Handle: "/bat0", Changes: "garbage"}))
	assert.Error(t, d.Dispatch(changed("/bat0", battery.PropPercentage, 10.0)))
	assert.Error(t, d.Dispatch(registry.ConfigReloaded{Path: "x", Config: "garbage"}))
	assert.Error(t, d.Dispatch(registry.SourceFailed{Source: "upower"}))

	// the snapshot is updated even though nobody was told
	obj, _ := d.store.Get("/bat0")
	assert.Equal(t, 10.0, obj.Snapshot.Percentage)
}

func TestDaemon_Reload(t *testing.T) {
	bus := newFakeBus()
	bus.add("/bat0", batteryDevice(battery.StateDischarging, 25))

	n := new(mockNotifier)
	d := NewDaemon(bus, n, nil)
	require.NoError(t, d.Bootstrap())

	cfg := &Config{
		LowPercentage: 30,
		AppName:       "powermon",
		Summary:       "Plug me in",
		Icon:          "battery-low",
	}
	n.On("Notify", notify.Notification{
		AppName: "powermon",
		Summary: "Plug me in",
		Body:    "Please charge now, 25% remaining.",
		Icon:    "battery-low",
		Urgency: notify.UrgencyCritical,
	}).Return(uint32(2), nil).Once()
	require.NoError(t, d.Dispatch(registry.ConfigReloaded{Path: "powermon.json", Config: cfg}))
	assert.Equal(t, 30.0, d.reducer.Threshold)

	n.On("Close", uint32(2)).Return(nil).Once()
	require.NoError(t, d.Dispatch(registry.ConfigReloaded{Path: "powermon.json", Config: DefaultConfig()}))
	n.AssertExpectations(t)
	assert.False(t, d.sink.State.Active())
}
