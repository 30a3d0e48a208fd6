// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package usound

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/negrel/desk/audio"
	"github.com/negrel/desk/pipewire"
	"github.com/negrel/desk/registry"
	"github.com/negrel/desk/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	exported  map[dbus.ObjectPath]dbusutil.Implementer
	exportErr error
	calls     []string
	changed   []map[string]interface{}
}

func newFakeService() *fakeService {
	return &fakeService{
		exported: make(map[dbus.ObjectPath]dbusutil.Implementer),
	}
}

func (s *fakeService) Export(path dbus.ObjectPath, ifcs ...dbusutil.Implementer) error {
	if s.exportErr != nil {
		return s.exportErr
	}
	if _, ok := s.exported[path]; ok {
		return errors.New("path already exported")
	}
	s.exported[path] = ifcs[0]
	s.calls = append(s.calls, "export "+string(path))
	return nil
}

func (s *fakeService) StopExport(ifc dbusutil.Implementer) error {
	for path, v := range s.exported {
		if v == ifc {
			delete(s.exported, path)
			s.calls = append(s.calls, "unexport "+string(path))
			return nil
		}
	}
	return errors.New("not exported")
}

func (s *fakeService) Emit(v dbusutil.Implementer, signalName string, values ...interface{}) error {
	s.calls = append(s.calls, fmt.Sprintf("%s %v", signalName, values[0]))
	return nil
}

func (s *fakeService) EmitPropertiesChanged(v dbusutil.Implementer, propValMap map[string]interface{},
	invalidatedProps ...string) error {
	s.calls = append(s.calls, "changed "+string(v.(*Device).path))
	s.changed = append(s.changed, propValMap)
	return nil
}

type fakeWatcher struct {
	watched  map[registry.Handle]int
	released map[registry.Handle]int
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{
		watched:  make(map[registry.Handle]int),
		released: make(map[registry.Handle]int),
	}
}

func (w *fakeWatcher) Watch(h registry.Handle) (tracker.Releaser, error) {
	w.watched[h]++
	return tracker.OnceReleaser(func() error {
		w.released[h]++
		return nil
	}), nil
}

func boolPtr(b bool) *bool {
	return &b
}

func discovered(id uint32, name string, params audio.Params) registry.ObjectDiscovered {
	return registry.ObjectDiscovered{
		Handle: pipewire.Handle(id),
		Kind:   registry.KindAudioSink,
		Props: pipewire.Node{
			ID:          id,
			Name:        name,
			Description: "Built-in Audio",
			Params:      params,
		},
	}
}

const sinkPath = dbus.ObjectPath("/dev/negrel/desk/USound/devices/alsa_output_pci_0000_00_1f_3")

func TestDaemon_Lifecycle(t *testing.T) {
	service := newFakeService()
	watcher := newFakeWatcher()
	d := NewDaemon(service, watcher)

	require.NoError(t, d.Dispatch(discovered(52, "alsa_output.pci-0000:00:1f.3", audio.Params{
		ChannelVolumes: []float64{1, 0.125},
		Mute:           boolPtr(false),
	})))
	// duplicates are ignored
	require.NoError(t, d.Dispatch(discovered(52, "alsa_output.pci-0000:00:1f.3", audio.Params{})))
	assert.Equal(t, 1, watcher.watched["52"])

	dev, ok := service.exported[sinkPath].(*Device)
	require.True(t, ok)
	assert.Equal(t, "alsa_output.pci-0000:00:1f.3", dev.Name)
	assert.Equal(t, "Built-in Audio", dev.Description)
	assert.InDelta(t, 75.0, dev.VolumePercentage, 1e-9)
	assert.False(t, dev.Muted)

	paths, busErr := d.manager.EnumerateDevices()
	assert.Nil(t, busErr)
	assert.Equal(t, []dbus.ObjectPath{sinkPath}, paths)

	require.NoError(t, d.Dispatch(registry.ObjectChanged{Handle: "52", Changes: audio.Params{
		Mute: boolPtr(true),
	}}))
	assert.True(t, dev.Muted)

	require.NoError(t, d.Dispatch(registry.ObjectRemoved{Handle: "52"}))
	assert.Equal(t, 1, watcher.released["52"])
	assert.Empty(t, service.exported)
	assert.Equal(t, 0, d.store.Len())

	assert.Equal(t, []string{
		"export " + string(sinkPath),
		"DeviceAdded " + string(sinkPath),
		"changed " + string(sinkPath),
		"changed " + string(sinkPath),
		"DeviceRemoved " + string(sinkPath),
		"unexport " + string(sinkPath),
	}, service.calls)

	require.Len(t, service.changed, 2)
	assert.Len(t, service.changed[0], 2)
	assert.InDelta(t, 75.0, service.changed[0]["VolumePercentage"], 1e-9)
	assert.Equal(t, false, service.changed[0]["Muted"])
	assert.Equal(t, map[string]interface{}{"Muted": true}, service.changed[1])

	paths, _ = d.manager.EnumerateDevices()
	assert.Empty(t, paths)
}

func TestDaemon_SamePath(t *testing.T) {
	service := newFakeService()
	watcher := newFakeWatcher()
	d := NewDaemon(service, watcher)

	require.NoError(t, d.Dispatch(discovered(52, "alsa_output.pci-0000:00:1f.3", audio.Params{})))
	require.NoError(t, d.Dispatch(discovered(60, "alsa_output.pci-0000_00_1f.3", audio.Params{})))

	assert.Equal(t, 2, d.store.Len())
	assert.Len(t, service.exported, 1)
	paths, _ := d.manager.EnumerateDevices()
	assert.Equal(t, []dbus.ObjectPath{sinkPath}, paths)

	// the unpublished one is still tracked
	require.NoError(t, d.Dispatch(registry.ObjectChanged{Handle: "60", Changes: audio.Params{
		ChannelVolumes: []float64{1},
	}}))
	obj, ok := d.store.Get("60")
	require.True(t, ok)
	assert.InDelta(t, 100.0, obj.Snapshot.VolumePercentage, 1e-9)
	assert.Empty(t, service.changed)

	require.NoError(t, d.Dispatch(registry.ObjectRemoved{Handle: "60"}))
	assert.Len(t, service.exported, 1)

	require.NoError(t, d.Close())
	assert.Empty(t, service.exported)
	assert.Equal(t, 1, watcher.released["52"])
	assert.Equal(t, 1, watcher.released["60"])
}

func TestDaemon_PublishFailure(t *testing.T) {
	service := newFakeService()
	service.exportErr = errors.New("bus gone")
	d := NewDaemon(service, newFakeWatcher())

	require.NoError(t, d.Dispatch(discovered(52, "sink", audio.Params{Mute: boolPtr(true)})))
	obj, ok := d.store.Get("52")
	require.True(t, ok)
	assert.False(t, obj.Published())
	assert.True(t, obj.Snapshot.Muted)
}

func TestDaemon_DispatchErrors(t *testing.T) {
	d := NewDaemon(newFakeService(), newFakeWatcher())

	assert.Error(t, d.Dispatch(registry.ObjectDiscovered{Handle: "1", Props: "garbage"}))
	assert.Error(t, d.Dispatch(registry.ObjectChanged{Handle: "1", Changes: "garbage"}))
	assert.Error(t, d.Dispatch(registry.ConfigReloaded{Path: "x"}))

	// unknown handles are fine
	assert.NoError(t, d.Dispatch(registry.ObjectChanged{Handle: "1", Changes: audio.Params{}}))
	assert.NoError(t, d.Dispatch(registry.ObjectRemoved{Handle: "1"}))
}

func TestManager_Props(t *testing.T) {
	m := newManager(newFakeService())
	assert.Equal(t, "v0.1.0", m.Version)
	assert.Equal(t, "dev.negrel.desk.USound", m.GetInterfaceName())
	assert.Equal(t, "dev.negrel.desk.USound.Device", (&Device{}).GetInterfaceName())
}

func TestDaemon_ChangeRightAfterDiscovery(t *testing.T) {
	service := newFakeService()
	pw := pipewire.NewClient(nil)
	d := NewDaemon(service, pw)

	// both events are queued before the loop handles the discovery
	l := registry.NewLoop(4)
	l.AddSource("pipewire", func(ctx context.Context, post func(registry.Event)) error {
		post(discovered(52, "alsa_output.pci-0000:00:1f.3", audio.Params{}))
		post(registry.ObjectChanged{Handle: "52", Changes: audio.Params{
			ChannelVolumes: []float64{0.125},
			Mute:           boolPtr(true),
		}})
		<-ctx.Done()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dispatch := pw.Filter(d.Dispatch)
	handled := 0
	err := l.Run(ctx, func(ev registry.Event) error {
		err := dispatch(ev)
		handled++
		if handled == 2 {
			cancel()
		}
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 2, handled)

	dev, ok := service.exported[sinkPath].(*Device)
	require.True(t, ok)
	assert.InDelta(t, 50.0, dev.VolumePercentage, 1e-9)
	assert.True(t, dev.Muted)
	require.Len(t, service.changed, 1)
	assert.Equal(t, true, service.changed[0]["Muted"])

	// once removed, later changes of the node are not delivered
	require.NoError(t, dispatch(registry.ObjectRemoved{Handle: "52"}))
	require.NoError(t, dispatch(registry.ObjectChanged{Handle: "52", Changes: audio.Params{
		Mute: boolPtr(false),
	}}))
	assert.Len(t, service.changed, 1)
	assert.Equal(t, 0, d.store.Len())
}
