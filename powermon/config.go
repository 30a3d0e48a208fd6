// SPDX-FileCopyrightText: 2018 - 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package powermon

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	jsoniter "github.com/json-iterator/go"
	"github.com/linuxdeepin/go-lib/xdg/basedir"
	"github.com/negrel/desk/battery"
	"github.com/negrel/desk/notify"
	"github.com/negrel/desk/registry"
	"golang.org/x/xerrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var sysConfigFile = "/etc/desk/powermon.json"

type Config struct {
	LowPercentage float64 `json:"low-percentage"`
	AppName       string  `json:"app-name"`
	Summary       string  `json:"summary"`
	Icon          string  `json:"icon"`
}

func DefaultConfig() *Config {
	tpl := notify.DefaultTemplate()
	return &Config{
		LowPercentage: battery.DefaultLowThreshold,
		AppName:       tpl.AppName,
		Summary:       tpl.Summary,
		Icon:          tpl.Icon,
	}
}

func (c *Config) Template() notify.Template {
	return notify.Template{
		AppName: c.AppName,
		Summary: c.Summary,
		Icon:    c.Icon,
	}
}

func ConfigPath() string {
	return filepath.Join(basedir.GetUserConfigDir(), "desk", "powermon.json")
}

// LoadConfig reads filename, then the system wide file. Keys missing from
// the file keep their default value, as does everything when neither file
// exists.
func LoadConfig(filename string) (*Config, error) {
	content, err := ioutil.ReadFile(filename)
	if os.IsNotExist(err) {
		content, err = ioutil.ReadFile(sysConfigFile)
		if os.IsNotExist(err) {
			logger.Debug("no config file, using defaults")
			return DefaultConfig(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	err = json.Unmarshal(content, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.LowPercentage <= 0 || cfg.LowPercentage > 100 {
		return nil, xerrors.Errorf("low-percentage %v out of range (0, 100]", cfg.LowPercentage)
	}
	return cfg, nil
}

// ConfigSource posts a ConfigReloaded event each time filename is rewritten
// with a valid configuration. The parent directory is watched so that
// editors replacing the file are followed.
func ConfigSource(filename string) registry.Source {
	return func(ctx context.Context, post func(registry.Event)) error {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return xerrors.Errorf("config watcher: %w", err)
		}
		defer watcher.Close()

		dir := filepath.Dir(filename)
		if err := watcher.Add(dir); err != nil {
			logger.Warningf("config directory %s is not watched: %v", dir, err)
			<-ctx.Done()
			return nil
		}

		for {
			select {
			case <-ctx.Done():
				return nil

			case ev, ok := <-watcher.Events:
				if !ok {
					return xerrors.New("config watcher closed")
				}
				if ev.Name != filename || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				cfg, err := LoadConfig(filename)
				if err != nil {
					logger.Warningf("keep previous config, load %s: %v", filename, err)
					continue
				}
				post(registry.ConfigReloaded{Path: filename, Config: cfg})

			case err, ok := <-watcher.Errors:
				if !ok {
					return xerrors.New("config watcher closed")
				}
				logger.Warning("config watcher:", err)
			}
		}
	}
}
