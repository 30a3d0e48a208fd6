// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// powermon watches the batteries known to UPower and shows a desktop
// notification while one of them runs low.
package main

import (
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/negrel/desk/battery"
	"github.com/negrel/desk/cli"
	"github.com/negrel/desk/notify"
	"github.com/negrel/desk/powermon"
	"github.com/negrel/desk/registry"
	"github.com/negrel/desk/tracker"
	"github.com/negrel/desk/upower"
)

const version = "v0.1.0"

var logger = log.NewLogger("powermon")

func main() {
	os.Exit(run(os.Args[1:]))
}

func doSetLogLevel(level log.Priority) {
	cli.SetLogLevel(level,
		func(l log.Priority) { logger.SetLogLevel(l) },
		registry.SetLogLevel,
		tracker.SetLogLevel,
		battery.SetLogLevel,
		notify.SetLogLevel,
		upower.SetLogLevel,
		powermon.SetLogLevel,
	)
}

func run(args []string) int {
	app := cli.NewApp("powermon", version)
	opts, err := app.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		app.PrintUsage(os.Stderr)
		return 1
	}
	if opts.Help {
		app.PrintUsage(os.Stdout)
		return 0
	}
	if opts.Version {
		app.PrintVersion(os.Stdout)
		return 0
	}
	doSetLogLevel(opts.LogLevel)

	if opts.Daemon {
		parent, err := cli.Daemonize()
		if err != nil {
			logger.Error(err)
			return 1
		}
		if parent {
			return 0
		}
	}

	ctx, stop := cli.SignalContext()
	defer stop()

	sysBus, err := dbus.ConnectSystemBus(dbus.WithSignalHandler(dbus.NewSequentialSignalHandler()))
	if err != nil {
		logger.Error("failed to connect to system bus:", err)
		return 1
	}
	defer sysBus.Close()

	sessionBus, err := dbus.ConnectSessionBus()
	if err != nil {
		logger.Error("failed to connect to session bus:", err)
		return 1
	}
	defer sessionBus.Close()

	cfgPath := powermon.ConfigPath()
	cfg, err := powermon.LoadConfig(cfgPath)
	if err != nil {
		logger.Warningf("failed to load %s, using defaults: %v", cfgPath, err)
		cfg = powermon.DefaultConfig()
	}

	upowerClient := upower.NewClient(sysBus)
	daemon := powermon.NewDaemon(upowerClient, notify.NewDBusNotifier(sessionBus), cfg)
	defer func() {
		err := daemon.Close()
		if err != nil {
			logger.Warning(err)
		}
	}()

	err = daemon.Bootstrap()
	if err != nil {
		logger.Error(err)
		return 1
	}
	if ctx.Err() != nil {
		logger.Info("interrupted during startup")
		return 0
	}

	loop := registry.NewLoop(64)
	loop.AddSource("upower", upowerClient.Source())
	loop.AddSource("session-bus", registry.ContextSource("session bus", sessionBus.Context()))
	loop.AddSource("config", powermon.ConfigSource(cfgPath))

	err = loop.Run(ctx, daemon.Dispatch)
	if err != nil {
		logger.Error(err)
		return 1
	}
	logger.Info("exiting")
	return 0
}
