// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// usound follows the PipeWire audio sinks and sources and publishes them on
// the session bus.
package main

import (
	"fmt"
	"os"

	"github.com/linuxdeepin/go-lib/dbusutil"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/negrel/desk/audio"
	"github.com/negrel/desk/cli"
	"github.com/negrel/desk/pipewire"
	"github.com/negrel/desk/registry"
	"github.com/negrel/desk/tracker"
	"github.com/negrel/desk/usound"
)

var logger = log.NewLogger("usound")

func main() {
	os.Exit(run(os.Args[1:]))
}

func doSetLogLevel(level log.Priority) {
	cli.SetLogLevel(level,
		func(l log.Priority) { logger.SetLogLevel(l) },
		registry.SetLogLevel,
		tracker.SetLogLevel,
		audio.SetLogLevel,
		pipewire.SetLogLevel,
		usound.SetLogLevel,
	)
}

func run(args []string) int {
	app := cli.NewApp("usound", usound.Version)
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

	service, err := dbusutil.NewSessionService()
	if err != nil {
		logger.Error("failed to connect to session bus:", err)
		return 1
	}
	defer service.Conn().Close()

	pw := pipewire.NewClient(nil)
	daemon, err := usound.Start(service, pw)
	if err != nil {
		logger.Error(err)
		return 1
	}
	defer func() {
		err := daemon.Close()
		if err != nil {
			logger.Warning(err)
		}
	}()
	if ctx.Err() != nil {
		logger.Info("interrupted during startup")
		return 0
	}

	loop := registry.NewLoop(64)
	loop.AddSource("pipewire", pw.Source())
	loop.AddSource("session-bus", registry.ContextSource("session bus", service.Conn().Context()))

	err = loop.Run(ctx, pw.Filter(daemon.Dispatch))
	if err != nil {
		logger.Error(err)
		return 1
	}
	logger.Info("exiting")
	return 0
}
