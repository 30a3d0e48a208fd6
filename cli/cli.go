// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cli holds the command line handling shared by the daemons.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/spf13/pflag"
	"golang.org/x/xerrors"
)

const (
	Author = "Alexandre Negrel <alexandre@negrel.dev>"

	daemonEnv = "DESK_DAEMONIZED"
)

var logLevels = map[string]log.Priority{
	"debug":   log.LevelDebug,
	"info":    log.LevelInfo,
	"warning": log.LevelWarning,
	"error":   log.LevelError,
	"none":    log.LevelDisable,
}

func ParseLogLevel(s string) (log.Priority, error) {
	level, ok := logLevels[strings.ToLower(s)]
	if !ok {
		return log.LevelDisable, xerrors.Errorf("invalid log level %q", s)
	}
	return level, nil
}

type Options struct {
	Help     bool
	Version  bool
	Daemon   bool
	LogLevel log.Priority
}

// App describes one daemon binary.
type App struct {
	Name    string
	Version string

	flags *pflag.FlagSet
}

func NewApp(name, version string) *App {
	return &App{Name: name, Version: version}
}

// Parse reads args, the program name excluded.
func (a *App) Parse(args []string) (*Options, error) {
	var (
		opts     Options
		logLevel string
	)
	a.flags = pflag.NewFlagSet(a.Name, pflag.ContinueOnError)
	a.flags.SetOutput(io.Discard)
	a.flags.BoolVarP(&opts.Daemon, "daemon", "d", false, "Run as a daemon")
	a.flags.BoolVarP(&opts.Help, "help", "h", false, "Print this message and exit")
	a.flags.BoolVarP(&opts.Version, "version", "v", false, "Print version and exit")
	a.flags.StringVarP(&logLevel, "log-level", "l", "info",
		"Set log level (one of 'debug', 'info', 'warning', 'error', 'none')")

	err := a.flags.Parse(args)
	if err != nil {
		return nil, err
	}
	if a.flags.NArg() > 0 {
		return nil, xerrors.Errorf("unexpected argument %q", a.flags.Arg(0))
	}
	opts.LogLevel, err = ParseLogLevel(logLevel)
	if err != nil {
		return nil, err
	}
	return &opts, nil
}

func (a *App) PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n", a.Name, a.Version)
}

func (a *App) PrintUsage(w io.Writer) {
	fmt.Fprintf(w, "%s %s\n%s\n\n", a.Name, a.Version, Author)
	fmt.Fprintf(w, "Usage: %s [OPTIONS...]\n\n", a.Name)
	fmt.Fprintln(w, "Options:")
	if a.flags != nil {
		fmt.Fprint(w, a.flags.FlagUsages())
	}
}

// SetLogLevel pushes level to every package logger.
func SetLogLevel(level log.Priority, setters ...func(log.Priority)) {
	for _, set := range setters {
		set(level)
	}
}

// Daemonize starts a copy of the running program in a new session, detached
// from the terminal. It returns true in the calling process, which should
// exit, and false in the copy.
func Daemonize() (bool, error) {
	if os.Getenv(daemonEnv) != "" {
		return false, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return false, err
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return false, err
	}
	defer devNull.Close()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	cmd.Dir = "/"
	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	err = cmd.Start()
	if err != nil {
		return false, xerrors.Errorf("daemonize: %w", err)
	}
	return true, cmd.Process.Release()
}

// SignalContext is done on SIGINT or SIGTERM. Install it before connecting to
// anything so that an early interrupt still goes through the teardown.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
