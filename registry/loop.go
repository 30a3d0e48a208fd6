// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package registry

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/linuxdeepin/go-lib/log"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("desk/registry")

func SetLogLevel(level log.Priority) {
	logger.SetLogLevel(level)
}

// Source reads one event producer (a bus connection, a subprocess pipe, a
// file watcher) and posts what it reads. It must return once ctx is done.
type Source func(ctx context.Context, post func(Event)) error

// FatalError stops the loop when returned by a dispatch function.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return "fatal: " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

func IsFatal(err error) bool {
	var fe *FatalError
	return xerrors.As(err, &fe)
}

type namedSource struct {
	name string
	fn   Source
}

// ContextSource fails once conn is done. Use it with the context of a bus
// connection so that losing the connection stops the loop.
func ContextSource(what string, conn context.Context) Source {
	return func(ctx context.Context, post func(Event)) error {
		select {
		case <-ctx.Done():
			return nil
		case <-conn.Done():
			return xerrors.Errorf("%s closed", what)
		}
	}
}

// Loop multiplexes every source into a single dispatching goroutine. All
// callbacks run sequentially from Run, so the state they touch needs no lock.
type Loop struct {
	events  chan Event
	sources []namedSource
	signals []os.Signal
}

func NewLoop(buffer int) *Loop {
	return &Loop{
		events:  make(chan Event, buffer),
		signals: []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
}

func (l *Loop) AddSource(name string, src Source) {
	l.sources = append(l.sources, namedSource{name: name, fn: src})
}

// Run services the sources until ctx is done, an interrupt signal arrives, a
// source fails or dispatch returns a fatal error. A nil return means a
// cooperative exit.
func (l *Loop) Run(ctx context.Context, dispatch func(Event) error) error {
	sigCtx, stopSignals := signal.NotifyContext(ctx, l.signals...)
	defer stopSignals()
	srcCtx, cancel := context.WithCancel(sigCtx)

	post := func(ev Event) {
		select {
		case l.events <- ev:
		case <-srcCtx.Done():
		}
	}

	var wg sync.WaitGroup
	for _, src := range l.sources {
		wg.Add(1)
		go func(src namedSource) {
			defer wg.Done()
			logger.Debug("start source", src.name)
			err := src.fn(srcCtx, post)
			if srcCtx.Err() != nil {
				return
			}
			if err == nil {
				err = xerrors.New("source stopped")
			}
			post(SourceFailed{Source: src.name, Err: err})
		}(src)
	}
	defer func() {
		cancel()
		wg.Wait()
	}()

	logger.Info("starting event loop...")
	for {
		select {
		case <-sigCtx.Done():
			if ctx.Err() == nil {
				logger.Info("received interrupt, exiting event loop")
			}
			return nil

		case ev := <-l.events:
			if failed, ok := ev.(SourceFailed); ok {
				return Fatal(xerrors.Errorf("source %s: %w", failed.Source, failed.Err))
			}
			err := dispatch(ev)
			if err == nil {
				continue
			}
			if IsFatal(err) {
				return err
			}
			logger.Warningf("handle %v: %v", ev, err)
		}
	}
}
