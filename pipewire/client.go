// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package pipewire

import (
	"context"
	"io"
	"os/exec"

	jsoniter "github.com/json-iterator/go"
	"github.com/linuxdeepin/go-lib/log"
	"github.com/negrel/desk/registry"
	"github.com/negrel/desk/tracker"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("desk/pipewire")

func SetLogLevel(level log.Priority) {
	logger.SetLogLevel(level)
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultCommand dumps the registry and keeps printing its updates.
var DefaultCommand = []string{"pw-dump", "--monitor", "--no-colors"}

// Client follows the PipeWire registry through pw-dump. The source goroutine
// posts every decoded event; Watch and Filter belong to the loop goroutine.
type Client struct {
	command []string
	decoder *Decoder
	watched map[registry.Handle]struct{}
}

func NewClient(command []string) *Client {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &Client{
		command: command,
		decoder: NewDecoder(),
		watched: make(map[registry.Handle]struct{}),
	}
}

// Watch lets the changes of h through Filter until the result is released.
func (c *Client) Watch(h registry.Handle) (tracker.Releaser, error) {
	if _, ok := c.watched[h]; ok {
		return nil, xerrors.Errorf("node %s is already watched", h)
	}
	c.watched[h] = struct{}{}
	return tracker.OnceReleaser(func() error {
		delete(c.watched, h)
		return nil
	}), nil
}

func (c *Client) watching(h registry.Handle) bool {
	_, ok := c.watched[h]
	return ok
}

// Filter wraps a dispatch function so that changes of unwatched nodes are
// dropped. Events reach it in the order they were read, so a discovery that
// starts a watch is always handled before the changes that follow it.
func (c *Client) Filter(dispatch func(registry.Event) error) func(registry.Event) error {
	return func(ev registry.Event) error {
		if changed, ok := ev.(registry.ObjectChanged); ok && !c.watching(changed.Handle) {
			logger.Debug("drop change of unwatched node", changed.Handle)
			return nil
		}
		return dispatch(ev)
	}
}

// Source runs the dump command. The command exiting on its own, or printing
// something that does not decode, is an error: the registry is gone.
func (c *Client) Source() registry.Source {
	return func(ctx context.Context, post func(registry.Event)) error {
		cmd := exec.CommandContext(ctx, c.command[0], c.command[1:]...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return xerrors.Errorf("pipe %s: %w", c.command[0], err)
		}
		if err := cmd.Start(); err != nil {
			return xerrors.Errorf("start %s: %w", c.command[0], err)
		}
		logger.Info("connected to PipeWire registry, pid", cmd.Process.Pid)

		readErr := c.read(stdout, post)
		if ctx.Err() == nil {
			// still running after a decode error
			err := cmd.Process.Kill()
			if err != nil {
				logger.Debug("kill", c.command[0], err)
			}
		}
		waitErr := cmd.Wait()
		if ctx.Err() != nil {
			return nil
		}
		if waitErr != nil {
			return xerrors.Errorf("%s exited (%v): %w", c.command[0], waitErr, readErr)
		}
		return readErr
	}
}

func (c *Client) read(r io.Reader, post func(registry.Event)) error {
	dec := json.NewDecoder(r)
	for {
		var globals []Global
		err := dec.Decode(&globals)
		if err == io.EOF {
			return xerrors.New("registry stream closed")
		}
		if err != nil {
			return xerrors.Errorf("decode registry: %w", err)
		}

		for _, ev := range c.decoder.Decode(globals) {
			post(ev)
		}
	}
}
