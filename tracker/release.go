// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tracker

import (
	"sync"
)

// Releaser is an owned resource: a signal match, a registry listener, an
// exported object.
type Releaser interface {
	Release() error
}

type onceReleaser struct {
	once sync.Once
	fn   func() error
}

// OnceReleaser wraps fn so that it runs at most once, no matter how many
// exit paths call Release.
func OnceReleaser(fn func() error) Releaser {
	return &onceReleaser{fn: fn}
}

func (r *onceReleaser) Release() error {
	var err error
	r.once.Do(func() {
		if r.fn != nil {
			err = r.fn()
		}
	})
	return err
}
