// SPDX-FileCopyrightText: 2022 UnionTech Software Technology Co., Ltd.
//
// SPDX-License-Identifier: GPL-3.0-or-later

package tracker

import (
	"fmt"
	"strings"

	"github.com/linuxdeepin/go-lib/log"
	"github.com/negrel/desk/registry"
	"golang.org/x/xerrors"
)

var logger = log.NewLogger("desk/tracker")

func SetLogLevel(level log.Priority) {
	logger.SetLogLevel(level)
}

// Object is the local record of one watched remote object.
type Object[S any] struct {
	Handle   registry.Handle
	Kind     registry.Kind
	Snapshot S

	subscription Releaser
	publication  Releaser
}

func (o *Object[S]) String() string {
	return fmt.Sprintf("<%s %s>", o.Kind, o.Handle)
}

// SetPublication attaches the externally visible resource tied to this
// record. It is released by Store.Remove after the subscription.
func (o *Object[S]) SetPublication(r Releaser) {
	o.publication = r
}

func (o *Object[S]) Published() bool {
	return o.publication != nil
}

type FetchFunc[S any] func(h registry.Handle) (S, error)

type SubscribeFunc[S any] func(obj *Object[S]) (Releaser, error)

// FetchError reports a failure to start tracking one object. The store is
// left as it was before the call.
type FetchError struct {
	Handle registry.Handle
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("track %s: %v", e.Handle, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Store keeps one record per live handle, in insertion order. It is owned by
// the event loop goroutine and is not safe for concurrent use.
type Store[S any] struct {
	order   []registry.Handle
	objects map[registry.Handle]*Object[S]
}

func NewStore[S any]() *Store[S] {
	return &Store[S]{
		objects: make(map[registry.Handle]*Object[S]),
	}
}

// Upsert starts tracking h. For an already tracked handle it returns the
// existing record and created is false.
func (s *Store[S]) Upsert(h registry.Handle, kind registry.Kind,
	fetch FetchFunc[S], subscribe SubscribeFunc[S]) (obj *Object[S], created bool, err error) {

	if obj, ok := s.objects[h]; ok {
		return obj, false, nil
	}

	snapshot, err := fetch(h)
	if err != nil {
		return nil, false, &FetchError{Handle: h, Err: err}
	}

	obj = &Object[S]{
		Handle:   h,
		Kind:     kind,
		Snapshot: snapshot,
	}
	sub, err := subscribe(obj)
	if err != nil {
		return nil, false, &FetchError{Handle: h, Err: err}
	}
	if sub == nil {
		return nil, false, &FetchError{Handle: h, Err: xerrors.New("nil subscription")}
	}
	obj.subscription = sub

	s.objects[h] = obj
	s.order = append(s.order, h)
	logger.Debug("tracking", obj)
	return obj, true, nil
}

func (s *Store[S]) Get(h registry.Handle) (*Object[S], bool) {
	obj, ok := s.objects[h]
	return obj, ok
}

// Update stores the snapshot computed from an authoritative change event.
func (s *Store[S]) Update(h registry.Handle, snapshot S) bool {
	obj, ok := s.objects[h]
	if !ok {
		return false
	}
	obj.Snapshot = snapshot
	return true
}

func (s *Store[S]) Len() int {
	return len(s.order)
}

// Remove releases the subscription, then the publication, then forgets the
// record. Unknown handles are ignored.
func (s *Store[S]) Remove(h registry.Handle) error {
	obj, ok := s.objects[h]
	if !ok {
		return nil
	}

	delete(s.objects, h)
	for i, oh := range s.order {
		if oh == h {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	var errs []string
	if err := obj.subscription.Release(); err != nil {
		errs = append(errs, "release subscription: "+err.Error())
	}
	if obj.publication != nil {
		if err := obj.publication.Release(); err != nil {
			errs = append(errs, "release publication: "+err.Error())
		}
	}
	logger.Debug("stop tracking", obj)

	if len(errs) > 0 {
		return xerrors.Errorf("remove %s: %s", h, strings.Join(errs, "; "))
	}
	return nil
}

func (s *Store[S]) ForEach(fn func(obj *Object[S])) {
	for _, h := range s.order {
		fn(s.objects[h])
	}
}

// Handles returns the tracked handles in insertion order.
func (s *Store[S]) Handles() []registry.Handle {
	handles := make([]registry.Handle, len(s.order))
	copy(handles, s.order)
	return handles
}

// Close removes every record in insertion order.
func (s *Store[S]) Close() error {
	var errs []string
	for _, h := range s.Handles() {
		if err := s.Remove(h); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return xerrors.New(strings.Join(errs, "\n"))
	}
	return nil
}
