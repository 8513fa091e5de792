// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package notifytest provides an in-memory notification sink for tests.
package notifytest

import (
	"context"
	"errors"
	"sync"

	"github.com/quillworks/quill/internal/notify"
)

// ErrInjected is returned by a Recorder told to fail.
var ErrInjected = errors.New("injected delivery failure")

// Recorder records notifications. It is both a notify.Sink and an
// auth.Notifier; as a Notifier it records synchronously.
type Recorder struct {
	mu       sync.Mutex
	items    []notify.Notification
	failures int
	attempts int
}

// Deliver implements notify.Sink. While failures remain it returns ErrInjected.
func (r *Recorder) Deliver(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.failures > 0 {
		r.failures--
		return ErrInjected
	}
	r.items = append(r.items, n)
	return nil
}

// Send implements auth.Notifier.
func (r *Recorder) Send(ctx context.Context, recipient, kind string, payload map[string]string) {
	_ = r.Deliver(ctx, notify.New(recipient, kind, payload)) //nolint:errcheck // failures are counted in Attempts
}

// FailNext makes the next n deliveries fail.
func (r *Recorder) FailNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = n
}

// Attempts returns the number of Deliver calls, failed ones included.
func (r *Recorder) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// All returns a copy of every recorded notification.
func (r *Recorder) All() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.items...)
}

// ByKind returns the recorded notifications of kind.
func (r *Recorder) ByKind(kind string) []notify.Notification {
	var out []notify.Notification
	for _, n := range r.All() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Last returns the most recent notification of kind and whether one exists.
func (r *Recorder) Last(kind string) (notify.Notification, bool) {
	items := r.ByKind(kind)
	if len(items) == 0 {
		return notify.Notification{}, false
	}
	return items[len(items)-1], true
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
	r.attempts = 0
	r.failures = 0
}
