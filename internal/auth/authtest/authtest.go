// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package authtest wires the auth core over the in-memory store for tests.
package authtest

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/auth"
	"github.com/quillworks/quill/internal/auth/memory"
	"github.com/quillworks/quill/internal/notify/notifytest"
	"github.com/quillworks/quill/internal/signedref"
)

// Secret is the signing secret used by Env.
var Secret = []byte("authtest-secret-authtest-secret-!")

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock set to start.
func NewClock(start time.Time) *Clock { return &Clock{now: start} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Links builds notification URLs under a fixed base.
type Links struct{ Base string }

// VerifyEmailURL implements auth.Links.
func (l Links) VerifyEmailURL(token string) string { return l.Base + "/verify-email/" + token }

// ReactivateURL implements auth.Links.
func (l Links) ReactivateURL(token string) string { return l.Base + "/reactivate/" + token }

// PasswordResetURL implements auth.Links.
func (l Links) PasswordResetURL(token string) string { return l.Base + "/passwords/" + token }

// TokenFromURL returns the last path segment of a notification URL.
func TokenFromURL(url string) string {
	return url[strings.LastIndexByte(url, '/')+1:]
}

// Env is a fully wired auth core.
type Env struct {
	Store    *memory.Store
	Signer   *signedref.Signer
	Recorder *notifytest.Recorder
	Clock    *Clock
	Service  *auth.Service
}

// NewEnv builds an Env. Extra options are applied after the test clock.
func NewEnv(t testing.TB, opts ...auth.Option) *Env {
	t.Helper()
	clock := NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	signer, err := signedref.NewSigner(Secret, signedref.WithClock(clock.Now))
	require.NoError(t, err)

	store := memory.New()
	rec := &notifytest.Recorder{}
	all := append([]auth.Option{auth.WithClock(clock.Now)}, opts...)
	svc, err := auth.NewService(store, auth.NewArgon2idHasher(), signer, rec, Links{Base: "http://quill.test"}, all...)
	require.NoError(t, err)

	return &Env{Store: store, Signer: signer, Recorder: rec, Clock: clock, Service: svc}
}

// LastToken returns the token of the most recent notification of kind.
func (e *Env) LastToken(t testing.TB, kind string) string {
	t.Helper()
	n, ok := e.Recorder.Last(kind)
	require.True(t, ok, "no %s notification recorded", kind)
	return TokenFromURL(n.Payload["url"])
}
