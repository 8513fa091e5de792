// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"log/slog"
	"time"
)

// Default windows for the token protocols.
const (
	DefaultVerificationWindow = 48 * time.Hour
	DefaultReactivationTTL    = 2 * time.Hour
	DefaultPasswordResetTTL   = 15 * time.Minute
)

// Option configures the auth components.
type Option func(*settings)

type settings struct {
	now                func() time.Time
	logger             *slog.Logger
	verificationWindow time.Duration
	reactivationTTL    time.Duration
	passwordResetTTL   time.Duration
}

// WithClock replaces time.Now. Tests use it to move past token windows.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used for lifecycle and token events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVerificationWindow sets how long an email verification token stays valid.
func WithVerificationWindow(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.verificationWindow = d
		}
	}
}

// WithReactivationTTL sets the lifetime of reactivation links.
func WithReactivationTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.reactivationTTL = d
		}
	}
}

// WithPasswordResetTTL sets the lifetime of password reset links.
func WithPasswordResetTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.passwordResetTTL = d
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		now:                time.Now,
		logger:             slog.Default(),
		verificationWindow: DefaultVerificationWindow,
		reactivationTTL:    DefaultReactivationTTL,
		passwordResetTTL:   DefaultPasswordResetTTL,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// clock returns the current time in UTC, truncated to microseconds to match
// PostgreSQL timestamp precision.
func (s settings) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
