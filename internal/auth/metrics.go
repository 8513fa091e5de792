// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultSuccess   = "success"
	ResultRejected  = "rejected"
	ResultNotActive = "not_active"
	ResultError     = "error"
)

// SignIns counts sign-in attempts by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var SignIns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quill_auth_sign_ins_total",
		Help: "Total number of sign-in attempts",
	},
	[]string{"result"},
)

// Registrations counts completed registrations.
var Registrations = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "quill_auth_registrations_total",
	Help: "Total number of accounts registered",
})

// VerificationAttempts counts email verification token redemptions by result.
var VerificationAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quill_auth_verification_attempts_total",
		Help: "Total number of email verification attempts",
	},
	[]string{"result"},
)

// StatusTransitions counts applied lifecycle transitions.
var StatusTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quill_auth_status_transitions_total",
		Help: "Total number of account status transitions",
	},
	[]string{"from", "to"},
)

// SessionsDestroyed counts sessions removed in bulk by lifecycle changes.
var SessionsDestroyed = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "quill_auth_sessions_destroyed_total",
	Help: "Total number of sessions destroyed by account-wide invalidation",
})

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(SignIns)
	reg.MustRegister(Registrations)
	reg.MustRegister(VerificationAttempts)
	reg.MustRegister(StatusTransitions)
	reg.MustRegister(SessionsDestroyed)
}
