// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package access

import "github.com/prometheus/client_golang/prometheus"

// Decisions counts gate evaluations by requirement and denial ("none" when allowed).
// Use RegisterMetrics to register this with a Prometheus registry.
var Decisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quill_access_decisions_total",
		Help: "Total number of access gate evaluations",
	},
	[]string{"requirement", "denial"},
)

// ForcedLogouts counts sessions destroyed by the gate because the account
// was no longer active.
var ForcedLogouts = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "quill_access_forced_logouts_total",
	Help: "Total number of sessions terminated by the access gate",
})

// RegisterMetrics registers access package metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Decisions)
	reg.MustRegister(ForcedLogouts)
}
