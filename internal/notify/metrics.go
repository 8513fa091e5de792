// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package notify

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

// Notifications counts notifications by kind and outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var Notifications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quill_notify_notifications_total",
		Help: "Total number of notifications by outcome",
	},
	[]string{"kind", "outcome"},
)

// QueueDepth is the number of notifications waiting for a worker.
var QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "quill_notify_queue_depth",
	Help: "Notifications waiting for delivery",
})

// RegisterMetrics registers notify package metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Notifications)
	reg.MustRegister(QueueDepth)
}
