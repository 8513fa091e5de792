// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package web

import "github.com/prometheus/client_golang/prometheus"

// Requests counts served requests by method, route pattern and status code.
var Requests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quill_http_requests_total",
		Help: "Total number of HTTP requests served",
	},
	[]string{"method", "route", "status"},
)

// RequestDuration observes request latency by method and route pattern.
var RequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "quill_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route"},
)

// Throttled counts requests refused by the rate limiter, by route.
var Throttled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quill_http_throttled_total",
		Help: "Total number of requests refused by rate limiting",
	},
	[]string{"route"},
)

// RegisterMetrics registers web package metrics with the given Prometheus registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Requests)
	reg.MustRegister(RequestDuration)
	reg.MustRegister(Throttled)
}
