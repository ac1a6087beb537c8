// Copyright (C) 2025 Sama Wellness (engineering@samawellness.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the proxy.
//
// # Description
//
// Metrics cover the relay lifecycle: request counters, active stream
// gauges, stream duration histograms, client disconnects, retrieval
// failures, and persisted conversation turns. Exposed on /metrics for
// Prometheus scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "voicebridge"

const relaySubsystem = "relay"

// RelayMetrics holds all Prometheus metrics for the chat relay.
//
// Initialize once at startup via InitMetrics(); duplicate initialization
// panics on re-registration.
type RelayMetrics struct {
	// RequestsTotal counts chat completion requests.
	// Labels: status (success, upstream_error, storage_error, invalid_request, disconnect)
	RequestsTotal *prometheus.CounterVec

	// ActiveStreams tracks currently open SSE relays.
	ActiveStreams prometheus.Gauge

	// StreamDurationSeconds measures total relay duration.
	// Labels: status (success, upstream_error, disconnect)
	StreamDurationSeconds *prometheus.HistogramVec

	// ClientDisconnectsTotal counts platform disconnects mid-stream.
	ClientDisconnectsTotal prometheus.Counter

	// RetrievalFailuresTotal counts knowledge-base lookups that failed
	// and were skipped.
	RetrievalFailuresTotal prometheus.Counter

	// PersistedTurnsTotal counts messages written to the conversation
	// store. Labels: role (user, assistant)
	PersistedTurnsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, initialized by InitMetrics().
var DefaultMetrics *RelayMetrics

// InitMetrics creates and registers all proxy metrics on the default
// Prometheus registry. Call once at startup.
func InitMetrics() *RelayMetrics {
	DefaultMetrics = &RelayMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "requests_total",
				Help:      "Total chat completion requests by outcome",
			},
			[]string{"status"},
		),

		ActiveStreams: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open SSE relays",
			},
		),

		StreamDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "stream_duration_seconds",
				Help:      "Total relay duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),

		ClientDisconnectsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total platform disconnects observed mid-stream",
			},
		),

		RetrievalFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "retrieval_failures_total",
				Help:      "Total knowledge-base lookups that failed and were skipped",
			},
		),

		PersistedTurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relaySubsystem,
				Name:      "persisted_turns_total",
				Help:      "Total conversation turns written to the store by role",
			},
			[]string{"role"},
		),
	}
	return DefaultMetrics
}
