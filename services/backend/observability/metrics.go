// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the backend.
//
// Metrics are exposed via the /metrics endpoint. All operations are
// thread-safe via Prometheus's internal locking. A nil *Metrics is a
// valid no-op recorder, so components never need nil checks at call sites.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "stratforge"

// Metrics holds all Prometheus metrics for the backend service.
type Metrics struct {
	// JobsSubmittedTotal counts submitted generation jobs.
	// Labels: kind (initial, reanalysis)
	JobsSubmittedTotal *prometheus.CounterVec

	// GenerationAttemptsTotal counts generator invocations.
	// Labels: status (success, error), error_kind (auth, bad_input,
	// model_unavailable, rate_limited, other, "") — empty on success
	GenerationAttemptsTotal *prometheus.CounterVec

	// GenerationDurationSeconds measures per-attempt generator latency.
	GenerationDurationSeconds prometheus.Histogram

	// WebhookEventsTotal counts ingested billing events.
	// Labels: status (applied, duplicate, unclassified, unverified,
	// malformed, error)
	WebhookEventsTotal *prometheus.CounterVec

	// CoinDebitsTotal counts debit outcomes.
	// Labels: status (ok, insufficient_funds)
	CoinDebitsTotal *prometheus.CounterVec
}

// New creates and registers all backend metrics on the registerer.
// Call once per process (double registration panics, as promauto does).
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsSubmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "jobs_submitted_total",
				Help:      "Total generation jobs submitted, by kind",
			},
			[]string{"kind"},
		),
		GenerationAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "generation_attempts_total",
				Help:      "Generator invocations by outcome",
			},
			[]string{"status", "error_kind"},
		),
		GenerationDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "generation_duration_seconds",
				Help:      "Per-attempt generator latency",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		WebhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "webhook_events_total",
				Help:      "Billing webhook events by processing status",
			},
			[]string{"status"},
		),
		CoinDebitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "coin_debits_total",
				Help:      "Coin guard debit outcomes",
			},
			[]string{"status"},
		),
	}
}

// ObserveJobSubmitted records a job submission. Nil-safe.
func (m *Metrics) ObserveJobSubmitted(kind string) {
	if m == nil {
		return
	}
	m.JobsSubmittedTotal.WithLabelValues(kind).Inc()
}

// ObserveGenerationAttempt records one generator invocation. Nil-safe.
func (m *Metrics) ObserveGenerationAttempt(status, errorKind string, seconds float64) {
	if m == nil {
		return
	}
	m.GenerationAttemptsTotal.WithLabelValues(status, errorKind).Inc()
	m.GenerationDurationSeconds.Observe(seconds)
}

// ObserveWebhookEvent records a webhook processing outcome. Nil-safe.
func (m *Metrics) ObserveWebhookEvent(status string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(status).Inc()
}

// ObserveCoinDebit records a debit outcome. Nil-safe.
func (m *Metrics) ObserveCoinDebit(status string) {
	if m == nil {
		return
	}
	m.CoinDebitsTotal.WithLabelValues(status).Inc()
}
