// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus collectors shared by the
// admission and billing paths. Collectors are registered with the
// default registry at init; expose them with promhttp on the ops
// listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestsAdmitted counts requests that passed the full admission
	// gate (auth, permissions, quota).
	RequestsAdmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llmanager_requests_admitted_total",
			Help: "Total requests admitted by the auth/quota gate",
		})

	// RequestsRejected counts rejected requests by reason
	// (invalid_api_key, insufficient_permissions, quota_exceeded,
	// model_not_available, internal).
	RequestsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmanager_requests_rejected_total",
			Help: "Total requests rejected by the auth/quota gate",
		},
		[]string{"reason"},
	)

	// QuotaBreaches counts quota check failures by scope (tenant, user).
	QuotaBreaches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmanager_quota_breaches_total",
			Help: "Total quota check failures by scope",
		},
		[]string{"scope"},
	)

	// TokensRecorded counts tokens recorded through the quota ledger,
	// labeled by model.
	TokensRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmanager_tokens_recorded_total",
			Help: "Total tokens billed through update_usage",
		},
		[]string{"model"},
	)

	// WebhookDeliveries counts webhook delivery outcomes
	// (success, failed).
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmanager_webhook_deliveries_total",
			Help: "Total webhook delivery outcomes",
		},
		[]string{"outcome"},
	)

	// WebhookAttempts counts individual webhook POST attempts.
	WebhookAttempts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llmanager_webhook_attempts_total",
			Help: "Total webhook delivery attempts including retries",
		})

	// CounterStoreDuration observes counter store operation latency.
	CounterStoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmanager_counter_store_duration_seconds",
			Help:    "Latency of counter store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(RequestsAdmitted)
	prometheus.MustRegister(RequestsRejected)
	prometheus.MustRegister(QuotaBreaches)
	prometheus.MustRegister(TokensRecorded)
	prometheus.MustRegister(WebhookDeliveries)
	prometheus.MustRegister(WebhookAttempts)
	prometheus.MustRegister(CounterStoreDuration)
}
