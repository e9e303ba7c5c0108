// Package metrics holds the Prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RuleEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexus",
		Name:      "rule_evaluations_total",
		Help:      "Alert rule evaluations by outcome (triggered, passed, cooldown, error).",
	}, []string{"outcome"})

	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexus",
		Name:      "alerts_created_total",
		Help:      "Alerts persisted, by source, type and severity.",
	}, []string{"source", "type", "severity"})

	AlertsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexus",
		Name:      "alerts_deduplicated_total",
		Help:      "Alert creations suppressed by an open alert of the same type.",
	}, []string{"type"})

	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexus",
		Name:      "delivery_attempts_total",
		Help:      "Notification delivery attempts by channel type and resulting status.",
	}, []string{"channel_type", "status"})

	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nexus",
		Name:      "job_runs_total",
		Help:      "Background job executions by outcome (success, failure, skipped).",
	}, []string{"job", "outcome"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nexus",
		Name:      "job_duration_seconds",
		Help:      "Background job execution time.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"job"})
)
