// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconcileTotal counts entitlement reconciliations by outcome
	// (synced, skipped, no_customer, degraded).
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "entitlement",
		Subsystem: "billing",
		Name:      "reconcile_total",
		Help:      "Entitlement reconciliations by outcome.",
	}, []string{"outcome"})

	// WebhookEventsTotal counts provider events by type and processing outcome.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "entitlement",
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Stripe webhook events by event type and outcome.",
	}, []string{"event_type", "outcome"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "entitlement",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// RecordWritesTotal counts subscription record writes by path and whether
	// the condition allowed them.
	RecordWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "entitlement",
		Subsystem: "billing",
		Name:      "record_writes_total",
		Help:      "Subscription record upserts by source and result.",
	}, []string{"source", "result"})

	PlanChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "entitlement",
		Subsystem: "billing",
		Name:      "plan_changes_total",
		Help:      "Upgrade, portal and plan switch requests by operation and outcome.",
	}, []string{"operation", "outcome"})
)
