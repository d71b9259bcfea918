package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts provider events by type and dispatch outcome.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawdesk",
		Subsystem: "billing",
		Name:      "events_total",
		Help:      "Provider events by event type and outcome (processed, duplicate, in_flight, ignored, failed).",
	}, []string{"event_type", "outcome"})

	// EventDuration tracks handler latency per event type.
	EventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pawdesk",
		Subsystem: "billing",
		Name:      "event_duration_seconds",
		Help:      "Provider event handling duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// WebhookRequestsTotal counts webhook HTTP responses by status code.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawdesk",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Webhook requests by HTTP status.",
	}, []string{"status"})

	// RotationAttemptsTotal counts single payment attempts by method and outcome.
	RotationAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawdesk",
		Subsystem: "billing",
		Name:      "rotation_attempts_total",
		Help:      "Payment attempts by method type and outcome.",
	}, []string{"method", "outcome"})

	// RotationsTotal counts finished rotations by result (succeeded, exhausted, settled).
	RotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawdesk",
		Subsystem: "billing",
		Name:      "rotations_total",
		Help:      "Payment method rotations by result.",
	}, []string{"result"})

	// CustomerRecreationsTotal counts self-healed customer mappings by reason.
	CustomerRecreationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawdesk",
		Subsystem: "billing",
		Name:      "customer_recreations_total",
		Help:      "Provider customers recreated by reason (placeholder, not_found, lookup_failed, missing).",
	}, []string{"reason"})

	// JobsTotal counts background jobs by type and result.
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pawdesk",
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Background jobs by type and result.",
	}, []string{"type", "result"})
)
