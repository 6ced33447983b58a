// Package observability holds the Prometheus collectors exported at /metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "todaride"

var (
	RidesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rides_created_total", Help: "Total rides created"})
	MatchesTotal      = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "matches_total", Help: "Driver assignments by entry point"},
		[]string{"source"},
	)
	ClaimConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "claim_conflicts_total", Help: "Conditional claims that lost a race"})
	DispatchLatency     = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "dispatch_latency_seconds", Help: "Dispatch transaction latency"})

	RideTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Ride lifecycle transitions"},
		[]string{"action"},
	)

	PresenceWritesTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "presence_writes_total", Help: "Presence upserts written"})
	PresenceDebouncedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "presence_debounced_total", Help: "Presence heartbeats skipped by debounce"})
	PresenceSweptTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "presence_swept_total", Help: "Drivers flipped offline by the stale sweep"})

	QueueOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "queue_operations_total", Help: "Terminal queue operations"},
		[]string{"operation"},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "Domain events handed to sinks"},
		[]string{"type"},
	)
	EventPublishErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "event_publish_errors_total", Help: "Event sink failures"},
		[]string{"sink"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
