// Package telemetry provides Prometheus metrics and OpenTelemetry tracing helpers.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sessions
	SessionsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cypherchat_sessions_connected",
			Help: "Currently authenticated sessions",
		},
	)

	SessionsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cypherchat_sessions_rejected_total",
			Help: "Connections closed for a missing identity",
		},
	)

	SessionsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cypherchat_sessions_superseded_total",
			Help: "Sessions replaced by a newer connection for the same identity",
		},
	)

	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cypherchat_inbound_events_total",
			Help: "Inbound events by type",
		},
		[]string{"type"},
	)

	// Broadcast
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cypherchat_deliveries_total",
			Help: "Outbound event deliveries by result",
		},
		[]string{"result"}, // "sent" or "dropped"
	)

	// Storage
	MessagesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cypherchat_messages_appended_total",
			Help: "Messages appended to channel logs",
		},
	)

	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cypherchat_persistence_failures_total",
			Help: "Failed persistence reads and writes",
		},
		[]string{"store", "op"},
	)

	PersistLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cypherchat_persist_latency_seconds",
			Help:    "Persistence write latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"store"},
	)

	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cypherchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cypherchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)
)
