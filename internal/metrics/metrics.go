// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calmcp_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calmcp_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Invocation
var (
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calmcp_tool_invocations_total",
			Help: "Tool invocations by tool and outcome kind.",
		},
		[]string{"tool", "outcome"},
	)

	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calmcp_tool_invocation_duration_seconds",
			Help:    "Time spent in tool handlers.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"tool"},
	)
)

// Discovery
var (
	DiscoverySubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "calmcp_discovery_subscribers",
			Help: "Open discovery streams.",
		},
	)

	DiscoveryFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calmcp_discovery_frames_total",
			Help: "Discovery frames written by event type.",
		},
		[]string{"event"},
	)

	DiscoveryFaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calmcp_discovery_faults_total",
			Help: "Recovered discovery faults by stage.",
		},
		[]string{"stage"},
	)

	DiscoverySkippedTools = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calmcp_discovery_skipped_tools_total",
			Help: "Tools left out of a catalog frame because their schema could not be rendered.",
		},
		[]string{"tool"},
	)
)

// Cache
var (
	AvailabilityCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calmcp_availability_cache_lookups_total",
			Help: "Availability cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)
)
