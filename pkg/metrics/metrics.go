package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatkit_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatkit_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"method", "path"},
	)

	// Chat pipeline metrics
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatkit_turns_total",
			Help: "Chat turns accepted, by mode and reconciliation kind",
		},
		[]string{"mode", "kind"}, // kind: new-turn, regenerate, no-trailing-user, stateless
	)

	TurnOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatkit_turn_outcomes_total",
			Help: "Chat turns by final stream state",
		},
		[]string{"state"}, // completed, aborted
	)

	StreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatkit_stream_duration_seconds",
			Help:    "Time from stream start to completion",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	TokensStreamed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatkit_stream_deltas_total",
			Help: "Text deltas forwarded to clients",
		},
	)

	MessagesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatkit_reconcile_deleted_messages_total",
			Help: "Stored messages removed by reconciliation",
		},
	)

	PostCompletionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatkit_post_completion_failures_total",
			Help: "Failures while recording a completed turn",
		},
	)

	HookFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatkit_hook_failures_total",
			Help: "Lifecycle hook errors and panics",
		},
		[]string{"operation"},
	)

	VersionConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatkit_version_conflicts_total",
			Help: "Turns rejected because the conversation changed concurrently",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatkit_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
