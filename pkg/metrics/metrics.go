package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure|limited|unconfirmed).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blogsphere_auth_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// SessionEvents counts session lifecycle transitions
	// (login|refresh|logout|terminate|terminate_others) and their outcome (ok|rejected|error).
	SessionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blogsphere_session_events_total",
			Help: "Session lifecycle transitions by event and outcome",
		},
		[]string{"event", "outcome"},
	)

	// RefreshConflicts counts refresh rotations that lost a concurrent compare-and-swap.
	RefreshConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blogsphere_refresh_conflicts_total",
			Help: "Refresh rotations rejected because another refresh won the race",
		},
	)

	// HybridAuth counts hybrid authentications by the credential that succeeded
	// (bearer|cookie) or "rejected".
	HybridAuth = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blogsphere_hybrid_auth_total",
			Help: "Hybrid authentications by resolved credential",
		},
		[]string{"method"},
	)

	// ActiveSessions is the number of session rows, refreshed by maintenance.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blogsphere_active_sessions",
			Help: "Number of device sessions currently stored",
		},
	)

	// RateLimitKeys is the number of keys tracked by the in-memory rate limiter.
	RateLimitKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blogsphere_rate_limit_keys",
			Help: "Keys with recorded attempts in the in-memory rate limiter",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blogsphere_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
