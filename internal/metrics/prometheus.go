// Package metrics provides Prometheus metrics collection for textgate.
// It tracks HTTP traffic, cache tier behavior, resilience outcomes, and
// batch execution.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "textgate"
)

// LatencyBuckets defines histogram buckets for latency metrics (in seconds).
var LatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
	1.0, 2.5, 5.0, 10.0, 15.0, 30.0, 45.0, 60.0,
}

// =============================================================================
// HTTP Metrics
// =============================================================================

var (
	// HTTPRequestsTotal counts HTTP requests by route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "status_code"},
	)

	// HTTPRequestLatency tracks end-to-end HTTP latency by route.
	HTTPRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_latency_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"route", "method"},
	)

	// PanicsRecovered counts panics recovered at the HTTP boundary.
	PanicsRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_recovered_total",
			Help:      "Total number of panics recovered in HTTP handlers",
		},
	)

	// RateLimitRejections counts requests rejected by rate limiting.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total requests rejected by rate limiting",
		},
		[]string{"limiter"}, // tenant, validation
	)
)

// =============================================================================
// Cache Metrics
// =============================================================================

var (
	// CacheHits counts cache hits by tier.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total cache hits by tier",
		},
		[]string{"tier"}, // l1, remote
	)

	// CacheMisses counts full cache misses.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total cache misses across all tiers",
		},
	)

	// CacheSets counts successful cache writes by tier.
	CacheSets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_sets_total",
			Help:      "Total cache writes by tier",
		},
		[]string{"tier"},
	)

	// CacheEvictions counts L1 evictions by cause.
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total L1 cache evictions by cause",
		},
		[]string{"cause"}, // lru, ttl, explicit
	)

	// CacheCompressions counts payloads that crossed the compression threshold.
	CacheCompressions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_compressions_total",
			Help:      "Total cache payloads stored compressed",
		},
	)

	// CacheDecryptFailures counts entries dropped due to decryption failure.
	CacheDecryptFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_decrypt_failures_total",
			Help:      "Total cache entries discarded because decryption failed",
		},
	)

	// CacheRemoteErrors counts remote tier errors swallowed by the facade.
	CacheRemoteErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_remote_errors_total",
			Help:      "Total remote cache tier errors by operation",
		},
		[]string{"op"}, // get, set, invalidate, ping
	)

	// CacheInFlightComputes tracks deduplicated producer executions in flight.
	CacheInFlightComputes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_in_flight_computes",
			Help:      "Number of cache producer computations currently in flight",
		},
	)

	// CacheStoredBytes counts bytes written to the cache by tier.
	CacheStoredBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_stored_bytes_total",
			Help:      "Total encoded bytes written to the cache by tier",
		},
		[]string{"tier"},
	)
)

// =============================================================================
// Resilience Metrics
// =============================================================================

var (
	// ResilienceAttempts counts provider call attempts by operation.
	ResilienceAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resilience_attempts_total",
			Help:      "Total provider call attempts by operation",
		},
		[]string{"operation"},
	)

	// ResilienceSuccesses counts successful executions by operation.
	ResilienceSuccesses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resilience_successes_total",
			Help:      "Total successful executions by operation",
		},
		[]string{"operation"},
	)

	// ResilienceFailures counts terminal failures by operation and error kind.
	ResilienceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resilience_failures_total",
			Help:      "Total terminal failures by operation and error kind",
		},
		[]string{"operation", "kind"},
	)

	// ResilienceFallbacks counts fallback responses served by operation.
	ResilienceFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resilience_fallbacks_total",
			Help:      "Total fallback responses served by operation",
		},
		[]string{"operation"},
	)

	// BreakerTransitions counts circuit breaker state transitions.
	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Total circuit breaker state transitions",
		},
		[]string{"operation", "from", "to"},
	)

	// BreakerState tracks the current breaker state per operation.
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"operation"},
	)

	// OperationDuration tracks end-to-end operation duration including retries.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Operation execution duration in seconds, retries included",
			Buckets:   LatencyBuckets,
		},
		[]string{"operation", "outcome"}, // success, fallback, error
	)
)

// =============================================================================
// Batch Metrics
// =============================================================================

var (
	// BatchItemsTotal counts batch items by terminal status.
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Total batch items processed by status",
		},
		[]string{"status"}, // success, error
	)

	// BatchInFlight tracks batch items currently executing.
	BatchInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_in_flight_items",
			Help:      "Number of batch items currently executing",
		},
	)

	// BatchDuration tracks whole-batch wall time.
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Whole-batch execution duration in seconds",
			Buckets:   LatencyBuckets,
		},
	)
)
