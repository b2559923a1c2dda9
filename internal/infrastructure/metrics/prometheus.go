// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mediagate"

var (
	// CacheOperationsTotal tracks result cache operations.
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	//   - cache_type: memory, redis
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of cache operations",
		},
		[]string{"operation", "status", "cache_type"},
	)

	// DBQueriesTotal tracks database queries.
	// Labels:
	//   - query_type: select
	//   - table: api_keys
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal counts handled requests.
	// Labels:
	//   - route: chi route pattern
	//   - method: HTTP method
	//   - status: status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration observes request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	// RateLimitDecisionsTotal tracks limiter outcomes.
	// Labels:
	//   - result: allowed, rejected, error
	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Total number of rate limit decisions",
		},
		[]string{"result"},
	)

	// AuthFailuresTotal tracks rejected credentials.
	// Labels:
	//   - reason: missing, invalid
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of rejected API keys",
		},
		[]string{"reason"},
	)

	// ExtractorCallsTotal tracks extractor invocations.
	// Labels:
	//   - operation: resolve, formats, playlist, search, download
	//   - result: success, not_found, unavailable, malformed, busy
	ExtractorCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractor_calls_total",
			Help:      "Total number of extractor invocations",
		},
		[]string{"operation", "result"},
	)

	// ExtractorDuration observes extractor latency.
	ExtractorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extractor_duration_seconds",
			Help:      "Extractor invocation latency",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"operation"},
	)

	// ExtractorQueueDepth reports callers waiting for an extraction slot.
	ExtractorQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "extractor_queue_depth",
			Help:      "Number of callers waiting for an extraction slot",
		},
	)

	// ActiveStreams reports relays currently in progress.
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "proxy_active_streams",
			Help:      "Number of in-flight stream relays",
		},
	)

	// StreamBytesTotal counts bytes relayed to clients.
	StreamBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_bytes_total",
			Help:      "Total number of bytes relayed to clients",
		},
	)

	// UpstreamResponsesTotal counts upstream statuses seen by the proxy.
	// Labels:
	//   - status: upstream status code, or "error" when no response arrived
	UpstreamResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proxy_upstream_responses_total",
			Help:      "Total number of upstream responses by status",
		},
		[]string{"status"},
	)

	// HandlesIssuedTotal counts issued stream handles.
	HandlesIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handles_issued_total",
			Help:      "Total number of stream handles issued",
		},
	)

	// DownloadTasksTotal tracks download materializations.
	// Labels:
	//   - mode: local, queue, worker
	//   - result: success, error, retried
	DownloadTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_tasks_total",
			Help:      "Total number of download materializations",
		},
		[]string{"mode", "result"},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// Cache type constants.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// DB query type constants.
const (
	DBQuerySelect = "select"
)

// Table name constants.
const (
	TableAPIKeys = "api_keys"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

// Rate limit result constants.
const (
	RateLimitAllowed  = "allowed"
	RateLimitRejected = "rejected"
	RateLimitError    = "error"
)

// Extractor result constants.
const (
	ExtractorSuccess     = "success"
	ExtractorNotFound    = "not_found"
	ExtractorUnavailable = "unavailable"
	ExtractorMalformed   = "malformed"
	ExtractorBusy        = "busy"
)

// Download mode and result constants.
const (
	DownloadModeLocal  = "local"
	DownloadModeQueue  = "queue"
	DownloadModeWorker = "worker"

	DownloadSuccess = "success"
	DownloadError   = "error"
	DownloadRetried = "retried"
)
