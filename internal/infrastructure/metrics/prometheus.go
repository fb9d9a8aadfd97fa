// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vodcache"

var (
	// StreamRequestsTotal tracks incoming range-streaming requests.
	// Labels:
	//   - outcome: cache_hit, cache_miss, error
	StreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_requests_total",
			Help:      "Total number of stream requests by outcome",
		},
		[]string{"outcome"},
	)

	// CacheOperationsTotal tracks disk cache operations.
	// Labels:
	//   - operation: lookup, record, evict
	//   - status: hit, miss, success, error
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of disk cache operations",
		},
		[]string{"operation", "status"},
	)

	// CacheBytesUsed reports current disk cache usage in bytes.
	CacheBytesUsed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_bytes_used",
			Help:      "Current size of the transcoded-file cache in bytes",
		},
	)

	// CacheEvictionsTotal tracks cache evictions by cause.
	// Labels:
	//   - reason: ttl, lru
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Total number of cache entries evicted",
		},
		[]string{"reason"},
	)

	// JobsTotal tracks transcode job lifecycle transitions.
	// Labels:
	//   - status: pending, processing, complete, failed
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of transcode jobs by terminal or transition status",
		},
		[]string{"status"},
	)

	// JobDurationSeconds observes wall-clock transcode duration.
	JobDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time spent transcoding a single job",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 12), // 5s .. ~1.7h
		},
	)

	// ProbeCacheOperationsTotal tracks codec-probe memoization hits/misses.
	// Labels:
	//   - status: hit, miss
	ProbeCacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_cache_operations_total",
			Help:      "Total number of codec probe cache lookups",
		},
		[]string{"status"},
	)

	// DBQueriesTotal tracks database queries against the job registry.
	// Labels:
	//   - query_type: select, insert, update
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type"},
	)

	// SingleflightRequestsTotal tracks stream-request coalescing behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight-coalesced stream requests",
		},
		[]string{"result"},
	)

	// NotifierErrorsTotal counts failed best-effort job-ready notifications.
	// The registry stays authoritative, so these are logged, not fatal.
	NotifierErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifier_errors_total",
			Help:      "Total number of failed job-ready notifications",
		},
	)
)

// Stream outcome constants.
const (
	StreamOutcomeCacheHit  = "cache_hit"
	StreamOutcomeCacheMiss = "cache_miss"
	StreamOutcomeError     = "error"
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
	CacheOpLookup = "lookup"
	CacheOpRecord = "record"
	CacheOpEvict  = "evict"
)

// Cache eviction reason constants.
const (
	EvictReasonTTL = "ttl"
	EvictReasonLRU = "lru"
)

// Job status constants, mirroring model.JobStatus string values.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"
)

// DB query type constants.
const (
	DBQuerySelect = "select"
	DBQueryInsert = "insert"
	DBQueryUpdate = "update"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
