package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connector_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheBytesWritten tracks bytes written to the cache by layer
	CacheBytesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_cache_bytes_written_total",
			Help: "Total bytes of cache entries written",
		},
		[]string{"layer"}, // "redis"
	)

	// ConditionalRequestsSent tracks requests sent with If-None-Match or If-Modified-Since
	ConditionalRequestsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connector_conditional_requests_total",
			Help: "Total number of conditional requests sent to vendors",
		},
	)

	// NotModifiedResponses tracks 304 Not Modified responses served from cache
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "connector_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
