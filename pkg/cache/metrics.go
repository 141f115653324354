package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by resource
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stripe_cache_hits_total",
			Help: "Total number of Stripe object cache hits",
		},
		[]string{"resource"},
	)

	// CacheMisses tracks cache misses by resource
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stripe_cache_misses_total",
			Help: "Total number of Stripe object cache misses",
		},
		[]string{"resource"},
	)

	// CacheSize tracks bytes written to the cache
	CacheSize = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stripe_cache_size_bytes",
			Help: "Total bytes written to the Stripe object cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stripe_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
