// Package metrics provides the Prometheus registry reference and HTTP handler
// for the Stripe helpers. All metrics are defined in their respective packages
// (client, cache, ratelimit, pagination, resolve, refund) to maintain
// modularity and avoid circular dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the helpers.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - stripe_throttled_total (Counter): 429 responses recorded
//   - stripe_rate_limit_blocks_total (Counter): Requests refused because the cooldown exceeded the max wait
//   - stripe_rate_limit_waits_total (Counter): Requests delayed until the cooldown ended
//   - stripe_rate_limit_cooldown_seconds (Gauge): Most recently applied cooldown
//
// Cache Metrics (pkg/cache):
//   - stripe_cache_hits_total{resource} (Counter): Retrieve lookups served from Redis
//   - stripe_cache_misses_total{resource} (Counter): Retrieve lookups not in Redis
//   - stripe_cache_size_bytes (Counter): Bytes written to the cache
//   - stripe_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - stripe_requests_total{resource, status} (Counter): Requests by resource and HTTP status
//   - stripe_request_duration_seconds{resource} (Histogram): Call duration including retries
//   - stripe_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - stripe_retries_total{error_class} (Counter): Retry attempts by error class
//   - stripe_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - stripe_retry_exhausted_total{error_class} (Counter): Calls that exhausted max retries
//
// Operation Metrics:
//   - stripe_pages_fetched_total{resource, mode} (Counter): List pages by mode (date_window, limit)
//   - stripe_enrichment_lookups_total{resource, outcome} (Counter): Enrichment lookups (ok, error)
//   - stripe_refunds_total{outcome} (Counter): Safe refunds by outcome
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(stripe_cache_hits_total[5m])) /
//   (sum(rate(stripe_cache_hits_total[5m])) + sum(rate(stripe_cache_misses_total[5m])))
//
//   # Throttling
//   rate(stripe_throttled_total[5m]) > 0
//
//   # Request Error Rate
//   rate(stripe_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(stripe_request_duration_seconds_bucket[5m]))
//
//   # Refunds rejected for balance
//   rate(stripe_refunds_total{outcome="insufficient_balance"}[1h])
