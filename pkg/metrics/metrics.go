// Package metrics exposes the Prometheus registry shared by the connector packages.
// Metrics are defined next to the code that records them (client, cache,
// ratelimit, pagination, connector) and registered via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every connector metric is registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the matching gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves all registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - connector_requests_total{method, status} (Counter): Vendor requests by method and status
//   - connector_request_duration_seconds{method} (Histogram): Vendor request duration
//   - connector_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - connector_retries_total{error_class} (Counter): Retry attempts by error class
//   - connector_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - connector_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - connector_rate_limit_remaining (Gauge): Requests left in the vendor window
//   - connector_rate_limit_blocks_total (Counter): Requests blocked on an exhausted quota
//   - connector_rate_limit_throttles_total (Counter): Requests delayed on a low quota
//
// Cache Metrics (pkg/cache):
//   - connector_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - connector_cache_misses_total (Counter): Cache misses
//   - connector_cache_bytes_written_total{layer="redis"} (Counter): Bytes written to the cache
//   - connector_cache_errors_total{operation} (Counter): Cache operation errors
//   - connector_conditional_requests_total (Counter): Requests sent with If-None-Match/If-Modified-Since
//   - connector_304_responses_total (Counter): 304 Not Modified responses served from cache
//
// Pagination Metrics (pkg/pagination):
//   - connector_pages_fetched_total{style} (Counter): Pages returned to callers
//   - connector_records_extracted_total{style} (Counter): Records returned in pages
//   - connector_page_replay_requests_total{style} (Counter): Round trips replaying cursor pages
//   - connector_page_failures_total{style, reason} (Counter): Pages degraded to empty (transport, cancelled)
//
// Connector Metrics (pkg/connector):
//   - connector_fetch_failures_swallowed_total{entity} (Counter): Failures returned as empty or partial results
//   - connector_fetch_all_duration_seconds{entity} (Histogram): Full entity fetch duration
//
// Example Prometheus Queries:
//
//   # Replay overhead per cursor page
//   sum(rate(connector_page_replay_requests_total[5m])) by (style) /
//   sum(rate(connector_pages_fetched_total[5m])) by (style)
//
//   # Silently degraded fetches
//   sum(rate(connector_fetch_failures_swallowed_total[5m])) by (entity)
//
//   # Vendor quota headroom
//   connector_rate_limit_remaining < 20
//
//   # P95 request latency
//   histogram_quantile(0.95, rate(connector_request_duration_seconds_bucket[5m]))
//
//   # Conditional GET effectiveness
//   rate(connector_304_responses_total[5m]) / rate(connector_conditional_requests_total[5m])
