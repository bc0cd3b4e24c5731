// The cache manager backs conditional GET requests for catalog entities:
//
//   - Expiry from Cache-Control max-age, then Expires, then DefaultTTL
//   - Cache-Control no-store is never cached
//   - ETag support for conditional requests (If-None-Match)
//   - Last-Modified support (If-Modified-Since)
//   - Deterministic keys over scope, path and query (paging parameters included)
//   - Prometheus metrics for observability
//
// # Basic Usage
//
//	manager := cache.NewManager(redis.NewClient(&redis.Options{Addr: "localhost:6379"}))
//
//	key := cache.CacheKey{
//		Scope:       "api.example.com",
//		Endpoint:    "/v1/orgs/acme/repos",
//		QueryParams: url.Values{"page": []string{"2"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the vendor
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// a 304 Not Modified answer means entry.Data is still current
//	}
//
// # Metrics
//
//   - connector_cache_hits_total{layer="redis"}
//   - connector_cache_misses_total
//   - connector_cache_bytes_written_total{layer="redis"}
//   - connector_conditional_requests_total
//   - connector_304_responses_total
//   - connector_cache_errors_total{operation}
package cache
