// Package cache provides a Redis-backed response cache with ETag and
// Last-Modified support for conditional GET requests.
package cache

import (
	"net/http"
	"time"
)

// CacheEntry represents a cached vendor response.
type CacheEntry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// ETag for conditional requests (If-None-Match)
	ETag string `json:"etag,omitempty"`

	// Expires is when the entry is dropped from the cache
	Expires time.Time `json:"expires"`

	// LastModified for conditional requests (If-Modified-Since)
	LastModified time.Time `json:"last_modified,omitempty"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers,omitempty"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Validatable reports whether the entry carries a validator the vendor can
// answer with 304 Not Modified.
func (e *CacheEntry) Validatable() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}
