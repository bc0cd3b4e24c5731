package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when the vendor sends no caching headers
	DefaultTTL = 5 * time.Minute
)

// NewEntry builds a cache entry from a response that has already been read.
func NewEntry(statusCode int, header http.Header, body []byte) *CacheEntry {
	entry := &CacheEntry{
		Data:       body,
		ETag:       header.Get("ETag"),
		StatusCode: statusCode,
		Headers:    header.Clone(),
		CachedAt:   time.Now(),
		Expires:    ParseExpires(header),
	}

	if lastModStr := header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry
}

// ParseExpires derives the expiry from Cache-Control, then Expires, then
// DefaultTTL. "no-store" yields an already expired time so nothing is cached.
func ParseExpires(headers http.Header) time.Time {
	now := time.Now()

	if cc := headers.Get("Cache-Control"); cc != "" {
		for _, directive := range strings.Split(cc, ",") {
			directive = strings.ToLower(strings.TrimSpace(directive))
			switch {
			case directive == "no-store":
				return now
			case strings.HasPrefix(directive, "max-age="):
				if secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age=")); err == nil {
					if secs <= 0 {
						return now
					}
					return now.Add(time.Duration(secs) * time.Second)
				}
			}
		}
	}

	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return now.Add(DefaultTTL)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return now.Add(DefaultTTL)
	}
	if expires.Before(now) {
		return now
	}
	return expires
}

// ShouldMakeConditionalRequest determines if we should add conditional
// request headers (If-None-Match or If-Modified-Since) based on the cache entry.
func ShouldMakeConditionalRequest(entry *CacheEntry) bool {
	return entry != nil && entry.Validatable()
}

// AddConditionalHeaders adds If-None-Match (ETag) or If-Modified-Since headers
// to the request if the cache entry supports conditional requests.
func AddConditionalHeaders(req *http.Request, entry *CacheEntry) {
	if entry == nil || req == nil {
		return
	}

	// Prefer ETag over Last-Modified
	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
}
