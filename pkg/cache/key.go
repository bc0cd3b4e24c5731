package cache

import (
	"net/url"
	"sort"
	"strings"
)

// keyPrefix namespaces all cache keys in Redis.
const keyPrefix = "connector:cache"

// CacheKey represents a unique identifier for a cached response.
type CacheKey struct {
	// Scope separates vendors sharing one Redis (typically the base URL host)
	Scope string

	// Endpoint is the resolved request path (e.g., "/v1/orgs/acme/repos")
	Endpoint string

	// QueryParams are the query parameters, paging parameters included
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: connector:cache:scope:endpoint:query1=val1:query2=val2
//
// Example:
//
//	connector:cache:api.example.com:v1/orgs/acme/repos:page=2:per_page=50
func (k CacheKey) String() string {
	parts := []string{keyPrefix}

	if k.Scope != "" {
		parts = append(parts, k.Scope)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Query params sorted by key; repeated values keep their order
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			for _, value := range k.QueryParams[key] {
				parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
			}
		}
	}

	return strings.Join(parts, ":")
}
