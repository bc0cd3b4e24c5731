// Package testutil provides a mock vendor API and a recording transport for tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// MockResponse defines the behavior for a mock vendor endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockVendor is a configurable mock vendor REST API.
type MockVendor struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// Tracking
	requestCount     int
	conditionalCount int
	lastRequest      *http.Request
	queries          []string
}

// NewMockVendor starts a mock vendor server. Unknown paths answer 404.
func NewMockVendor() *MockVendor {
	mock := &MockVendor{
		handlers: make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.lastRequest = r.Clone(r.Context())
		mock.queries = append(mock.queries, r.URL.RawQuery)
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.conditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		w.Header().Set("X-RateLimit-Remaining", "100")
		w.Header().Set("X-RateLimit-Reset", "60")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if !exists {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "not found"}`))
			return
		}
		handler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockVendor) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockVendor) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockVendor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.lastRequest = nil
	m.queries = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockVendor) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockVendor) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockVendor) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// ConditionalCount returns the number of conditional requests.
func (m *MockVendor) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// Queries returns the raw query strings received, in order.
func (m *MockVendor) Queries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.queries...)
}

// LastRequest returns a copy of the most recent request.
func (m *MockVendor) LastRequest() *http.Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequest
}

// Items builds n records {"id": start+i, "name": "item-<id>"}.
func Items(start, n int) []map[string]any {
	items := make([]map[string]any, n)
	for i := range items {
		id := start + i
		items[i] = map[string]any{"id": id, "name": "item-" + strconv.Itoa(id)}
	}
	return items
}

// OffsetHandler serves items under "data" using offset and limit query
// parameters and reports the total under "meta.total".
func OffsetHandler(items []map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = len(items)
		}

		page := window(items, offset, limit)
		writeJSON(w, http.StatusOK, map[string]any{
			"data": page,
			"meta": map[string]any{"total": len(items)},
		})
	}
}

// CursorHandler serves items under "data" with an opaque "after" cursor at
// "paging.cursors.after". The cursor is absent on the last page.
func CursorHandler(items []map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset := 0
		if after := r.URL.Query().Get("after"); after != "" {
			n, err := strconv.Atoi(after[1:])
			if err != nil || after[0] != 'c' {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad cursor"})
				return
			}
			offset = n
		}
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			limit = len(items)
		}

		page := window(items, offset, limit)
		body := map[string]any{"data": page}
		if next := offset + len(page); next < len(items) {
			body["paging"] = map[string]any{
				"cursors": map[string]any{"after": "c" + strconv.Itoa(next)},
			}
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func window(items []map[string]any, offset, limit int) []map[string]any {
	if offset >= len(items) || offset < 0 {
		return []map[string]any{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, _ := json.Marshal(body)
	w.WriteHeader(status)
	w.Write(data)
}

// NewHealthyResponse creates a 200 OK response with quota and cache headers.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"ETag":          `"test-etag-123"`,
			"Cache-Control": "max-age=300",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"Retry-After":           "30",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "internal server error"}`,
	}
}
