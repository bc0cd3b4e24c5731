package cache

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewEntry(t *testing.T) {
	lastMod := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	header := http.Header{}
	header.Set("Expires", time.Now().Add(time.Hour).Format(http.TimeFormat))
	header.Set("Last-Modified", lastMod.Format(http.TimeFormat))
	header.Set("ETag", `"page-1"`)
	header.Set("Content-Type", "application/json")
	body := []byte(`{"data": [{"id": 1}]}`)

	entry := NewEntry(http.StatusOK, header, body)

	assert.Equal(t, body, entry.Data)
	assert.Equal(t, http.StatusOK, entry.StatusCode)
	assert.Equal(t, `"page-1"`, entry.ETag)
	assert.True(t, entry.LastModified.Equal(lastMod), "LastModified = %v, want %v", entry.LastModified, lastMod)
	assert.Greater(t, entry.TTL(), 59*time.Minute)

	header.Set("Content-Type", "text/plain")
	assert.Equal(t, "application/json", entry.Headers.Get("Content-Type"), "entry headers share storage with the response")
}

func TestNewEntry_BadLastModified(t *testing.T) {
	header := http.Header{}
	header.Set("Last-Modified", "yesterday")

	entry := NewEntry(http.StatusOK, header, nil)

	assert.True(t, entry.LastModified.IsZero())
	assert.False(t, entry.Validatable())
}

func TestParseExpires(t *testing.T) {
	inAnHour := time.Now().Add(time.Hour)

	tests := []struct {
		name    string
		headers map[string]string
		// want is the expected freshness lifetime; 0 means already stale.
		want time.Duration
	}{
		{"expires header", map[string]string{"Expires": inAnHour.Format(http.TimeFormat)}, time.Hour},
		{"no headers", nil, DefaultTTL},
		{"unparseable expires", map[string]string{"Expires": "not a valid date"}, DefaultTTL},
		{"max-age", map[string]string{"Cache-Control": "public, max-age=60"}, time.Minute},
		{"max-age wins over expires", map[string]string{
			"Cache-Control": "max-age=60",
			"Expires":       inAnHour.Format(http.TimeFormat),
		}, time.Minute},
		{"max-age zero", map[string]string{"Cache-Control": "max-age=0"}, 0},
		{"no-store", map[string]string{"Cache-Control": "no-store"}, 0},
		{"expires in the past", map[string]string{"Expires": time.Now().Add(-time.Hour).Format(http.TimeFormat)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			for k, v := range tt.headers {
				header.Set(k, v)
			}

			now := time.Now()
			got := ParseExpires(header)

			assert.WithinDuration(t, now.Add(tt.want), got, 2*time.Second)
			if tt.want == 0 {
				assert.False(t, got.After(time.Now()), "ParseExpires() = %v, want no freshness", got)
			}
		})
	}
}

func TestShouldMakeConditionalRequest(t *testing.T) {
	tests := []struct {
		name  string
		entry *CacheEntry
		want  bool
	}{
		{"nil entry", nil, false},
		{"etag", &CacheEntry{ETag: `"abc123"`}, true},
		{"last-modified", &CacheEntry{LastModified: time.Now()}, true},
		{"both", &CacheEntry{ETag: `"abc123"`, LastModified: time.Now()}, true},
		{"no validator", &CacheEntry{Data: []byte("data")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldMakeConditionalRequest(tt.entry))
		})
	}
}

func TestAddConditionalHeaders(t *testing.T) {
	noon := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		entry       *CacheEntry
		noneMatch   string
		modifiedSet string
	}{
		{"etag", &CacheEntry{ETag: `"abc123"`}, `"abc123"`, ""},
		{"last-modified", &CacheEntry{LastModified: noon}, "", "Sun, 01 Jan 2023 12:00:00 GMT"},
		{"etag preferred", &CacheEntry{ETag: `"abc123"`, LastModified: noon}, `"abc123"`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/v1/items?offset=0", nil)
			AddConditionalHeaders(req, tt.entry)

			assert.Equal(t, tt.noneMatch, req.Header.Get("If-None-Match"))
			assert.Equal(t, tt.modifiedSet, req.Header.Get("If-Modified-Since"))
		})
	}
}

func TestAddConditionalHeaders_NilInputs(t *testing.T) {
	assert.NotPanics(t, func() {
		AddConditionalHeaders(nil, &CacheEntry{ETag: "test"})
		AddConditionalHeaders(&http.Request{}, nil)
	})
}
