package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/entity-connector/pkg/catalog"
	"github.com/Sternrassler/entity-connector/pkg/logging"
)

const sampleConfig = `
client:
  base_url: https://api.example.com/v1
  user_agent: TestApp/1.0.0
  headers:
    X-Api-Key: secret
  timeout: 10s
  max_retries: 0
  initial_backoff: 250ms
redis:
  addr: localhost:6379
  db: 3
pagination:
  default_size: 50
  max_pages: 20
logging:
  level: DEBUG
  pretty: true
entities:
  - name: contacts
    endpoint: /accounts/{account_id}/contacts
    required_filters: [account_id]
    root_path: data
    operators:
      gt: "{field}__gt"
    static_params:
      fields: id,name
    pagination:
      style: offset
      total_path: meta.total
      max_size: 200
  - name: events
    endpoint: /events
    root_path: data
    pagination:
      style: cursor
      cursor_param: after
      cursor_path: paging.cursors.after
`

// clearEnv neutralises overrides inherited from the test environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvBaseURL, EnvRedisURL, EnvLogLevel, EnvPort} {
		t.Setenv(key, "")
	}
}

func TestParse(t *testing.T) {
	clearEnv(t)

	f, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if f.Client.BaseURL != "https://api.example.com/v1" {
		t.Errorf("BaseURL = %q", f.Client.BaseURL)
	}
	if f.Client.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", f.Client.Timeout)
	}
	if f.Client.InitialBackoff != 250*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 250ms", f.Client.InitialBackoff)
	}
	if *f.Client.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want explicit 0", *f.Client.MaxRetries)
	}
	if f.Client.Headers["X-Api-Key"] != "secret" {
		t.Errorf("Headers = %v", f.Client.Headers)
	}
	if len(f.Entities) != 2 {
		t.Fatalf("Entities = %d, want 2", len(f.Entities))
	}
	if f.Entities[0].Pagination.TotalPath != "meta.total" {
		t.Errorf("TotalPath = %q", f.Entities[0].Pagination.TotalPath)
	}
}

func TestParse_Defaults(t *testing.T) {
	clearEnv(t)

	f, err := Parse([]byte(`
client:
  base_url: https://api.example.com
entities:
  - name: status
    endpoint: /status
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"user agent", f.Client.UserAgent, "entity-connector/0.1.0"},
		{"timeout", f.Client.Timeout, 30 * time.Second},
		{"rate limit", f.Client.RateLimit, 10.0},
		{"rate burst", f.Client.RateBurst, 5},
		{"max retries", *f.Client.MaxRetries, 2},
		{"initial backoff", f.Client.InitialBackoff, time.Second},
		{"default size", f.Pagination.DefaultSize, 100},
		{"min size", f.Pagination.MinSize, 1},
		{"max size", f.Pagination.MaxSize, 1000},
		{"max pages", f.Pagination.MaxPages, 1000},
		{"max concurrency", f.Pagination.MaxConcurrency, 4},
		{"log level", f.Logging.Level, "info"},
		{"server addr", f.Server.Addr, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv(EnvBaseURL, "https://staging.example.com")
	t.Setenv(EnvRedisURL, "redis://cache:6380/2")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvPort, "9090")

	f, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if f.Client.BaseURL != "https://staging.example.com" {
		t.Errorf("BaseURL = %q, want env override", f.Client.BaseURL)
	}
	if f.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", f.Logging.Level)
	}
	if f.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", f.Server.Addr)
	}

	opts, err := f.RedisOptions()
	if err != nil {
		t.Fatalf("RedisOptions() error = %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 {
		t.Errorf("RedisOptions() = %s db %d, want cache:6380 db 2", opts.Addr, opts.DB)
	}
}

func TestParse_Errors(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name     string
		data     string
		contains string
	}{
		{"empty file", "", "client.base_url is required"},
		{"no entities", "client:\n  base_url: https://api.example.com\n", "at least one entity is required"},
		{"unknown key", "client:\n  base_uri: https://api.example.com\n", "field base_uri not found"},
		{"negative retries", "client:\n  base_url: https://x\n  max_retries: -1\nentities:\n  - name: a\n    endpoint: /a\n", "max_retries must be >= 0"},
		{"bad duration", "client:\n  timeout: soon\n", "decode config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.contains)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "connector.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(f.Entities) != 2 {
		t.Errorf("Entities = %d, want 2", len(f.Entities))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestFile_Catalog(t *testing.T) {
	clearEnv(t)

	f, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cat, err := f.Catalog()
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}

	desc, err := cat.Lookup("CONTACTS")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if desc.Pagination.Style != catalog.StyleOffset || desc.Pagination.MaxSize != 200 {
		t.Errorf("Pagination = %+v", desc.Pagination)
	}
	if desc.Operators["gt"] != "{field}__gt" {
		t.Errorf("Operators = %v", desc.Operators)
	}

	// Invalid rows surface as catalog configuration errors
	f.Entities = append(f.Entities, catalog.Descriptor{Name: "broken", Endpoint: "/x/{id}"})
	if _, err := f.Catalog(); !errors.Is(err, catalog.ErrInvalidDescriptor) {
		t.Errorf("Catalog() error = %v, want ErrInvalidDescriptor", err)
	}
}

func TestFile_Projections(t *testing.T) {
	clearEnv(t)

	f, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	cc := f.ClientOptions(nil)
	if cc.BaseURL != f.Client.BaseURL || cc.MaxRetries != 0 || cc.Timeout != 10*time.Second {
		t.Errorf("ClientOptions() = %+v", cc)
	}
	if cc.Redis != nil {
		t.Error("ClientOptions(nil) should not set Redis")
	}

	conn := f.ConnectorOptions()
	if conn.DefaultPageSize != 50 || conn.MaxPages != 20 || conn.MaxPageSize != 1000 {
		t.Errorf("ConnectorOptions() = %+v", conn)
	}
	if conn.KeyPolicy == nil {
		t.Error("ConnectorOptions() should keep the default key policy")
	}

	lc := f.LoggingOptions()
	if lc.Level != logging.LevelDebug || !lc.Pretty {
		t.Errorf("LoggingOptions() = %+v", lc)
	}

	opts, err := f.RedisOptions()
	if err != nil {
		t.Fatalf("RedisOptions() error = %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 3 {
		t.Errorf("RedisOptions() = %s db %d", opts.Addr, opts.DB)
	}

	f.Redis.Addr = ""
	if opts, _ := f.RedisOptions(); opts != nil {
		t.Error("RedisOptions() should be nil without an address")
	}
}
