// Package config loads the connector configuration file: transport
// settings, paging defaults and the entity catalog.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/entity-connector/pkg/catalog"
	"github.com/Sternrassler/entity-connector/pkg/client"
	"github.com/Sternrassler/entity-connector/pkg/connector"
	"github.com/Sternrassler/entity-connector/pkg/logging"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding file values.
const (
	EnvBaseURL  = "CONNECTOR_BASE_URL"
	EnvRedisURL = "REDIS_URL"
	EnvLogLevel = "LOG_LEVEL"
	EnvPort     = "PORT"
)

// File is the decoded configuration file.
type File struct {
	Client     ClientConfig         `yaml:"client"`
	Redis      RedisConfig          `yaml:"redis"`
	Pagination PaginationConfig     `yaml:"pagination"`
	Logging    LoggingConfig        `yaml:"logging"`
	Server     ServerConfig         `yaml:"server"`
	Entities   []catalog.Descriptor `yaml:"entities"`
}

// ClientConfig configures the vendor HTTP client. A nil MaxRetries keeps the
// client default; zero disables retries. RateLimit is requests per second.
type ClientConfig struct {
	BaseURL        string            `yaml:"base_url"`
	UserAgent      string            `yaml:"user_agent"`
	Headers        map[string]string `yaml:"headers"`
	Timeout        time.Duration     `yaml:"timeout"`
	RateLimit      float64           `yaml:"rate_limit"`
	RateBurst      int               `yaml:"rate_burst"`
	MaxRetries     *int              `yaml:"max_retries"`
	InitialBackoff time.Duration     `yaml:"initial_backoff"`
}

// RedisConfig enables the response cache and shared rate limit state.
// Addr is either host:port or a redis:// URL; empty disables Redis.
type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// PaginationConfig holds the page size bounds applied to entities that leave
// them unset, plus the limits for full walks.
type PaginationConfig struct {
	DefaultSize    int           `yaml:"default_size"`
	MinSize        int           `yaml:"min_size"`
	MaxSize        int           `yaml:"max_size"`
	MaxPages       int           `yaml:"max_pages"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	PageTimeout    time.Duration `yaml:"page_timeout"`
}

// LoggingConfig selects the log level and console output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ServerConfig is the listen address of entity-proxy serve.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads the file at path, applies defaults and environment overrides.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes data, rejecting unknown keys, then applies defaults and
// environment overrides.
func Parse(data []byte) (*File, error) {
	var f File

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	f.applyEnv(os.Getenv)
	f.applyDefaults()

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) applyEnv(getenv func(string) string) {
	if v := getenv(EnvBaseURL); v != "" {
		f.Client.BaseURL = v
	}
	if v := getenv(EnvRedisURL); v != "" {
		f.Redis.Addr = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		f.Logging.Level = v
	}
	if v := getenv(EnvPort); v != "" {
		f.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}
}

func (f *File) applyDefaults() {
	def := client.DefaultConfig("", "")
	if f.Client.UserAgent == "" {
		f.Client.UserAgent = "entity-connector/0.1.0"
	}
	if f.Client.Timeout == 0 {
		f.Client.Timeout = def.Timeout
	}
	if f.Client.RateLimit == 0 {
		f.Client.RateLimit = def.RateLimit
	}
	if f.Client.RateBurst == 0 {
		f.Client.RateBurst = def.RateBurst
	}
	if f.Client.MaxRetries == nil {
		retries := def.MaxRetries
		f.Client.MaxRetries = &retries
	}
	if f.Client.InitialBackoff == 0 {
		f.Client.InitialBackoff = def.InitialBackoff
	}

	paging := connector.DefaultConfig()
	if f.Pagination.DefaultSize == 0 {
		f.Pagination.DefaultSize = paging.DefaultPageSize
	}
	if f.Pagination.MinSize == 0 {
		f.Pagination.MinSize = paging.MinPageSize
	}
	if f.Pagination.MaxSize == 0 {
		f.Pagination.MaxSize = paging.MaxPageSize
	}
	if f.Pagination.MaxPages == 0 {
		f.Pagination.MaxPages = paging.MaxPages
	}
	if f.Pagination.MaxConcurrency == 0 {
		f.Pagination.MaxConcurrency = paging.MaxConcurrency
	}
	if f.Pagination.PageTimeout == 0 {
		f.Pagination.PageTimeout = paging.PageTimeout
	}

	if f.Logging.Level == "" {
		f.Logging.Level = string(logging.LevelInfo)
	}
	if f.Server.Addr == "" {
		f.Server.Addr = ":8080"
	}
}

// Validate checks settings that have no usable default.
func (f *File) Validate() error {
	var errs []error
	if f.Client.BaseURL == "" {
		errs = append(errs, fmt.Errorf("client.base_url is required (or set %s)", EnvBaseURL))
	}
	if f.Client.MaxRetries != nil && *f.Client.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("client.max_retries must be >= 0 (got %d)", *f.Client.MaxRetries))
	}
	if f.Pagination.MinSize > f.Pagination.MaxSize {
		errs = append(errs, fmt.Errorf("pagination.min_size %d exceeds max_size %d",
			f.Pagination.MinSize, f.Pagination.MaxSize))
	}
	if len(f.Entities) == 0 {
		errs = append(errs, fmt.Errorf("at least one entity is required"))
	}
	return errors.Join(errs...)
}

// Catalog builds the validated entity catalog.
func (f *File) Catalog() (*catalog.Catalog, error) {
	return catalog.New(f.Entities...)
}

// ClientOptions projects the transport configuration. rdb may be nil.
func (f *File) ClientOptions(rdb *redis.Client) client.Config {
	return client.Config{
		BaseURL:        f.Client.BaseURL,
		UserAgent:      f.Client.UserAgent,
		Headers:        f.Client.Headers,
		Timeout:        f.Client.Timeout,
		RateLimit:      f.Client.RateLimit,
		RateBurst:      f.Client.RateBurst,
		MaxRetries:     *f.Client.MaxRetries,
		InitialBackoff: f.Client.InitialBackoff,
		Redis:          rdb,
	}
}

// ConnectorOptions projects the paging configuration.
func (f *File) ConnectorOptions() connector.Config {
	cfg := connector.DefaultConfig()
	cfg.DefaultPageSize = f.Pagination.DefaultSize
	cfg.MinPageSize = f.Pagination.MinSize
	cfg.MaxPageSize = f.Pagination.MaxSize
	cfg.MaxPages = f.Pagination.MaxPages
	cfg.MaxConcurrency = f.Pagination.MaxConcurrency
	cfg.PageTimeout = f.Pagination.PageTimeout
	return cfg
}

// LoggingOptions projects the logger configuration.
func (f *File) LoggingOptions() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(strings.ToLower(f.Logging.Level))
	cfg.Pretty = f.Logging.Pretty
	return cfg
}

// RedisOptions returns nil when Redis is not configured.
func (f *File) RedisOptions() (*redis.Options, error) {
	addr := strings.TrimSpace(f.Redis.Addr)
	if addr == "" {
		return nil, nil
	}
	if strings.Contains(addr, "://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: addr, DB: f.Redis.DB}, nil
}
