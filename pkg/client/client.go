// Package client provides the vendor HTTP transport with request pacing,
// rate limit tracking, conditional-GET caching, and retries by error class.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/entity-connector/pkg/cache"
	"github.com/Sternrassler/entity-connector/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for vendor requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_requests_total",
		Help: "Total vendor requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connector_request_duration_seconds",
		Help:    "Vendor request duration in seconds by method",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_errors_total",
		Help: "Total vendor errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// maxErrorBody bounds the body excerpt kept in APIError messages.
const maxErrorBody = 256

// Response is a fully read vendor response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// FromCache is true when the body was served from the cache after a 304.
	FromCache bool
}

// Client is the vendor HTTP transport.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	limiter    *rate.Limiter
	tracker    *ratelimit.Tracker
	cache      *cache.Manager
	retry      RetryPolicy
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is prepended to every request path, e.g. "https://api.example.com/v1".
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Headers are static headers sent with every request.
	Headers map[string]string

	// Timeout per HTTP round trip.
	Timeout time.Duration

	// Request pacing; RateLimit <= 0 disables it.
	RateLimit float64 // Requests per second
	RateBurst int

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration

	// Redis enables the conditional-GET cache and shares rate limit state
	// between instances. Optional.
	Redis *redis.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:        baseURL,
		UserAgent:      userAgent,
		Timeout:        30 * time.Second,
		RateLimit:      10,
		RateBurst:      5,
		MaxRetries:     2,
		InitialBackoff: 1 * time.Second,
	}
}

// New creates a new vendor client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "vendor-client").Str("host", base.Host).Logger()

	var store ratelimit.Store
	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		store = ratelimit.NewRedisStore(cfg.Redis, base.Host)
		cacheManager = cache.NewManager(cfg.Redis)
	} else {
		store = ratelimit.NewMemoryStore()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    base,
		limiter:    limiter,
		tracker:    ratelimit.NewTracker(store, logger),
		cache:      cacheManager,
		retry:      scaledPolicy(cfg.MaxRetries, cfg.InitialBackoff),
		config:     cfg,
		logger:     logger,
	}, nil
}

// Get performs a GET request for path relative to the base URL.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// Post sends body as a JSON document to path relative to the base URL.
func (c *Client) Post(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

// do performs a request with rate limiting, caching, and error handling.
// Any non-2xx final status is returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte) (*Response, error) {
	target := c.resolve(path, query)

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check vendor quota
	allowed, err := c.tracker.ShouldAllowRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !allowed {
		requestsTotal.WithLabelValues(method, "rate_limited").Inc()
		return nil, ErrRateLimited
	}

	// Step 2: Check cache (GET only)
	var cacheKey cache.CacheKey
	var cachedEntry *cache.CacheEntry
	if c.cache != nil && method == http.MethodGet {
		cacheKey = cache.CacheKey{
			Scope:       c.baseURL.Host,
			Endpoint:    strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(path, "/"),
			QueryParams: query,
		}
		cachedEntry, err = c.cache.Get(ctx, cacheKey)
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("url", target).Msg("Cache get error")
		}
	}

	// Step 3: Execute with retry
	var resp *Response
	var errClass ErrorClass

	retryErr := retryWithPolicy(ctx, c.retry, func() error {
		var attemptErr error
		resp, errClass, attemptErr = c.attempt(ctx, method, target, body, cachedEntry)
		return attemptErr
	}, func(error) ErrorClass {
		if ctx.Err() != nil {
			return ""
		}
		return errClass
	})

	if retryErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s %s: %w", method, target, ctx.Err())
		}
		return nil, retryErr
	}

	// Step 4: 304 Not Modified
	if resp.StatusCode == http.StatusNotModified && cachedEntry != nil {
		c.logger.Debug().Str("url", target).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.Inc()

		if resp.Header.Get("Expires") != "" || resp.Header.Get("Cache-Control") != "" {
			if err := c.cache.UpdateTTL(ctx, cacheKey, cache.ParseExpires(resp.Header)); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update cache TTL")
			}
		}

		return &Response{
			StatusCode: cachedEntry.StatusCode,
			Header:     cachedEntry.Headers.Clone(),
			Body:       cachedEntry.Data,
			FromCache:  true,
		}, nil
	}

	// Step 5: Update cache on success
	if c.cache != nil && method == http.MethodGet && resp.StatusCode == http.StatusOK {
		entry := cache.NewEntry(resp.StatusCode, resp.Header, resp.Body)
		if entry.Validatable() && entry.TTL() > 0 {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("url", target).
					Dur("ttl", entry.TTL()).
					Msg("Cached response")
			}
		}
	}

	return resp, nil
}

// attempt performs one HTTP round trip. The returned error is nil for 2xx and
// 304 responses and an *APIError or network error otherwise.
func (c *Client) attempt(ctx context.Context, method, target string, body []byte, cached *cache.CacheEntry) (*Response, ErrorClass, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, ErrorClassNetwork, err
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cache.ShouldMakeConditionalRequest(cached) {
		cache.AddConditionalHeaders(req, cached)
		cache.ConditionalRequestsSent.Inc()
		c.logger.Debug().
			Str("url", target).
			Str("etag", cached.ETag).
			Msg("Making conditional request")
	}

	c.logger.Debug().
		Str("url", target).
		Str("method", method).
		Msg("Executing vendor request")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", target).Msg("HTTP request failed")
		class := c.classifyError(nil, err)
		errorsTotal.WithLabelValues(string(class)).Inc()
		requestsTotal.WithLabelValues(method, "network_error").Inc()
		return nil, class, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(method, "network_error").Inc()
		return nil, ErrorClassNetwork, fmt.Errorf("read response body: %w", err)
	}

	if err := c.tracker.UpdateFromHeaders(ctx, httpResp.StatusCode, httpResp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	requestsTotal.WithLabelValues(method, strconv.Itoa(httpResp.StatusCode)).Inc()
	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}

	if httpResp.StatusCode < 400 {
		return resp, "", nil
	}

	class := c.classifyError(httpResp, nil)
	errorsTotal.WithLabelValues(string(class)).Inc()

	c.logger.Warn().
		Str("url", target).
		Int("status", httpResp.StatusCode).
		Str("error_class", string(class)).
		Msg("Vendor request error")

	message := httpResp.Status
	if excerpt := strings.TrimSpace(string(data)); excerpt != "" {
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody] + "..."
		}
		message += ": " + excerpt
	}
	return resp, class, &APIError{
		StatusCode: httpResp.StatusCode,
		ErrorClass: class,
		Message:    message,
	}
}

// classifyError categorizes an error for observability and handling.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// resolve joins path onto the base URL and appends the encoded query.
func (c *Client) resolve(path string, query url.Values) string {
	base := strings.TrimRight(c.baseURL.String(), "/")
	target := base + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}
	return target
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Tracker returns the rate limit tracker.
func (c *Client) Tracker() *ratelimit.Tracker {
	return c.tracker
}

// GetCache returns the cache manager, nil without Redis.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
