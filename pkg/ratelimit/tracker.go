package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "connector_rate_limit_remaining",
		Help: "Requests remaining in the current vendor rate limit window",
	})

	rateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "connector_rate_limit_blocks_total",
		Help: "Total number of requests blocked due to an exhausted vendor quota",
	})

	rateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "connector_rate_limit_throttles_total",
		Help: "Total number of requests throttled due to a low vendor quota",
	})
)

// DefaultThrottleDelay is the pause applied in the warning state.
const DefaultThrottleDelay = time.Second

// Tracker monitors vendor rate limits and gates requests.
type Tracker struct {
	store         Store
	logger        zerolog.Logger
	throttleDelay time.Duration
}

// NewTracker creates a new rate limit tracker. A nil store keeps state in memory.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:         store,
		logger:        logger,
		throttleDelay: DefaultThrottleDelay,
	}
}

// SetThrottleDelay overrides the warning-state pause.
func (t *Tracker) SetThrottleDelay(d time.Duration) {
	t.throttleDelay = d
}

// GetState retrieves the current rate limit state.
// Returns a default healthy state if nothing has been recorded.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		t.logger.Debug().Msg("No rate limit state recorded, returning default healthy state")
		return defaultState(), nil
	}
	return state, nil
}

// UpdateFromHeaders parses rate limit headers and stores the new state.
// Responses without rate limit headers leave the state untouched.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, statusCode int, headers http.Header) error {
	now := time.Now()
	state := &RateLimitState{LastUpdate: now}

	switch {
	case headers.Get(HeaderRetryAfter) != "" && (statusCode == http.StatusTooManyRequests || statusCode == http.StatusServiceUnavailable):
		wait, err := parseRetryAfter(now, headers.Get(HeaderRetryAfter))
		if err != nil {
			return err
		}
		state.Remaining = 0
		state.ResetAt = now.Add(wait)

	case headers.Get(HeaderRemaining) != "":
		remain, err := strconv.Atoi(strings.TrimSpace(headers.Get(HeaderRemaining)))
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
		}
		state.Remaining = remain
		state.ResetAt = now

		if resetStr := strings.TrimSpace(headers.Get(HeaderReset)); resetStr != "" {
			reset, err := strconv.ParseInt(resetStr, 10, 64)
			if err != nil {
				return fmt.Errorf("parse %s header: %w", HeaderReset, err)
			}
			state.ResetAt = resetFromHeader(now, reset)
		}

	default:
		return nil
	}
	state.UpdateHealth()

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	rateLimitRemaining.Set(float64(state.Remaining))

	switch {
	case state.NeedsCriticalBlock():
		t.logger.Error().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Vendor rate limit exhausted - requests will be blocked")
	case state.NeedsThrottling():
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Msg("Vendor rate limit low - requests will be throttled")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Time("reset_at", state.ResetAt).
			Bool("is_healthy", state.IsHealthy).
			Msg("Rate limit state updated")
	}

	return nil
}

// ShouldAllowRequest checks if a request should be allowed based on current rate limit state.
// Returns false if the quota is exhausted and the window has not reset.
// Returns true but pauses first in the warning state.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Vendor rate limit exhausted - blocking request")

		rateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling() {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Dur("delay", t.throttleDelay).
			Msg("Vendor rate limit low - throttling request")

		rateLimitThrottlesTotal.Inc()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(t.throttleDelay):
		}
	}

	return true, nil
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(now time.Time, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, nil
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s header: %w", HeaderRetryAfter, err)
	}
	if d := at.Sub(now); d > 0 {
		return d, nil
	}
	return 0, nil
}
