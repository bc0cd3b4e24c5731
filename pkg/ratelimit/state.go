// Package ratelimit implements vendor quota tracking and request gating.
// It monitors the X-RateLimit-Remaining, X-RateLimit-Reset and Retry-After
// headers so a connector backs off before the vendor starts rejecting calls.
package ratelimit

import (
	"time"
)

// Header names read from vendor responses.
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Thresholds for rate limit decisions.
const (
	// ThresholdCritical blocks requests when the remaining quota falls below
	// this value and the window has not reset yet.
	ThresholdCritical = 1

	// ThresholdWarning applies throttling when the remaining quota falls below this value.
	ThresholdWarning = 5

	// ThresholdHealthy indicates normal operation.
	ThresholdHealthy = 20
)

// epochCutoff separates "seconds until reset" from "unix timestamp" reset values.
const epochCutoff = 1_000_000_000

// RateLimitState represents the last known vendor quota.
// This state may be shared across connector instances via Redis.
type RateLimitState struct {
	// Remaining is the number of requests left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// defaultState is assumed until a vendor reports real numbers.
func defaultState() *RateLimitState {
	now := time.Now()
	return &RateLimitState{
		Remaining:  100,
		ResetAt:    now,
		LastUpdate: now,
		IsHealthy:  true,
	}
}

// IsStale returns true if the state data is older than the given duration.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked until the window resets.
func (s *RateLimitState) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical && s.TimeUntilReset() > 0
}

// NeedsThrottling returns true if requests should be throttled due to warning threshold.
func (s *RateLimitState) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsCriticalBlock() && s.TimeUntilReset() > 0
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}

// resetFromHeader interprets a reset header value as either seconds until
// reset or an absolute unix timestamp.
func resetFromHeader(now time.Time, value int64) time.Time {
	if value >= epochCutoff {
		return time.Unix(value, 0)
	}
	return now.Add(time.Duration(value) * time.Second)
}
