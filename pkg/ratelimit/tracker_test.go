package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestTracker() *Tracker {
	tracker := NewTracker(NewMemoryStore(), zerolog.Nop())
	tracker.SetThrottleDelay(10 * time.Millisecond)
	return tracker
}

func TestGetState_DefaultHealthy(t *testing.T) {
	state, err := newTestTracker().GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy || state.NeedsCriticalBlock() || state.NeedsThrottling() {
		t.Errorf("default state should be healthy, got %+v", state)
	}
}

func TestUpdateFromHeaders_ValidHeaders(t *testing.T) {
	tests := []struct {
		name            string
		status          int
		headers         map[string]string
		expectedRemain  int
		expectedHealthy bool
		expectedReset   time.Duration
	}{
		{
			name:            "healthy state",
			status:          http.StatusOK,
			headers:         map[string]string{HeaderRemaining: "100", HeaderReset: "60"},
			expectedRemain:  100,
			expectedHealthy: true,
			expectedReset:   60 * time.Second,
		},
		{
			name:            "warning state",
			status:          http.StatusOK,
			headers:         map[string]string{HeaderRemaining: "3", HeaderReset: "30"},
			expectedRemain:  3,
			expectedHealthy: false,
			expectedReset:   30 * time.Second,
		},
		{
			name:            "remaining without reset",
			status:          http.StatusOK,
			headers:         map[string]string{HeaderRemaining: "42"},
			expectedRemain:  42,
			expectedHealthy: true,
		},
		{
			name:            "retry-after on 429",
			status:          http.StatusTooManyRequests,
			headers:         map[string]string{HeaderRetryAfter: "45", HeaderRemaining: "10"},
			expectedRemain:  0,
			expectedHealthy: false,
			expectedReset:   45 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tracker := newTestTracker()

			headers := http.Header{}
			for k, v := range tt.headers {
				headers.Set(k, v)
			}

			if err := tracker.UpdateFromHeaders(ctx, tt.status, headers); err != nil {
				t.Fatalf("UpdateFromHeaders() error = %v", err)
			}

			state, err := tracker.GetState(ctx)
			if err != nil {
				t.Fatalf("GetState() error = %v", err)
			}
			if state.Remaining != tt.expectedRemain {
				t.Errorf("Remaining = %d, want %d", state.Remaining, tt.expectedRemain)
			}
			if state.IsHealthy != tt.expectedHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.expectedHealthy)
			}
			if d := state.TimeUntilReset(); d > tt.expectedReset || d < tt.expectedReset-5*time.Second {
				t.Errorf("TimeUntilReset() = %v, want ~%v", d, tt.expectedReset)
			}
		})
	}
}

func TestUpdateFromHeaders_NoHeadersKeepsState(t *testing.T) {
	ctx := context.Background()
	tracker := newTestTracker()

	headers := http.Header{}
	headers.Set(HeaderRemaining, "2")
	headers.Set(HeaderReset, "60")
	if err := tracker.UpdateFromHeaders(ctx, http.StatusOK, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() error = %v", err)
	}
	if err := tracker.UpdateFromHeaders(ctx, http.StatusOK, http.Header{}); err != nil {
		t.Fatalf("UpdateFromHeaders() without headers error = %v", err)
	}

	state, _ := tracker.GetState(ctx)
	if state.Remaining != 2 {
		t.Errorf("Remaining = %d, want 2 (unchanged)", state.Remaining)
	}
}

func TestUpdateFromHeaders_InvalidHeaders(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
	}{
		{"non-numeric remaining", http.StatusOK, map[string]string{HeaderRemaining: "abc"}},
		{"non-numeric reset", http.StatusOK, map[string]string{HeaderRemaining: "10", HeaderReset: "soon"}},
		{"bad retry-after", http.StatusTooManyRequests, map[string]string{HeaderRetryAfter: "later"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			for k, v := range tt.headers {
				headers.Set(k, v)
			}
			if err := newTestTracker().UpdateFromHeaders(context.Background(), tt.status, headers); err == nil {
				t.Error("expected error for invalid header")
			}
		})
	}
}

func TestShouldAllowRequest(t *testing.T) {
	tests := []struct {
		name        string
		remaining   int
		expectAllow bool
	}{
		{"healthy - allow immediately", 100, true},
		{"at healthy threshold - allow", ThresholdHealthy, true},
		{"warning - allow with throttle", ThresholdWarning - 1, true},
		{"exhausted - block", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			tracker := newTestTracker()

			state := &RateLimitState{
				Remaining:  tt.remaining,
				ResetAt:    time.Now().Add(60 * time.Second),
				LastUpdate: time.Now(),
			}
			state.UpdateHealth()
			if err := tracker.store.Save(ctx, state); err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			allowed, err := tracker.ShouldAllowRequest(ctx)
			if err != nil {
				t.Fatalf("ShouldAllowRequest() error = %v", err)
			}
			if allowed != tt.expectAllow {
				t.Errorf("ShouldAllowRequest() = %v, want %v", allowed, tt.expectAllow)
			}
		})
	}
}

func TestShouldAllowRequest_ThrottleHonoursContext(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())
	tracker.SetThrottleDelay(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	_ = tracker.store.Save(ctx, &RateLimitState{Remaining: 2, ResetAt: time.Now().Add(time.Minute)})
	cancel()

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if allowed || err == nil {
		t.Errorf("ShouldAllowRequest() = %v, %v; want false with context error", allowed, err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Now()

	if d, err := parseRetryAfter(now, "120"); err != nil || d != 2*time.Minute {
		t.Errorf("parseRetryAfter(120) = %v, %v", d, err)
	}

	date := now.Add(90 * time.Second).UTC().Format(http.TimeFormat)
	d, err := parseRetryAfter(now, date)
	if err != nil {
		t.Fatalf("parseRetryAfter(date) error = %v", err)
	}
	if d < 85*time.Second || d > 90*time.Second {
		t.Errorf("parseRetryAfter(date) = %v, want ~90s", d)
	}
}
