package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Store persists the rate limit state.
type Store interface {
	// Load returns the stored state, or nil when nothing is stored.
	Load(ctx context.Context) (*RateLimitState, error)
	Save(ctx context.Context, state *RateLimitState) error
}

// Redis key suffixes for rate limit state storage.
const (
	redisKeyRemaining  = "remaining"
	redisKeyResetAt    = "reset_timestamp"
	redisKeyLastUpdate = "last_update"
)

// RedisStore shares state between connector instances that call the same vendor.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a store under "connector:rate_limit:<scope>:".
func NewRedisStore(redisClient *redis.Client, scope string) *RedisStore {
	if scope == "" {
		scope = "default"
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: "connector:rate_limit:" + scope + ":",
	}
}

// Key returns the full redis key for a state field.
func (s *RedisStore) Key(field string) string {
	return s.prefix + field
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context) (*RateLimitState, error) {
	remaining, err := s.redis.Get(ctx, s.Key(redisKeyRemaining)).Int()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	resetTimestamp, err := s.redis.Get(ctx, s.Key(redisKeyResetAt)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	lastUpdateStr, err := s.redis.Get(ctx, s.Key(redisKeyLastUpdate)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &RateLimitState{
		Remaining:  remaining,
		ResetAt:    time.Unix(resetTimestamp, 0),
		LastUpdate: lastUpdate,
	}
	state.UpdateHealth()
	return state, nil
}

// Save implements Store. Keys expire one hour after the window resets.
func (s *RedisStore) Save(ctx context.Context, state *RateLimitState) error {
	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	ttl := state.TimeUntilReset() + time.Hour

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, s.Key(redisKeyRemaining), state.Remaining, ttl)
	pipe.Set(ctx, s.Key(redisKeyResetAt), state.ResetAt.Unix(), ttl)
	pipe.Set(ctx, s.Key(redisKeyLastUpdate), lastUpdateJSON, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}

// MemoryStore keeps the state in process.
type MemoryStore struct {
	mu    sync.RWMutex
	state *RateLimitState
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context) (*RateLimitState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == nil {
		return nil, nil
	}
	cp := *s.state
	return &cp, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, state *RateLimitState) error {
	cp := *state
	s.mu.Lock()
	s.state = &cp
	s.mu.Unlock()
	return nil
}
