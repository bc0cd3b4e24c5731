package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss means no live entry is stored under the key.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry means the stored bytes did not decode; the entry is evicted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager keeps vendor responses in Redis under CacheKey.String() and lets
// Redis expire them at CacheEntry.Expires.
type Manager struct {
	rdb *redis.Client
}

// NewManager panics on a nil client; the HTTP client only builds a Manager
// when Redis is configured.
func NewManager(rdb *redis.Client) *Manager {
	if rdb == nil {
		panic("cache: NewManager requires a redis client")
	}
	return &Manager{rdb: rdb}
}

// Get returns the live entry for key or ErrCacheMiss.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	entry, err := m.load(ctx, key.String())
	switch {
	case err == nil:
		CacheHits.WithLabelValues("redis").Inc()
	case errors.Is(err, ErrCacheMiss):
		CacheMisses.Inc()
	default:
		CacheErrors.WithLabelValues("get").Inc()
	}
	return entry, err
}

// Set stores entry until its Expires time. An entry that is already expired
// is skipped and any earlier copy is left to its own expiry.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache: nil entry")
	}
	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}
	return m.store(ctx, key.String(), entry, ttl)
}

// Delete evicts the entry for key. Deleting a missing key is not an error.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	return m.evict(ctx, key.String())
}

// UpdateTTL re-stamps the stored entry with expires, as after a 304 that
// carried fresh caching headers. An expiry in the past evicts the entry.
func (m *Manager) UpdateTTL(ctx context.Context, key CacheKey, expires time.Time) error {
	id := key.String()
	entry, err := m.load(ctx, id)
	if err != nil {
		return err
	}

	entry.Expires = expires
	ttl := entry.TTL()
	if ttl <= 0 {
		return m.evict(ctx, id)
	}
	return m.store(ctx, id, entry, ttl)
}

// load decodes the entry at id. Undecodable and stale entries are evicted;
// Expires wins over whatever TTL Redis still holds.
func (m *Manager) load(ctx context.Context, id string) (*CacheEntry, error) {
	raw, err := m.rdb.Get(ctx, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", id, err)
	}

	entry := new(CacheEntry)
	if err := json.Unmarshal(raw, entry); err != nil {
		_ = m.evict(ctx, id)
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.IsExpired() {
		_ = m.evict(ctx, id)
		return nil, ErrCacheMiss
	}
	return entry, nil
}

func (m *Manager) store(ctx context.Context, id string, entry *CacheEntry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := m.rdb.Set(ctx, id, raw, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set %s: %w", id, err)
	}
	CacheBytesWritten.WithLabelValues("redis").Add(float64(len(raw)))
	return nil
}

func (m *Manager) evict(ctx context.Context, id string) error {
	if err := m.rdb.Del(ctx, id).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del %s: %w", id, err)
	}
	return nil
}
