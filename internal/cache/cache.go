package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/weather-widget/internal/models"
)

// MinTTL is the shortest lifetime an entry can be stored with. Shorter TTLs are clamped up.
const MinTTL = time.Second

// Store defines the interface for weather payload caching implementations.
// Get returns cached data if present and not expired, Set stores data with TTL,
// Invalidate drops an entry regardless of expiry.
// Errors are advisory: callers treat them as a miss.
type Store interface {
	Get(ctx context.Context, key string) (models.WeatherPayload, bool, error)
	Set(ctx context.Context, key string, value models.WeatherPayload, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Entry is a cached payload with its expiry. Entries are replaced, never mutated.
type Entry struct {
	Value     models.WeatherPayload
	ExpiresAt time.Time
}

// expired reports whether the entry is no longer servable at now.
func (e Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// InMemoryCache implements Store using a map guarded by a RWMutex.
// Expired entries are removed on access, or by the optional sweeper.
type InMemoryCache struct {
	mu    sync.RWMutex
	data  map[string]Entry
	clock clockwork.Clock
}

// NewInMemoryCache creates a new in-memory cache instance backed by the real clock.
func NewInMemoryCache() *InMemoryCache {
	return NewInMemoryCacheWithClock(clockwork.NewRealClock())
}

// NewInMemoryCacheWithClock creates an in-memory cache that reads time from clock.
// Tests pass a fake clock to step through expiry.
func NewInMemoryCacheWithClock(clock clockwork.Clock) *InMemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryCache{
		data:  make(map[string]Entry),
		clock: clock,
	}
}

// Get retrieves the cached payload for key if present and not expired.
// Returns (data, true, nil) on hit, (zero, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WeatherPayload, bool, error) {
	now := c.clock.Now()
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok {
		return models.WeatherPayload{}, false, nil
	}

	if entry.expired(now) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the key.
		if cur, ok := c.data[key]; ok && cur.expired(now) {
			delete(c.data, key)
		}
		c.mu.Unlock()
		return models.WeatherPayload{}, false, nil
	}

	return entry.Value, true, nil
}

// Set stores the payload under key, replacing any existing entry. TTLs below MinTTL are clamped.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherPayload, ttl time.Duration) error {
	ttl = ClampTTL(ttl)
	entry := Entry{
		Value:     value,
		ExpiresAt: c.clock.Now().Add(ttl),
	}
	c.mu.Lock()
	c.data[key] = entry
	c.mu.Unlock()
	return nil
}

// Invalidate removes the entry for key. Missing keys are not an error.
func (c *InMemoryCache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Sweep evicts every expired entry and returns how many were removed.
func (c *InMemoryCache) Sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.data {
		if e.expired(now) {
			delete(c.data, k)
			n++
		}
	}
	return n
}

// StartSweeper evicts expired entries every interval until ctx is done.
// Lazy expiry in Get is sufficient for correctness; the sweeper only bounds memory.
func (c *InMemoryCache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := c.clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				c.Sweep()
			}
		}
	}()
}

// ClampTTL raises ttl to MinTTL when it is shorter.
func ClampTTL(ttl time.Duration) time.Duration {
	if ttl < MinTTL {
		return MinTTL
	}
	return ttl
}
