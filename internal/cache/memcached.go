package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-widget/internal/models"
)

const (
	keyPrefix = "weather:"
	// memcached treats larger relative expirations as absolute unix timestamps.
	maxRelativeExp = 30 * 24 * 60 * 60
)

// MemcachedCache implements Store using memcached.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	ss := new(memcache.ServerList)
	if err := ss.SetServers(servers...); err != nil {
		return nil, fmt.Errorf("memcached servers %q: %w", addrs, err)
	}
	client := memcache.NewFromSelector(ss)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// itemKey hashes the cache key: locations may contain spaces, which memcached keys cannot.
func itemKey(k string) string {
	sum := md5.Sum([]byte(k))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get implements Store.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.WeatherPayload, bool, error) {
	if ctx.Err() != nil {
		return models.WeatherPayload{}, false, ctx.Err()
	}
	item, err := c.client.Get(itemKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return models.WeatherPayload{}, false, nil
		}
		return models.WeatherPayload{}, false, err
	}
	var data models.WeatherPayload
	if err := json.Unmarshal(item.Value, &data); err != nil {
		return models.WeatherPayload{}, false, fmt.Errorf("decode cached payload: %w", err)
	}
	return data, true, nil
}

// Set implements Store.Set. TTL is rounded up to whole seconds.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.WeatherPayload, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        itemKey(key),
		Value:      raw,
		Expiration: expirationSeconds(ttl),
	})
}

// Invalidate implements Store.Invalidate. Deleting an absent key is not an error.
func (c *MemcachedCache) Invalidate(ctx context.Context, key string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := c.client.Delete(itemKey(key))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}

func expirationSeconds(ttl time.Duration) int32 {
	ttl = ClampTTL(ttl)
	sec := int64((ttl + time.Second - 1) / time.Second)
	if sec > maxRelativeExp {
		sec = maxRelativeExp
	}
	return int32(sec)
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
