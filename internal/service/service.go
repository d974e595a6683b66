package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-widget/internal/cache"
	"github.com/kjstillabower/weather-widget/internal/circuitbreaker"
	"github.com/kjstillabower/weather-widget/internal/client"
	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/observability"
)

var (
	// ErrMissingConfig means the query lacks a location or credential. Nothing was looked up.
	ErrMissingConfig = errors.New("weather widget requires a location and an API key")
	// ErrUnavailable wraps every upstream failure. The cause stays reachable through errors.Is/As.
	ErrUnavailable = errors.New("weather service unavailable")
)

// Options configures optional WeatherService behaviour. The zero value disables all of it.
type Options struct {
	// CoalesceTimeout > 0 collapses concurrent misses for one key into a single upstream
	// fetch and bounds how long callers wait on it.
	CoalesceTimeout time.Duration
	// Breaker, when set, guards upstream fetches.
	Breaker *circuitbreaker.CircuitBreaker
	// Logger is used when the request context carries no logger.
	Logger *zap.Logger
}

// WeatherService orchestrates weather retrieval using the cache-aside pattern:
// cache lookup, upstream fetch on miss, cache population on success.
// Failures are never cached.
type WeatherService struct {
	client    client.WeatherClient
	cache     cache.Store
	breaker   *circuitbreaker.CircuitBreaker
	logger    *zap.Logger
	misses    *missTracker
	coalescer *requestCoalescer
}

// NewWeatherService creates a WeatherService over the given client and store.
func NewWeatherService(weatherClient client.WeatherClient, store cache.Store, opts Options) *WeatherService {
	var coalescer *requestCoalescer
	if opts.CoalesceTimeout > 0 {
		coalescer = newRequestCoalescer(opts.CoalesceTimeout)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{
		client:    weatherClient,
		cache:     store,
		breaker:   opts.Breaker,
		logger:    logger,
		misses:    newMissTracker(),
		coalescer: coalescer,
	}
}

// CacheKey derives the cache key for a (location, units) pair: the trimmed, lower-cased
// location and the units joined by "|". Case-only differences in location share a key;
// different units never do.
func CacheKey(location string, units models.Units) string {
	return strings.ToLower(strings.TrimSpace(location)) + "|" + string(normalizeUnits(units))
}

func normalizeUnits(u models.Units) models.Units {
	if u.Valid() {
		return u
	}
	return models.UnitsMetric
}

func (s *WeatherService) loggerFor(ctx context.Context) *zap.Logger {
	if l := observability.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// GetWeather returns weather for query, served from cache when a live entry exists.
// Returns ErrMissingConfig without touching cache or network when location or credential
// is empty, and an error wrapping ErrUnavailable when the upstream fetch fails.
// Cache backend errors are logged and treated as misses.
func (s *WeatherService) GetWeather(ctx context.Context, query models.WeatherQuery, ttl time.Duration) (models.WeatherPayload, error) {
	query.Location = strings.TrimSpace(query.Location)
	query.Credential = strings.TrimSpace(query.Credential)
	if query.Location == "" || query.Credential == "" {
		observability.WeatherLookupsTotal.WithLabelValues("missing_config").Inc()
		return models.WeatherPayload{}, ErrMissingConfig
	}
	query.Units = normalizeUnits(query.Units)

	key := CacheKey(query.Location, query.Units)
	start := time.Now()
	logger := s.loggerFor(ctx)

	if cached, ok := s.cacheGet(ctx, logger, key); ok {
		observability.WeatherLookupsTotal.WithLabelValues("hit").Inc()
		logger.Debug("weather served", zap.String("key", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return cached, nil
	}

	waiting, done := s.misses.begin(key)
	defer done()
	logger.Debug("cache miss, fetching upstream", zap.String("key", key), zap.Int("waiting", waiting))

	data, err := s.fetch(ctx, key, query)
	if err != nil {
		observability.WeatherLookupsTotal.WithLabelValues("unavailable").Inc()
		logger.Warn("weather fetch failed",
			zap.String("key", key),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
		return models.WeatherPayload{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	observability.WeatherLookupsTotal.WithLabelValues("miss").Inc()

	s.cacheSet(ctx, logger, key, data, ttl)
	logger.Debug("weather served", zap.String("key", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return data, nil
}

// PendingFetches returns the number of lookups currently waiting on upstream.
func (s *WeatherService) PendingFetches() int {
	return s.misses.Pending()
}

// fetch calls upstream, through the coalescer and breaker when configured.
func (s *WeatherService) fetch(ctx context.Context, key string, query models.WeatherQuery) (models.WeatherPayload, error) {
	if s.coalescer == nil {
		return s.guardedFetch(ctx, query)
	}
	waitStart := time.Now()
	data, shared, err := s.coalescer.Do(ctx, key, func(ctx context.Context) (models.WeatherPayload, error) {
		return s.guardedFetch(ctx, query)
	})
	if shared {
		observability.RequestCoalescingHitsTotal.Inc()
		observability.RequestCoalescingWaitSeconds.Observe(time.Since(waitStart).Seconds())
	}
	return data, err
}

func (s *WeatherService) guardedFetch(ctx context.Context, query models.WeatherQuery) (models.WeatherPayload, error) {
	if s.breaker == nil {
		return s.client.Fetch(ctx, query)
	}
	var data models.WeatherPayload
	err := s.breaker.Call(ctx, func(ctx context.Context) error {
		var ferr error
		data, ferr = s.client.Fetch(ctx, query)
		return ferr
	})
	return data, err
}

func (s *WeatherService) cacheGet(ctx context.Context, logger *zap.Logger, key string) (models.WeatherPayload, bool) {
	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", string(client.CategorizeError(err))).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		return models.WeatherPayload{}, false
	}
	result := "miss"
	if ok {
		result = "hit"
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("get", result).Observe(getDuration)
	return cached, ok
}

func (s *WeatherService) cacheSet(ctx context.Context, logger *zap.Logger, key string, data models.WeatherPayload, ttl time.Duration) {
	setStart := time.Now()
	if err := s.cache.Set(ctx, key, data, cache.ClampTTL(ttl)); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", string(client.CategorizeError(err))).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
}

// OnConfigChange invalidates the cache entry of the old identity when a widget switches
// location or units, so data for the previous configuration is not served under the new one.
// Returns true when an invalidation was issued. Identities mapping to the same key are a no-op.
func (s *WeatherService) OnConfigChange(ctx context.Context, old, updated models.Identity) bool {
	if strings.TrimSpace(old.Location) == "" {
		return false
	}
	oldKey := CacheKey(old.Location, old.Units)
	if oldKey == CacheKey(updated.Location, updated.Units) {
		return false
	}
	observability.CacheInvalidationsTotal.Inc()
	if err := s.cache.Invalidate(ctx, oldKey); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("invalidate", string(client.CategorizeError(err))).Inc()
		s.loggerFor(ctx).Warn("cache invalidate failed", zap.String("key", oldKey), zap.Error(err))
	}
	return true
}
