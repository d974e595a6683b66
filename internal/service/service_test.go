package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-widget/internal/cache"
	"github.com/kjstillabower/weather-widget/internal/circuitbreaker"
	"github.com/kjstillabower/weather-widget/internal/client"
	"github.com/kjstillabower/weather-widget/internal/models"
)

// stubClient counts Fetch calls and returns a fixed payload or error.
type stubClient struct {
	calls   atomic.Int32
	payload models.WeatherPayload
	err     error
	queries []models.WeatherQuery
	mu      sync.Mutex
	block   chan struct{}
}

func (s *stubClient) Fetch(ctx context.Context, q models.WeatherQuery) (models.WeatherPayload, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	return s.payload, s.err
}

// countingStore wraps a Store and counts calls; getErr/setErr simulate backend failures.
type countingStore struct {
	inner         cache.Store
	gets, sets    atomic.Int32
	invalidations []string
	getErr        error
	setErr        error
	invalidateErr error
}

func (c *countingStore) Get(ctx context.Context, key string) (models.WeatherPayload, bool, error) {
	c.gets.Add(1)
	if c.getErr != nil {
		return models.WeatherPayload{}, false, c.getErr
	}
	return c.inner.Get(ctx, key)
}

func (c *countingStore) Set(ctx context.Context, key string, v models.WeatherPayload, ttl time.Duration) error {
	c.sets.Add(1)
	if c.setErr != nil {
		return c.setErr
	}
	return c.inner.Set(ctx, key, v, ttl)
}

func (c *countingStore) Invalidate(ctx context.Context, key string) error {
	c.invalidations = append(c.invalidations, key)
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	return c.inner.Invalidate(ctx, key)
}

func newTestService(t *testing.T, c client.WeatherClient, opts Options) (*WeatherService, *countingStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := &countingStore{inner: cache.NewInMemoryCacheWithClock(clock)}
	return NewWeatherService(c, store, opts), store, clock
}

func seattle() models.WeatherQuery {
	return models.WeatherQuery{Location: "Seattle", Units: models.UnitsMetric, Credential: "test-key"}
}

func TestCacheKey_CaseInsensitiveLocation(t *testing.T) {
	pairs := [][2]string{
		{"Seattle", "seattle"},
		{"NEW YORK", "new york"},
		{"São Paulo", "SÃO PAULO"},
		{"London,GB", "london,gb"},
	}
	for _, units := range []models.Units{models.UnitsMetric, models.UnitsImperial} {
		for _, p := range pairs {
			assert.Equal(t, CacheKey(p[0], units), CacheKey(p[1], units), "%q vs %q (%s)", p[0], p[1], units)
		}
	}
}

func TestCacheKey_UnitsChangeKey(t *testing.T) {
	for _, loc := range []string{"Seattle", "new york", ""} {
		assert.NotEqual(t, CacheKey(loc, models.UnitsMetric), CacheKey(loc, models.UnitsImperial), loc)
	}
}

func TestCacheKey_Format(t *testing.T) {
	assert.Equal(t, "seattle|metric", CacheKey("Seattle", models.UnitsMetric))
	assert.Equal(t, "new york|imperial", CacheKey("  New York ", models.UnitsImperial))
	assert.Equal(t, "seattle|metric", CacheKey("Seattle", ""), "unknown units fall back to metric")
}

func TestGetWeather_SecondCallServedFromCache(t *testing.T) {
	stub := &stubClient{payload: models.WeatherPayload{Location: "Seattle", Temperature: 21.6}}
	svc, _, _ := newTestService(t, stub, Options{})
	ctx := context.Background()

	first, err := svc.GetWeather(ctx, seattle(), 10*time.Minute)
	require.NoError(t, err)
	second, err := svc.GetWeather(ctx, seattle(), 10*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), stub.calls.Load(), "second call must not reach the client")
}

func TestGetWeather_CaseVariantsShareCache(t *testing.T) {
	stub := &stubClient{payload: models.WeatherPayload{Temperature: 5}}
	svc, _, _ := newTestService(t, stub, Options{})
	ctx := context.Background()

	q := seattle()
	_, err := svc.GetWeather(ctx, q, time.Minute)
	require.NoError(t, err)
	q.Location = "SEATTLE"
	_, err = svc.GetWeather(ctx, q, time.Minute)
	require.NoError(t, err)

	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestGetWeather_RefetchAfterTTL(t *testing.T) {
	stub := &stubClient{payload: models.WeatherPayload{Temperature: 12}}
	svc, _, clock := newTestService(t, stub, Options{})
	ctx := context.Background()

	_, err := svc.GetWeather(ctx, seattle(), 10*time.Minute)
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	_, err = svc.GetWeather(ctx, seattle(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int32(1), stub.calls.Load())

	clock.Advance(time.Minute)
	_, err = svc.GetWeather(ctx, seattle(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int32(2), stub.calls.Load(), "expired entry must trigger a new fetch")
}

func TestGetWeather_MissingConfig(t *testing.T) {
	tests := []struct {
		name  string
		query models.WeatherQuery
	}{
		{"empty location", models.WeatherQuery{Credential: "key"}},
		{"blank location", models.WeatherQuery{Location: "   ", Credential: "key"}},
		{"empty credential", models.WeatherQuery{Location: "Seattle"}},
		{"both empty", models.WeatherQuery{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubClient{}
			svc, store, _ := newTestService(t, stub, Options{})

			_, err := svc.GetWeather(context.Background(), tt.query, time.Minute)

			assert.ErrorIs(t, err, ErrMissingConfig)
			assert.NotErrorIs(t, err, ErrUnavailable)
			assert.Zero(t, stub.calls.Load(), "client must not be called")
			assert.Zero(t, store.gets.Load(), "cache must not be consulted")
			assert.Zero(t, store.sets.Load())
		})
	}
}

func TestGetWeather_UpstreamFailureNotCached(t *testing.T) {
	stub := &stubClient{err: &client.FetchError{Kind: client.KindUpstreamStatus, StatusCode: http.StatusServiceUnavailable}}
	svc, store, _ := newTestService(t, stub, Options{})
	ctx := context.Background()

	_, err := svc.GetWeather(ctx, seattle(), time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, client.ErrUpstreamStatus, "cause stays reachable")
	var fe *client.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)

	assert.Zero(t, store.sets.Load())
	_, ok, _ := store.inner.Get(ctx, CacheKey("Seattle", models.UnitsMetric))
	assert.False(t, ok, "failures must not be cached")

	_, _ = svc.GetWeather(ctx, seattle(), time.Minute)
	assert.Equal(t, int32(2), stub.calls.Load(), "next call retries upstream immediately")
}

func TestGetWeather_CacheErrorsTreatedAsMiss(t *testing.T) {
	stub := &stubClient{payload: models.WeatherPayload{Temperature: 7}}
	svc, store, _ := newTestService(t, stub, Options{})
	store.getErr = errors.New("memcache: connection refused")
	store.setErr = errors.New("memcache: timeout")

	got, err := svc.GetWeather(context.Background(), seattle(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 7.0, got.Temperature)
	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestGetWeather_NormalizesQuery(t *testing.T) {
	stub := &stubClient{payload: models.WeatherPayload{Temperature: 7}}
	svc, _, _ := newTestService(t, stub, Options{})

	_, err := svc.GetWeather(context.Background(), models.WeatherQuery{Location: "  Paris ", Credential: " key "}, time.Minute)
	require.NoError(t, err)
	require.Len(t, stub.queries, 1)
	assert.Equal(t, models.WeatherQuery{Location: "Paris", Units: models.UnitsMetric, Credential: "key"}, stub.queries[0])
}

func TestGetWeather_CoalescesConcurrentMisses(t *testing.T) {
	stub := &stubClient{payload: models.WeatherPayload{Temperature: 1}, block: make(chan struct{})}
	svc, _, _ := newTestService(t, stub, Options{CoalesceTimeout: 5 * time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetWeather(context.Background(), seattle(), time.Minute)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(stub.block)
	wg.Wait()

	assert.Equal(t, int32(1), stub.calls.Load())
}

func TestGetWeather_CircuitBreakerOpens(t *testing.T) {
	stub := &stubClient{err: &client.FetchError{Kind: client.KindTimeout}}
	breaker := circuitbreaker.New(circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Minute, Clock: clockwork.NewFakeClock()})
	svc, _, _ := newTestService(t, stub, Options{Breaker: breaker})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.GetWeather(ctx, seattle(), time.Minute)
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, int32(2), stub.calls.Load(), "open breaker short-circuits the third call")

	_, err := svc.GetWeather(ctx, seattle(), time.Minute)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestOnConfigChange(t *testing.T) {
	metric := models.UnitsMetric
	imperial := models.UnitsImperial
	tests := []struct {
		name       string
		old, upd   models.Identity
		wantCalled bool
	}{
		{"identical identity", models.Identity{Location: "Seattle", Units: metric}, models.Identity{Location: "Seattle", Units: metric}, false},
		{"case-only change", models.Identity{Location: "Seattle", Units: metric}, models.Identity{Location: "SEATTLE", Units: metric}, false},
		{"location change", models.Identity{Location: "Seattle", Units: metric}, models.Identity{Location: "Portland", Units: metric}, true},
		{"units change", models.Identity{Location: "Seattle", Units: metric}, models.Identity{Location: "Seattle", Units: imperial}, true},
		{"previously unconfigured", models.Identity{Location: "", Units: metric}, models.Identity{Location: "Seattle", Units: metric}, false},
		{"location cleared", models.Identity{Location: "Seattle", Units: metric}, models.Identity{Location: "", Units: metric}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService(t, &stubClient{}, Options{})

			got := svc.OnConfigChange(context.Background(), tt.old, tt.upd)

			assert.Equal(t, tt.wantCalled, got)
			if tt.wantCalled {
				assert.Equal(t, []string{CacheKey(tt.old.Location, tt.old.Units)}, store.invalidations)
			} else {
				assert.Empty(t, store.invalidations)
			}
		})
	}
}

func TestOnConfigChange_OldEntryNotServed(t *testing.T) {
	stub := &stubClient{payload: models.WeatherPayload{Temperature: 30}}
	svc, store, _ := newTestService(t, stub, Options{})
	ctx := context.Background()

	_, err := svc.GetWeather(ctx, seattle(), time.Hour)
	require.NoError(t, err)

	svc.OnConfigChange(ctx, models.Identity{Location: "Seattle", Units: models.UnitsMetric}, models.Identity{Location: "Seattle", Units: models.UnitsImperial})

	_, ok, _ := store.inner.Get(ctx, CacheKey("Seattle", models.UnitsMetric))
	assert.False(t, ok)
}

func TestOnConfigChange_InvalidateErrorSwallowed(t *testing.T) {
	svc, store, _ := newTestService(t, &stubClient{}, Options{})
	store.invalidateErr = errors.New("memcache: connection refused")

	assert.NotPanics(t, func() {
		assert.True(t, svc.OnConfigChange(context.Background(), models.Identity{Location: "A", Units: models.UnitsMetric}, models.Identity{Location: "B", Units: models.UnitsMetric}))
	})
}

func TestGetWeather_PendingFetches(t *testing.T) {
	stub := &stubClient{payload: models.WeatherPayload{Temperature: 12}, block: make(chan struct{})}
	svc, _, _ := newTestService(t, stub, Options{})
	assert.Zero(t, svc.PendingFetches())

	done := make(chan error, 1)
	go func() {
		_, err := svc.GetWeather(context.Background(), seattle(), time.Minute)
		done <- err
	}()

	require.Eventually(t, func() bool { return svc.PendingFetches() == 1 }, time.Second, time.Millisecond)
	close(stub.block)
	require.NoError(t, <-done)
	assert.Zero(t, svc.PendingFetches())
}
