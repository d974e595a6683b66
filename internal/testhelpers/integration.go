//go:build integration
// +build integration

// Package testhelpers builds live dependencies for integration tests.
package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-widget/internal/cache"
	"github.com/kjstillabower/weather-widget/internal/client"
	"github.com/kjstillabower/weather-widget/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	apiURL := os.Getenv("WEATHER_API_URL")
	if apiURL == "" {
		apiURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	return IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// NewStore returns the configured cache backend. Memcached falls back to in-memory
// when unreachable. Closing is registered with t.Cleanup.
func NewStore(t *testing.T, cfg IntegrationTestConfig) cache.Store {
	t.Helper()
	if cfg.CacheBackend != "memcached" {
		return cache.NewInMemoryCache()
	}
	mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
	if err == nil {
		err = mc.Ping()
	}
	if err != nil {
		t.Logf("Memcached not available (%v), using in-memory cache", err)
		return cache.NewInMemoryCache()
	}
	t.Cleanup(func() { _ = mc.Close() })
	t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
	return mc
}

// NewService returns a WeatherService over the live API and the configured store.
func NewService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, cache.Store) {
	t.Helper()
	weatherClient, err := client.NewOpenWeatherClient(cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	store := NewStore(t, cfg)
	return service.NewWeatherService(weatherClient, store, service.Options{}), store
}
