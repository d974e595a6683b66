package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-widget/internal/cache"
	"github.com/kjstillabower/weather-widget/internal/circuitbreaker"
	"github.com/kjstillabower/weather-widget/internal/client"
	"github.com/kjstillabower/weather-widget/internal/config"
	httphandler "github.com/kjstillabower/weather-widget/internal/http"
	"github.com/kjstillabower/weather-widget/internal/lifecycle"
	"github.com/kjstillabower/weather-widget/internal/observability"
	"github.com/kjstillabower/weather-widget/internal/service"
	"github.com/kjstillabower/weather-widget/internal/traffic"
	"github.com/kjstillabower/weather-widget/internal/widget"
)

const breakerComponent = "weather_api"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if cfg.WeatherAPIKey == "" {
		logger.Warn("no default weather API key; widgets without their own key will render missing_config")
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitFailureThreshold,
			SuccessThreshold: cfg.CircuitSuccessThreshold,
			Timeout:          cfg.CircuitOpenTimeout,
			IsFailure: func(err error) bool {
				return err != nil && !errors.Is(err, client.ErrCanceled)
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String(), float64(to))
				logger.Warn("circuit breaker transition", zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		observability.CircuitBreakerState.WithLabelValues(breakerComponent).Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitFailureThreshold),
			zap.Duration("timeout", cfg.CircuitOpenTimeout))
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	var store cache.Store
	var memcached *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcached = mc
		store = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		mem := cache.NewInMemoryCache()
		mem.StartSweeper(rootCtx, cfg.CacheSweepInterval)
		observability.RegisterCacheSizeGauge(mem.Len)
		store = mem
		logger.Info("cache backend: in_memory")
	}

	opts := service.Options{Breaker: breaker, Logger: logger}
	if cfg.CoalesceEnabled {
		opts.CoalesceTimeout = cfg.CoalesceTimeout
	}
	weatherService := service.NewWeatherService(weatherClient, store, opts)

	registry := widget.NewRegistry()
	for _, wc := range cfg.Widgets {
		inst := widget.NewInstance(wc.ID, widget.Sanitize(wc.Settings), cfg.WeatherAPIKey, weatherService)
		if err := registry.Add(inst); err != nil {
			logger.Fatal("widget registry", zap.String("widget_id", wc.ID), zap.Error(err))
		}
	}
	logger.Info("widgets loaded", zap.Strings("ids", registry.IDs()))

	tracker := traffic.NewTracker(nil, 0)
	state := lifecycle.New(nil)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:     cfg.DegradedWindow,
		DegradedErrorPct:   cfg.DegradedErrorPct,
		DegradedMinSamples: cfg.DegradedMinSamples,
		Breaker:            breaker,
		PendingFetches:     weatherService.PendingFetches,
	}
	if memcached != nil {
		healthConfig.CachePing = memcached.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	// NewAdminAuth returns nil without a password hash and secret; admin routes then answer 403.
	auth := httphandler.NewAdminAuth(cfg.AdminUser, cfg.AdminPasswordHash, cfg.AdminJWTSecret, cfg.AdminTokenTTL, nil)
	if auth == nil {
		logger.Info("admin routes disabled")
	}
	admin := httphandler.NewAdminHandler(auth, registry, logger)

	inFlight := &httphandler.InFlightTracker{}
	router := httphandler.NewRouter(httphandler.RouterConfig{
		Handler:        httphandler.NewHandler(registry, tracker, state, healthConfig, logger),
		Admin:          admin,
		Logger:         logger,
		Limiter:        limiter,
		Tracker:        tracker,
		InFlight:       inFlight,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	// Health reports starting until the first warm pass finishes.
	ids := registry.IDs()
	if cfg.CacheWarm && len(ids) > 0 {
		warmer := cache.NewWarmer(registry, logger)
		warmCtx, warmCancel := context.WithTimeout(rootCtx, 30*time.Second)
		if err := warmer.Warm(warmCtx, ids); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.CacheWarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(rootCtx, ids, cfg.CacheWarmInterval); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}
	state.MarkReady()
	logger.Info("ready", zap.Int("widgets", registry.Len()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	state.BeginShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	if err := inFlight.WaitForZero(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}
	cancelRoot()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if memcached != nil {
		if err := memcached.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
