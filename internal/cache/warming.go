package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/observability"
)

// WeatherFetcher fetches weather for a configured widget, populating the cache as a side effect.
// Implemented by widget.Registry; declared here to avoid an import cycle.
type WeatherFetcher interface {
	GetWeather(ctx context.Context, widgetID string) (models.WeatherPayload, error)
}

// Warmer prefetches weather for configured widgets so the first page view is a cache hit.
type Warmer struct {
	fetcher WeatherFetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer that uses the given fetcher and logger.
func NewWarmer(fetcher WeatherFetcher, logger *zap.Logger) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm fetches weather for each widget concurrently.
// Returns the joined errors of every widget that failed.
func (w *Warmer) Warm(ctx context.Context, widgetIDs []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("widgets", len(widgetIDs)))
	}
	var wg sync.WaitGroup
	errCh := make(chan error, len(widgetIDs))
	for _, id := range widgetIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := w.fetcher.GetWeather(ctx, id); err != nil {
				errCh <- fmt.Errorf("warm %s: %w", id, err)
			}
		}(id)
	}
	wg.Wait()
	close(errCh)
	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("widgets", len(widgetIDs)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return errors.Join(errs...)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, widgetIDs []string, interval time.Duration) error {
	if err := w.Warm(ctx, widgetIDs); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, widgetIDs); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
