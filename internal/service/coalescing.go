package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-widget/internal/models"
)

// inFlightFetch is one upstream fetch that several callers may wait on.
type inFlightFetch struct {
	done   chan struct{}
	result models.WeatherPayload
	err    error
}

// requestCoalescer collapses concurrent cache misses for the same key into one upstream fetch.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

// newRequestCoalescer creates a requestCoalescer. timeout bounds how long any caller waits.
func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// Do returns the result of fn for key, starting fn only when no fetch for key is in flight.
// shared is true when the caller joined a fetch started by someone else.
// fn runs detached from the starting caller's cancellation so that one caller giving up
// does not fail the others; the client's own timeout still bounds it.
func (rc *requestCoalescer) Do(ctx context.Context, key string, fn func(context.Context) (models.WeatherPayload, error)) (result models.WeatherPayload, shared bool, err error) {
	rc.mu.Lock()
	f, exists := rc.inFlight[key]
	if !exists {
		f = &inFlightFetch{done: make(chan struct{})}
		rc.inFlight[key] = f
		go rc.run(context.WithoutCancel(ctx), key, f, fn)
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-f.done:
		return f.result, exists, f.err
	case <-waitCtx.Done():
		return models.WeatherPayload{}, exists, waitCtx.Err()
	}
}

func (rc *requestCoalescer) run(ctx context.Context, key string, f *inFlightFetch, fn func(context.Context) (models.WeatherPayload, error)) {
	f.result, f.err = fn(ctx)

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
	close(f.done)
}

// pending returns the number of keys with a fetch in flight.
func (rc *requestCoalescer) pending() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.inFlight)
}
