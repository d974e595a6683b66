package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-widget/internal/cache"
	"github.com/kjstillabower/weather-widget/internal/lifecycle"
	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/service"
	"github.com/kjstillabower/weather-widget/internal/traffic"
	"github.com/kjstillabower/weather-widget/internal/widget"
)

// stubClient answers Fetch with a fixed payload or error and counts calls.
type stubClient struct {
	mu      sync.Mutex
	calls   int
	payload models.WeatherPayload
	err     error
	block   chan struct{}
}

func (s *stubClient) Fetch(ctx context.Context, q models.WeatherQuery) (models.WeatherPayload, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return models.WeatherPayload{}, ctx.Err()
		}
	}
	return s.payload, s.err
}

func (s *stubClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func strPtr(s string) *string     { return &s }
func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func seattlePayload() models.WeatherPayload {
	return models.WeatherPayload{
		Location:        "Seattle",
		Temperature:     21.6,
		Description:     strPtr("clear sky"),
		IconID:          strPtr("01d"),
		HumidityPercent: intPtr(54),
		WindSpeed:       floatPtr(3.1),
	}
}

// fixture is a full widget stack over a stub upstream and an in-memory cache.
type fixture struct {
	client   *stubClient
	store    *cache.InMemoryCache
	registry *widget.Registry
	tracker  *traffic.Tracker
	state    *lifecycle.State
	handler  *Handler
}

func newFixture(t testing.TB, client *stubClient) *fixture {
	t.Helper()
	store := cache.NewInMemoryCache()
	svc := service.NewWeatherService(client, store, service.Options{})
	registry := widget.NewRegistry()
	add := func(id string, s widget.Settings) {
		if err := registry.Add(widget.NewInstance(id, s, "default-key", svc)); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}
	add("home", widget.Settings{Title: "Home", Location: "Seattle", Units: models.UnitsMetric, CacheMinutes: 10})
	add("empty", widget.Settings{Title: "Unconfigured", Units: models.UnitsMetric, CacheMinutes: 10})

	state := lifecycle.New(nil)
	state.MarkReady()
	tracker := traffic.NewTracker(nil, 0)
	return &fixture{
		client:   client,
		store:    store,
		registry: registry,
		tracker:  tracker,
		state:    state,
		handler: NewHandler(registry, tracker, state, &HealthConfig{
			DegradedWindow:     time.Minute,
			DegradedErrorPct:   50,
			DegradedMinSamples: 2,
		}, zap.NewNop()),
	}
}

func (f *fixture) router(admin *AdminHandler) *mux.Router {
	return NewRouter(RouterConfig{
		Handler: f.handler,
		Admin:   admin,
		Tracker: f.tracker,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
