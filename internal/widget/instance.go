package widget

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/observability"
	"github.com/kjstillabower/weather-widget/internal/render"
)

// WeatherService is the part of service.WeatherService a widget needs.
type WeatherService interface {
	GetWeather(ctx context.Context, query models.WeatherQuery, ttl time.Duration) (models.WeatherPayload, error)
	OnConfigChange(ctx context.Context, old, updated models.Identity) bool
}

// Instance is one configured widget. Safe for concurrent use.
type Instance struct {
	id                string
	defaultCredential string
	svc               WeatherService

	mu       sync.RWMutex
	settings Settings
}

// NewInstance creates a widget. defaultCredential is used whenever the widget's own
// credential is empty.
func NewInstance(id string, settings Settings, defaultCredential string, svc WeatherService) *Instance {
	return &Instance{
		id:                id,
		defaultCredential: defaultCredential,
		svc:               svc,
		settings:          settings,
	}
}

func (i *Instance) ID() string { return i.id }

// Settings returns a copy of the current settings.
func (i *Instance) Settings() Settings {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.settings
}

// HasOwnCredential reports whether the widget overrides the default credential.
func (i *Instance) HasOwnCredential() bool {
	return i.Settings().Credential != ""
}

func (i *Instance) query(s Settings) (models.WeatherQuery, time.Duration) {
	credential := s.Credential
	if credential == "" {
		credential = i.defaultCredential
	}
	return models.WeatherQuery{Location: s.Location, Units: s.Units, Credential: credential}, s.TTL()
}

// Weather looks up the widget's current weather through the service.
func (i *Instance) Weather(ctx context.Context) (models.WeatherQuery, models.WeatherPayload, error) {
	return i.weather(ctx, i.Settings())
}

func (i *Instance) weather(ctx context.Context, s Settings) (models.WeatherQuery, models.WeatherPayload, error) {
	q, ttl := i.query(s)
	payload, err := i.svc.GetWeather(ctx, q, ttl)
	return q, payload, err
}

// Display returns the widget title and the render model for its current weather.
// Both come from the same settings snapshot, so a concurrent Update never mixes them.
func (i *Instance) Display(ctx context.Context) (string, render.Model) {
	s := i.Settings()
	q, payload, err := i.weather(ctx, s)
	model := render.Render(q, payload, err)
	observability.WidgetRendersTotal.WithLabelValues(i.id, string(model.Kind)).Inc()
	return s.Title, model
}

// Update sanitizes raw and replaces the widget's settings. A nil raw.Credential keeps the
// current credential. When the location or units change, the service is told so the old
// cache entry is invalidated. Returns the applied settings.
func (i *Instance) Update(ctx context.Context, raw RawSettings) Settings {
	updated := Sanitize(raw)

	i.mu.Lock()
	old := i.settings
	if raw.Credential == nil {
		updated.Credential = old.Credential
	}
	i.settings = updated
	i.mu.Unlock()

	observability.WidgetConfigChangesTotal.WithLabelValues(i.id).Inc()
	if old.Identity() != updated.Identity() {
		invalidated := i.svc.OnConfigChange(ctx, old.Identity(), updated.Identity())
		if logger := observability.WidgetLogger(ctx, nil, i.id); logger != nil {
			logger.Info("widget reconfigured",
				zap.String("location", updated.Location),
				zap.String("units", string(updated.Units)),
				zap.Bool("cache_invalidated", invalidated))
		}
	}
	return updated
}
