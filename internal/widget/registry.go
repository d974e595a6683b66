package widget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kjstillabower/weather-widget/internal/models"
)

// ErrUnknownWidget is returned for IDs that are not registered.
var ErrUnknownWidget = errors.New("unknown widget")

// Registry holds the configured widgets by ID. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]*Instance)}
}

// Add registers inst. IDs must be non-empty and unique.
func (r *Registry) Add(inst *Instance) error {
	if inst.ID() == "" {
		return errors.New("widget id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[inst.ID()]; exists {
		return fmt.Errorf("duplicate widget id %q", inst.ID())
	}
	r.instances[inst.ID()] = inst
	return nil
}

// Get returns the widget with the given ID.
func (r *Registry) Get(id string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// IDs returns the registered IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered widgets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

// GetWeather fetches weather for the widget with the given ID, filling the cache.
// Used by the cache warmer.
func (r *Registry) GetWeather(ctx context.Context, id string) (models.WeatherPayload, error) {
	inst, ok := r.Get(id)
	if !ok {
		return models.WeatherPayload{}, fmt.Errorf("%w: %s", ErrUnknownWidget, id)
	}
	_, payload, err := inst.Weather(ctx)
	return payload, err
}
