package models

import (
	"fmt"
	"strings"
	"time"
)

// Units selects the measurement system requested from the upstream API.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

// ParseUnits returns the Units named by s. Anything other than metric or imperial
// falls back to metric, matching the admin form's validation rule.
func ParseUnits(s string) Units {
	switch Units(strings.ToLower(strings.TrimSpace(s))) {
	case UnitsImperial:
		return UnitsImperial
	default:
		return UnitsMetric
	}
}

// Valid reports whether u is one of the supported systems.
func (u Units) Valid() bool {
	return u == UnitsMetric || u == UnitsImperial
}

// WeatherQuery is the per-request input to the fetch pipeline.
type WeatherQuery struct {
	Location   string
	Units      Units
	Credential string
}

// Identity returns the part of the query that determines the cache key.
func (q WeatherQuery) Identity() Identity {
	return Identity{Location: q.Location, Units: q.Units}
}

// String omits the credential so queries can be logged safely.
func (q WeatherQuery) String() string {
	return fmt.Sprintf("%s (%s)", q.Location, q.Units)
}

// Identity is the (location, units) pair a widget displays.
type Identity struct {
	Location string
	Units    Units
}

// WeatherPayload is a validated upstream observation. Temperature is always present;
// every other field is nil when the upstream response omitted it.
type WeatherPayload struct {
	Location        string    `json:"location,omitempty"`
	Temperature     float64   `json:"temperature"`
	Description     *string   `json:"description,omitempty"`
	IconID          *string   `json:"iconId,omitempty"`
	HumidityPercent *int      `json:"humidityPercent,omitempty"`
	WindSpeed       *float64  `json:"windSpeed,omitempty"`
	FetchedAt       time.Time `json:"fetchedAt"`
}
