// Package widget holds configured weather widgets: their settings, the rules applied when
// settings are saved, and the registry the HTTP layer and cache warmer look them up in.
package widget

import (
	"strings"
	"time"

	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/validation"
)

const (
	DefaultTitle        = "Weather"
	DefaultCacheMinutes = 10
)

// Settings is a sanitized widget configuration.
type Settings struct {
	Title        string
	Location     string
	Credential   string
	Units        models.Units
	CacheMinutes int
}

// RawSettings is a widget configuration as submitted, before sanitizing.
// A nil Credential means "keep the current one" when applied through Instance.Update;
// a nil CacheMinutes selects DefaultCacheMinutes.
type RawSettings struct {
	Title        string  `json:"title" yaml:"title"`
	Location     string  `json:"location" yaml:"location"`
	Credential   *string `json:"credential,omitempty" yaml:"credential"`
	Units        string  `json:"unitsSystem" yaml:"units_system"`
	CacheMinutes *int    `json:"cacheMinutes,omitempty" yaml:"cache_minutes"`
}

// Sanitize applies the settings-form rules: text fields are cleaned with
// validation.SanitizeText, units fall back to metric, omitted cache minutes become
// DefaultCacheMinutes and supplied ones are clamped to at least 1, and an empty title
// becomes DefaultTitle.
func Sanitize(raw RawSettings) Settings {
	s := Settings{
		Title:        validation.SanitizeText(raw.Title),
		Location:     validation.SanitizeText(raw.Location),
		Units:        models.ParseUnits(raw.Units),
		CacheMinutes: DefaultCacheMinutes,
	}
	if raw.CacheMinutes != nil {
		s.CacheMinutes = validation.ClampCacheMinutes(*raw.CacheMinutes)
	}
	if raw.Credential != nil {
		s.Credential = validation.SanitizeText(*raw.Credential)
	}
	if s.Title == "" {
		s.Title = DefaultTitle
	}
	return s
}

// TTL is the cache lifetime for this widget's weather.
func (s Settings) TTL() time.Duration {
	return time.Duration(s.CacheMinutes) * time.Minute
}

// Identity is the (location, units) pair that determines the widget's cache entry.
func (s Settings) Identity() models.Identity {
	return models.Identity{Location: s.Location, Units: s.Units}
}

// MaskCredential hides all but the last four characters of a credential.
// Short credentials are hidden entirely.
func MaskCredential(credential string) string {
	if credential == "" {
		return ""
	}
	r := []rune(credential)
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}
