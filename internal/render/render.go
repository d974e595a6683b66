// Package render turns a weather lookup outcome into a display model.
// It performs no I/O and never mutates its inputs.
package render

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/service"
)

// Kind is the display state of a widget.
type Kind string

const (
	KindMissingConfig      Kind = "missing_config"
	KindServiceUnavailable Kind = "service_unavailable"
	KindNoData             Kind = "no_data"
	KindRendered           Kind = "rendered"
)

// Messages shown for the non-rendered kinds.
const (
	MessageMissingConfig      = "Please configure both City and API Key in the widget settings."
	MessageServiceUnavailable = "Weather service is currently unavailable."
	MessageNoData             = "No weather data available."
)

const iconURLFormat = "https://openweathermap.org/img/wn/%s@2x.png"

// Model is what the display boundary renders. Details is set only for KindRendered.
type Model struct {
	Kind    Kind     `json:"kind"`
	Message string   `json:"message,omitempty"`
	Details *Details `json:"details,omitempty"`
}

// Details holds preformatted display strings. Optional lines are nil when the upstream
// payload lacked the field.
type Details struct {
	Temperature  string  `json:"temperature"`
	Description  *string `json:"description,omitempty"`
	IconURL      *string `json:"iconUrl,omitempty"`
	IconAlt      string  `json:"iconAlt,omitempty"`
	HumidityLine *string `json:"humidity,omitempty"`
	WindLine     *string `json:"wind,omitempty"`
}

// Render maps a lookup result to a Model. err takes precedence over payload.
func Render(query models.WeatherQuery, payload models.WeatherPayload, err error) Model {
	switch {
	case errors.Is(err, service.ErrMissingConfig):
		return Model{Kind: KindMissingConfig, Message: MessageMissingConfig}
	case err != nil:
		return Model{Kind: KindServiceUnavailable, Message: MessageServiceUnavailable}
	case math.IsNaN(payload.Temperature) || math.IsInf(payload.Temperature, 0):
		return Model{Kind: KindNoData, Message: MessageNoData}
	}

	units := query.Units
	if !units.Valid() {
		units = models.UnitsMetric
	}

	d := &Details{Temperature: formatTemperature(payload.Temperature, units)}
	if payload.Description != nil && *payload.Description != "" {
		desc := titleCase(*payload.Description)
		d.Description = &desc
	}
	if payload.IconID != nil && *payload.IconID != "" {
		u := fmt.Sprintf(iconURLFormat, *payload.IconID)
		d.IconURL = &u
		if d.Description != nil {
			d.IconAlt = *d.Description
		}
	}
	if payload.HumidityPercent != nil {
		line := "Humidity: " + strconv.Itoa(*payload.HumidityPercent) + "%"
		d.HumidityLine = &line
	}
	if payload.WindSpeed != nil {
		line := strconv.FormatFloat(*payload.WindSpeed, 'f', -1, 64) + " " + windUnit(units)
		d.WindLine = &line
	}
	return Model{Kind: KindRendered, Details: d}
}

func formatTemperature(t float64, units models.Units) string {
	symbol := "°C"
	if units == models.UnitsImperial {
		symbol = "°F"
	}
	rounded := math.Round(t)
	if rounded == 0 {
		rounded = 0 // drop negative zero
	}
	return strconv.FormatFloat(rounded, 'f', 0, 64) + symbol
}

func windUnit(units models.Units) string {
	if units == models.UnitsImperial {
		return "mph"
	}
	return "m/s"
}

// titleCase upper-cases the first letter of every space-separated word and leaves the
// rest of each word untouched.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	atWordStart := true
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if atWordStart && r != utf8.RuneError {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteString(s[:size])
		}
		atWordStart = unicode.IsSpace(r)
		s = s[size:]
	}
	return b.String()
}
