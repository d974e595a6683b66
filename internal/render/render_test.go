package render

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-widget/internal/client"
	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/service"
)

func strPtr(s string) *string     { return &s }
func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func metricQuery() models.WeatherQuery {
	return models.WeatherQuery{Location: "Seattle", Units: models.UnitsMetric, Credential: "k"}
}

func TestRender_FullPayloadMetric(t *testing.T) {
	payload := models.WeatherPayload{
		Temperature:     21.6,
		Description:     strPtr("clear sky"),
		IconID:          strPtr("01d"),
		HumidityPercent: intPtr(54),
		WindSpeed:       floatPtr(3.1),
	}

	m := Render(metricQuery(), payload, nil)

	assert.Equal(t, KindRendered, m.Kind)
	assert.Empty(t, m.Message)
	require.NotNil(t, m.Details)
	assert.Equal(t, "22°C", m.Details.Temperature)
	require.NotNil(t, m.Details.Description)
	assert.Equal(t, "Clear Sky", *m.Details.Description)
	require.NotNil(t, m.Details.IconURL)
	assert.Equal(t, "https://openweathermap.org/img/wn/01d@2x.png", *m.Details.IconURL)
	assert.Equal(t, "Clear Sky", m.Details.IconAlt)
	require.NotNil(t, m.Details.HumidityLine)
	assert.Equal(t, "Humidity: 54%", *m.Details.HumidityLine)
	require.NotNil(t, m.Details.WindLine)
	assert.Equal(t, "3.1 m/s", *m.Details.WindLine)
}

func TestRender_Imperial(t *testing.T) {
	q := metricQuery()
	q.Units = models.UnitsImperial
	payload := models.WeatherPayload{Temperature: 71.2, WindSpeed: floatPtr(8.2)}

	m := Render(q, payload, nil)

	require.NotNil(t, m.Details)
	assert.Equal(t, "71°F", m.Details.Temperature)
	require.NotNil(t, m.Details.WindLine)
	assert.Equal(t, "8.2 mph", *m.Details.WindLine)
}

func TestRender_OnlyTemperature(t *testing.T) {
	m := Render(metricQuery(), models.WeatherPayload{Temperature: -0.4}, nil)

	require.Equal(t, KindRendered, m.Kind)
	assert.Equal(t, "0°C", m.Details.Temperature)
	assert.Nil(t, m.Details.Description)
	assert.Nil(t, m.Details.IconURL)
	assert.Empty(t, m.Details.IconAlt)
	assert.Nil(t, m.Details.HumidityLine)
	assert.Nil(t, m.Details.WindLine)
}

func TestRender_EmptyDescriptionIsAbsent(t *testing.T) {
	m := Render(metricQuery(), models.WeatherPayload{Temperature: 5, Description: strPtr(""), IconID: strPtr("04n")}, nil)

	require.Equal(t, KindRendered, m.Kind)
	assert.Nil(t, m.Details.Description)
	require.NotNil(t, m.Details.IconURL)
	assert.Empty(t, m.Details.IconAlt)
}

func TestRender_TemperatureRounding(t *testing.T) {
	tests := []struct {
		temp float64
		want string
	}{
		{21.4, "21°C"},
		{21.5, "22°C"},
		{-2.5, "-3°C"},
		{-2.4, "-2°C"},
		{0, "0°C"},
		{100, "100°C"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.temp), func(t *testing.T) {
			m := Render(metricQuery(), models.WeatherPayload{Temperature: tt.temp}, nil)
			require.NotNil(t, m.Details)
			assert.Equal(t, tt.want, m.Details.Temperature)
		})
	}
}

func TestRender_WindFormatting(t *testing.T) {
	tests := []struct {
		speed float64
		want  string
	}{
		{3, "3 m/s"},
		{3.10, "3.1 m/s"},
		{0.25, "0.25 m/s"},
		{12.345, "12.345 m/s"},
	}
	for _, tt := range tests {
		m := Render(metricQuery(), models.WeatherPayload{Temperature: 1, WindSpeed: floatPtr(tt.speed)}, nil)
		require.NotNil(t, m.Details.WindLine)
		assert.Equal(t, tt.want, *m.Details.WindLine)
	}
}

func TestRender_ErrorKinds(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    Kind
		message string
	}{
		{"missing config", service.ErrMissingConfig, KindMissingConfig, MessageMissingConfig},
		{"wrapped missing config", fmt.Errorf("widget 3: %w", service.ErrMissingConfig), KindMissingConfig, MessageMissingConfig},
		{"unavailable", fmt.Errorf("%w: %w", service.ErrUnavailable, &client.FetchError{Kind: client.KindUpstreamStatus, StatusCode: 503}), KindServiceUnavailable, MessageServiceUnavailable},
		{"any other error", errors.New("boom"), KindServiceUnavailable, MessageServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Render(metricQuery(), models.WeatherPayload{Temperature: 20}, tt.err)
			assert.Equal(t, tt.want, m.Kind)
			assert.Equal(t, tt.message, m.Message)
			assert.Nil(t, m.Details)
		})
	}
}

func TestRender_NonFiniteTemperatureIsNoData(t *testing.T) {
	for _, temp := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		m := Render(metricQuery(), models.WeatherPayload{Temperature: temp}, nil)
		assert.Equal(t, KindNoData, m.Kind)
		assert.Equal(t, MessageNoData, m.Message)
		assert.Nil(t, m.Details)
	}
}

func TestRender_InvalidUnitsFallBackToMetric(t *testing.T) {
	q := metricQuery()
	q.Units = "kelvin"
	m := Render(q, models.WeatherPayload{Temperature: 10, WindSpeed: floatPtr(2)}, nil)
	assert.Equal(t, "10°C", m.Details.Temperature)
	assert.Equal(t, "2 m/s", *m.Details.WindLine)
}

func TestRender_Deterministic(t *testing.T) {
	desc := "light rain"
	payload := models.WeatherPayload{Temperature: 12.3, Description: &desc, HumidityPercent: intPtr(80)}

	a := Render(metricQuery(), payload, nil)
	b := Render(metricQuery(), payload, nil)

	assert.Equal(t, a, b)
	assert.Equal(t, "light rain", desc, "input must not be mutated")
}

func TestTitleCase(t *testing.T) {
	tests := map[string]string{
		"clear sky":               "Clear Sky",
		"overcast clouds":         "Overcast Clouds",
		"light intensity drizzle": "Light Intensity Drizzle",
		"already Title":           "Already Title",
		"mIxEd case":              "MIxEd Case",
		"  leading space":         "  Leading Space",
		"éclaircies":              "Éclaircies",
		"thunderstorm":            "Thunderstorm",
	}
	for in, want := range tests {
		assert.Equal(t, want, titleCase(in), in)
	}
}
