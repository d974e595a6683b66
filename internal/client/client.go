package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/weather-widget/internal/models"
	"github.com/kjstillabower/weather-widget/internal/observability"
)

// DefaultTimeout bounds a single upstream call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps how much of the upstream body is read.
const maxBodyBytes = 1 << 20

// WeatherClient fetches current conditions for one query. Implementations make exactly
// one upstream call per invocation and never retry.
type WeatherClient interface {
	Fetch(ctx context.Context, query models.WeatherQuery) (models.WeatherPayload, error)
}

// OpenWeatherClient calls the OpenWeatherMap current-weather endpoint. The query's
// credential travels as the appid parameter and is redacted from returned errors.
// Safe for concurrent use.
type OpenWeatherClient struct {
	apiURL  *url.URL
	timeout time.Duration
	client  *http.Client
	now     func() time.Time
}

// NewOpenWeatherClient returns a client for the OpenWeatherMap current-weather endpoint at apiURL.
// A non-positive timeout selects DefaultTimeout.
func NewOpenWeatherClient(apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API URL %q: scheme must be http or https", apiURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OpenWeatherClient{
		apiURL:  u,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}, nil
}

// Fetch performs one GET against the upstream API.
// Errors are always *FetchError; the credential never appears in them.
func (c *OpenWeatherClient) Fetch(ctx context.Context, query models.WeatherQuery) (models.WeatherPayload, error) {
	start := time.Now()
	payload, err := c.fetch(ctx, query)
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = statusLabel(err)
		observability.WeatherAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
	}
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)
	return payload, err
}

func (c *OpenWeatherClient) fetch(ctx context.Context, query models.WeatherQuery) (models.WeatherPayload, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, query)
	if err != nil {
		return models.WeatherPayload{}, err
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return models.WeatherPayload{}, transportError(ctx, redact(err, query.Credential))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return models.WeatherPayload{}, &FetchError{Kind: KindUpstreamStatus, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.WeatherPayload{}, transportError(ctx, fmt.Errorf("read response body: %w", err))
	}

	payload, perr := parsePayload(body)
	if perr != nil {
		return models.WeatherPayload{}, perr
	}
	payload.FetchedAt = c.now()
	return payload, nil
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, query models.WeatherQuery) (*http.Request, error) {
	u := *c.apiURL
	params := u.Query()
	params.Set("q", query.Location)
	params.Set("appid", query.Credential)
	params.Set("units", string(query.Units))
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, Err: fmt.Errorf("create request: %w", redact(err, query.Credential))}
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// transportError classifies a failure that happened before a status was available
// (or while reading the body). parent is the caller's context: its cancellation is
// reported as KindCanceled, every deadline as KindTimeout.
func transportError(parent context.Context, err error) *FetchError {
	if errors.Is(parent.Err(), context.Canceled) {
		return &FetchError{Kind: KindCanceled, Err: err}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: KindTimeout, Err: err}
	}
	return &FetchError{Kind: KindNetwork, Err: err}
}

// redact replaces the credential in err's message. *url.Error embeds the full request URL.
func redact(err error, credential string) error {
	if err == nil || credential == "" {
		return err
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return &url.Error{
			Op:  ue.Op,
			URL: strings.ReplaceAll(ue.URL, url.QueryEscape(credential), "REDACTED"),
			Err: ue.Err,
		}
	}
	if strings.Contains(err.Error(), credential) {
		return errors.New(strings.ReplaceAll(err.Error(), credential, "REDACTED"))
	}
	return err
}

// parsePayload extracts the payload from an OpenWeatherMap body. main.temp is required;
// every other field is taken only when present with the expected type.
func parsePayload(body []byte) (models.WeatherPayload, *FetchError) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return models.WeatherPayload{}, invalidResponse("parse response: %w", err)
	}
	if root == nil {
		return models.WeatherPayload{}, invalidResponse("parse response: body is not an object")
	}

	var mainFields map[string]json.RawMessage
	if err := json.Unmarshal(root["main"], &mainFields); err != nil || mainFields == nil {
		return models.WeatherPayload{}, invalidResponse("missing main object")
	}
	temp, ok := decodeFloat(mainFields["temp"])
	if !ok {
		return models.WeatherPayload{}, invalidResponse("missing main.temp")
	}

	payload := models.WeatherPayload{Temperature: temp}
	var name string
	if decode(root["name"], &name) && name != "" {
		payload.Location = name
	}
	if h, ok := decodeFloat(mainFields["humidity"]); ok {
		humidity := int(math.Round(h))
		payload.HumidityPercent = &humidity
	}

	var conditions []map[string]json.RawMessage
	if decode(root["weather"], &conditions) && len(conditions) > 0 {
		var desc, icon string
		if decode(conditions[0]["description"], &desc) {
			payload.Description = &desc
		}
		if decode(conditions[0]["icon"], &icon) && icon != "" {
			payload.IconID = &icon
		}
	}

	var wind map[string]json.RawMessage
	if decode(root["wind"], &wind) {
		if speed, ok := decodeFloat(wind["speed"]); ok {
			payload.WindSpeed = &speed
		}
	}
	return payload, nil
}

func decode(raw json.RawMessage, v any) bool {
	if len(raw) == 0 || string(raw) == "null" {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func decodeFloat(raw json.RawMessage) (float64, bool) {
	var f float64
	if !decode(raw, &f) || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// statusLabel maps a fetch error to the status label of weatherApiCallsTotal.
func statusLabel(err error) string {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return "error"
	}
	switch fe.Kind {
	case KindUpstreamStatus:
		switch {
		case fe.StatusCode == http.StatusTooManyRequests:
			return "rate_limited"
		case fe.StatusCode >= 500:
			return "server_error"
		case fe.StatusCode >= 400:
			return "client_error"
		}
		return "unexpected_status"
	case KindInvalidResponse:
		return "invalid_response"
	case KindTimeout:
		return "timeout"
	default:
		return "error"
	}
}
