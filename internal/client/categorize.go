package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels (weatherApiErrorsTotal, cacheErrorsTotal).
const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryCanceled         ErrorCategory = "canceled"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryUpstreamOther    ErrorCategory = "upstream_other"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryCircuitOpen      ErrorCategory = "circuit_open"
	ErrorCategoryCache            ErrorCategory = "cache"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
// Fetch errors are classified by kind and status; other errors by message heuristics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	var fe *FetchError
	if errors.As(err, &fe) {
		switch fe.Kind {
		case KindTimeout:
			return ErrorCategoryTimeout
		case KindCanceled:
			return ErrorCategoryCanceled
		case KindNetwork:
			return ErrorCategoryNetwork
		case KindInvalidResponse:
			return ErrorCategoryParsing
		case KindUpstreamStatus:
			return categorizeStatus(fe.StatusCode)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCategoryCanceled
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "circuit breaker open"):
		return ErrorCategoryCircuitOpen
	case strings.Contains(errStr, "timeout"):
		return ErrorCategoryTimeout
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "network"):
		return ErrorCategoryNetwork
	case strings.Contains(errStr, "parse") || strings.Contains(errStr, "unmarshal") || strings.Contains(errStr, "decode"):
		return ErrorCategoryParsing
	case strings.Contains(errStr, "cache") || strings.Contains(errStr, "memcache"):
		return ErrorCategoryCache
	}
	return ErrorCategoryUnknown
}

func categorizeStatus(code int) ErrorCategory {
	switch {
	case code == http.StatusUnauthorized:
		return ErrorCategoryInvalidAPIKey
	case code == http.StatusNotFound:
		return ErrorCategoryLocationNotFound
	case code == http.StatusTooManyRequests:
		return ErrorCategoryRateLimited
	case code >= 500:
		return ErrorCategoryUpstream5xx
	default:
		return ErrorCategoryUpstreamOther
	}
}
