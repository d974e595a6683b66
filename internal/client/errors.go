package client

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a fetch failed.
type ErrorKind int

const (
	KindTimeout ErrorKind = iota + 1
	KindCanceled
	KindNetwork
	KindUpstreamStatus
	KindInvalidResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindNetwork:
		return "network"
	case KindUpstreamStatus:
		return "upstream_status"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is; a *FetchError matches the sentinel of its Kind.
var (
	ErrTimeout         = errors.New("upstream timeout")
	ErrCanceled        = errors.New("upstream request canceled")
	ErrNetwork         = errors.New("upstream unreachable")
	ErrUpstreamStatus  = errors.New("upstream returned non-success status")
	ErrInvalidResponse = errors.New("invalid upstream response")
)

// FetchError is returned by Fetch for every failure. StatusCode is set for KindUpstreamStatus.
// Err never contains the credential.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := e.Kind.String()
	if e.Kind == KindUpstreamStatus {
		msg = fmt.Sprintf("%s: HTTP %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "weather fetch " + msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrCanceled:
		return e.Kind == KindCanceled
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrUpstreamStatus:
		return e.Kind == KindUpstreamStatus
	case ErrInvalidResponse:
		return e.Kind == KindInvalidResponse
	}
	return false
}

func invalidResponse(format string, args ...any) *FetchError {
	return &FetchError{Kind: KindInvalidResponse, Err: fmt.Errorf(format, args...)}
}
