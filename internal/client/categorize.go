package client

import (
	"context"
	"errors"
	"strings"

	"github.com/kjstillabower/weather-dashboard/internal/circuitbreaker"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryCircuitOpen      ErrorCategory = "circuit_open"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return ErrorCategoryTimeout
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryInvalidAPIKey
	case errors.Is(err, ErrLocationNotFound):
		return ErrorCategoryLocationNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrMalformedResponse):
		return ErrorCategoryParsing
	case errors.Is(err, circuitbreaker.ErrOpen):
		return ErrorCategoryCircuitOpen
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return ErrorCategoryNetwork
	}
	if errors.Is(err, ErrUpstreamFailure) {
		return ErrorCategoryUpstream5xx
	}
	if strings.Contains(errStr, "timeout") {
		return ErrorCategoryTimeout
	}
	return ErrorCategoryUnknown
}

// Kind is the coarse failure class shown to users: the city is unknown,
// the provider is temporarily unavailable, or the response was unusable.
type Kind string

const (
	KindNotFound  Kind = "not_found"
	KindTransient Kind = "transient"
	KindMalformed Kind = "malformed"
)

// KindOf classifies err for user-facing messages. Any error that is neither
// a missing location nor a malformed payload is treated as transient.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLocationNotFound):
		return KindNotFound
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	default:
		return KindTransient
	}
}
