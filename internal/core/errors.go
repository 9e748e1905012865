package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// APIErrorType is the closed classification taxonomy for transport and
// provider failures. The retry policy and the UI layer both branch on it.
type APIErrorType string

const (
	ErrorAuthentication APIErrorType = "authentication"
	ErrorRateLimit      APIErrorType = "rate_limit"
	ErrorQuotaExceeded  APIErrorType = "quota_exceeded"
	ErrorTimeout        APIErrorType = "timeout"
	ErrorNetwork        APIErrorType = "network"
	ErrorServerError    APIErrorType = "server_error"
	ErrorInvalidRequest APIErrorType = "invalid_request"
	ErrorUnknown        APIErrorType = "unknown"
)

// APIError is a classified provider failure. Created fresh per failure and
// never mutated afterwards.
type APIError struct {
	Type       APIErrorType
	Message    string
	Provider   Provider
	StatusCode int           // 0 when the failure never produced a response
	RetryAfter time.Duration // 0 when the provider gave no hint
	Timestamp  time.Time

	// Err is the original error for unwrapping; not exposed to clients.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the original error.
func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the failure class is worth one more synchronous
// attempt. Authentication, quota and request-shape failures never are.
func (e *APIError) Retryable() bool {
	switch e.Type {
	case ErrorRateLimit, ErrorTimeout, ErrorNetwork, ErrorServerError:
		return true
	}
	return false
}

// NewAPIError builds a classified error with the timestamp set.
func NewAPIError(t APIErrorType, provider Provider, statusCode int, message string, err error) *APIError {
	return &APIError{
		Type:       t,
		Message:    message,
		Provider:   provider,
		StatusCode: statusCode,
		Timestamp:  time.Now(),
		Err:        err,
	}
}

// ErrNotInitialized is returned by manager methods invoked before Initialize
// completes (or after Shutdown).
var ErrNotInitialized = errors.New("api manager not initialized")

// statusCoder is implemented by errors that carry an HTTP status code.
type statusCoder interface{ HTTPStatusCode() int }

// retryAfterer is implemented by errors that carry a provider retry hint.
type retryAfterer interface{ RetryAfterHint() time.Duration }

// Classify maps an arbitrary error into the closed taxonomy. Ordering
// matters: specific categories (authentication, rate limit, quota) are
// matched before the generic network and server checks, because provider
// messages frequently contain overlapping phrasing.
func Classify(err error) *APIError {
	if err == nil {
		return nil
	}

	// Already classified; pass through untouched.
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	msg := strings.ToLower(err.Error())

	statusCode := 0
	var sc statusCoder
	if errors.As(err, &sc) {
		statusCode = sc.HTTPStatusCode()
	}

	var retryAfter time.Duration
	var ra retryAfterer
	if errors.As(err, &ra) {
		retryAfter = ra.RetryAfterHint()
	}

	classified := func(t APIErrorType) *APIError {
		e := NewAPIError(t, "", statusCode, err.Error(), err)
		e.RetryAfter = retryAfter
		return e
	}

	switch {
	case statusCode == 401 || statusCode == 403,
		containsAny(msg, "unauthorized", "invalid api key", "incorrect api key", "authentication"):
		return classified(ErrorAuthentication)

	case statusCode == 429, retryAfter > 0,
		containsAny(msg, "rate limit", "too many requests"):
		return classified(ErrorRateLimit)

	case containsAny(msg, "quota", "billing", "insufficient_quota"):
		return classified(ErrorQuotaExceeded)

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded),
		isTimeout(err),
		containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return classified(ErrorTimeout)

	case isNetError(err),
		containsAny(msg, "connection refused", "connection reset", "no such host",
			"network", "dns", "broken pipe"):
		return classified(ErrorNetwork)

	case statusCode >= 500:
		return classified(ErrorServerError)

	case statusCode >= 400 && statusCode < 500,
		containsAny(msg, "invalid", "bad request", "malformed", "unsupported"):
		return classified(ErrorInvalidRequest)
	}

	return classified(ErrorUnknown)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isNetError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsUnsupportedTemperature reports whether the failure is a provider
// rejection of the temperature parameter itself, which the manager handles
// by retrying once with the parameter removed.
func IsUnsupportedTemperature(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "temperature") &&
		containsAny(msg, "unsupported_value", "unsupported value", "does not support")
}
