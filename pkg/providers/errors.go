package providers

import (
	"fmt"
	"strings"
	"time"
)

// The error types below classify upstream failures. Handlers use errors.As
// on them to choose a response and a metrics label; none of them carry the
// relay's own credentials.

// ProviderError is a generic upstream failure, usually a non-2xx answer.
// StatusCode is zero for transport failures.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return upstreamf(e.Provider, "error: %s", e.Message)
	}
	return upstreamf(e.Provider, "error (status %d): %s", e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// AuthError is an upstream 401 or 403: the relay's own credential was
// refused.
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return upstreamf(e.Provider, "authentication failed: %s", e.Message)
}

// RateLimitError is an upstream 429. RetryAfter is zero when the upstream
// gave no hint.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter <= 0 {
		return upstreamf(e.Provider, "rate limit exceeded: %s", e.Message)
	}
	return upstreamf(e.Provider, "rate limit exceeded (retry after %s): %s", e.RetryAfter, e.Message)
}

// TimeoutError means the request deadline passed before the upstream
// answered.
type TimeoutError struct {
	Provider string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return upstreamf(e.Provider, "request timeout after %s", e.Timeout)
}

// ParseError is an upstream body that could not be decoded. RawResponse
// holds what was received.
type ParseError struct {
	Provider    string
	RawResponse string
	Cause       error
}

func (e *ParseError) Error() string {
	return upstreamf(e.Provider, "response parse error: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// StreamError is a transport failure after a stream has started.
type StreamError struct {
	Provider string
	Message  string
	Cause    error
}

func (e *StreamError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return upstreamf(e.Provider, "stream error: %s", msg)
}

func (e *StreamError) Unwrap() error { return e.Cause }

// EmptyResponseError is an upstream call that succeeded without producing
// any content. It stays distinct from the failures above so callers can
// tell "backend errored" from "backend said nothing".
type EmptyResponseError struct {
	Provider     string
	Model        string
	FinishReason string
}

func (e *EmptyResponseError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "returned an empty response for model %q", e.Model)
	if e.FinishReason != "" {
		fmt.Fprintf(&sb, " (finish reason %s)", e.FinishReason)
	}
	return upstreamf(e.Provider, "%s", sb.String())
}

// ConfigError rejects an adapter configuration at construction time.
type ConfigError struct {
	Provider string
	Field    string
	Message  string
}

func (e *ConfigError) Error() string {
	return upstreamf(e.Provider, "configuration error for field %q: %s", e.Field, e.Message)
}

func upstreamf(name, format string, args ...any) string {
	return fmt.Sprintf("provider %q ", name) + fmt.Sprintf(format, args...)
}
