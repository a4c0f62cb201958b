package proxy

import (
	"context"
	"errors"

	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/proxy/types"
)

// ErrServerShutdown is the cancellation cause set on request contexts when
// the server is shutting down. A stream interrupted with this cause reports
// StreamCancelled instead of a client disconnect.
var ErrServerShutdown = errors.New("server shutting down")

// genericInternalMessage is all a client learns about unclassified failures.
const genericInternalMessage = "An internal error occurred. Please try again later."

// HandleError converts an error to an OpenAI error envelope.
//
//   - *RequestError: 400
//   - *providers.EmptyResponseError: 505
//   - any other upstream failure: 500 upstream_error
//   - cancellation and everything else: 500 with a generic message
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}

	var emptyErr *providers.EmptyResponseError
	if errors.As(err, &emptyErr) {
		return types.NewEmptyResponseError(emptyErr.Error())
	}

	if msg, ok := upstreamMessage(err); ok {
		return types.NewUpstreamError(msg)
	}

	return types.NewServerError(genericInternalMessage)
}

// IsUpstreamError reports whether err came from the upstream call, as
// opposed to request validation or local failures.
func IsUpstreamError(err error) bool {
	var emptyErr *providers.EmptyResponseError
	if errors.As(err, &emptyErr) {
		return true
	}
	_, ok := upstreamMessage(err)
	return ok
}

// UpstreamErrorKind returns a short label for metrics.
func UpstreamErrorKind(err error) string {
	var (
		emptyErr   *providers.EmptyResponseError
		timeoutErr *providers.TimeoutError
		rateErr    *providers.RateLimitError
		authErr    *providers.AuthError
		parseErr   *providers.ParseError
		streamErr  *providers.StreamError
		provErr    *providers.ProviderError
	)
	switch {
	case errors.As(err, &emptyErr):
		return "empty"
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &rateErr):
		return "rate_limit"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &streamErr):
		return "stream"
	case errors.As(err, &provErr):
		return "provider"
	default:
		return "other"
	}
}

// upstreamMessage returns the client-facing summary of an upstream error.
// Only the error string is exposed, never wrapped causes' internals.
func upstreamMessage(err error) (string, bool) {
	var (
		provErr    *providers.ProviderError
		authErr    *providers.AuthError
		rateErr    *providers.RateLimitError
		timeoutErr *providers.TimeoutError
		parseErr   *providers.ParseError
		streamErr  *providers.StreamError
	)
	switch {
	case errors.As(err, &provErr):
		return provErr.Error(), true
	case errors.As(err, &authErr):
		// Do not echo what the upstream said about our credential.
		return "upstream rejected the relay credentials", true
	case errors.As(err, &rateErr):
		return rateErr.Error(), true
	case errors.As(err, &timeoutErr):
		return timeoutErr.Error(), true
	case errors.As(err, &parseErr):
		return parseErr.Error(), true
	case errors.As(err, &streamErr):
		return streamErr.Error(), true
	}
	return "", false
}
