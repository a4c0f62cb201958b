package types

import "net/http"

// ErrorResponse is the OpenAI error envelope: {"error": {...}}. Every error
// the relay produces uses it so SDK clients can parse failures uniformly.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the body of an ErrorResponse. Type selects the HTTP status;
// Code is the finer machine-readable reason.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Error type constants used by the OpenAI API.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeAuthentication     = "authentication_error"
	ErrorTypePermissionDenied   = "permission_denied"
	ErrorTypeNotFound           = "not_found"
	ErrorTypeServerError        = "server_error"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeGatewayTimeout     = "gateway_timeout"

	// ErrorTypeEmptyResponse marks an upstream call that succeeded but
	// produced no usable content.
	ErrorTypeEmptyResponse = "empty_response_error"
)

// statusByType maps each error type to its HTTP status. Unknown types are
// treated as internal errors.
var statusByType = map[string]int{
	ErrorTypeInvalidRequest:     http.StatusBadRequest,
	ErrorTypeAuthentication:     http.StatusUnauthorized,
	ErrorTypePermissionDenied:   http.StatusForbidden,
	ErrorTypeNotFound:           http.StatusNotFound,
	ErrorTypeServerError:        http.StatusInternalServerError,
	ErrorTypeServiceUnavailable: http.StatusServiceUnavailable,
	ErrorTypeGatewayTimeout:     http.StatusGatewayTimeout,
	ErrorTypeEmptyResponse:      http.StatusHTTPVersionNotSupported, // 505, kept for client compatibility
}

// Error codes.
const (
	CodeMissingField    = "missing_field"
	CodeInvalidValue    = "invalid_value"
	CodeInvalidJSON     = "invalid_json"
	CodeRequestTooLarge = "request_too_large"
	CodeInternalError   = "internal_error"
	CodeNotFound        = "not_found"

	// Gate rejections.
	CodeMissingAPIKey = "missing_api_key"
	CodeInvalidAPIKey = "invalid_api_key"
	CodeAdminRequired = "admin_required"
	CodeServerBusy    = "server_busy"

	// Upstream failures.
	CodeUpstreamError   = "upstream_error"
	CodeUpstreamTimeout = "upstream_timeout"
	CodeEmptyResponse   = "empty_response"
)

// HTTPStatusCode returns the status an error of this type is served with.
func (e *ErrorDetail) HTTPStatusCode() int {
	if status, ok := statusByType[e.Type]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func newError(errorType, message, param, code string) *ErrorResponse {
	return &ErrorResponse{Error: ErrorDetail{Message: message, Type: errorType, Param: param, Code: code}}
}

// NewInvalidRequestError is a 400 naming the offending parameter, if any.
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return newError(ErrorTypeInvalidRequest, message, param, code)
}

// NewAuthenticationError is a 401 for a missing or rejected credential.
func NewAuthenticationError(message, code string) *ErrorResponse {
	return newError(ErrorTypeAuthentication, message, "", code)
}

// NewPermissionDeniedError is a 403 for a valid key lacking privilege.
func NewPermissionDeniedError(message, code string) *ErrorResponse {
	return newError(ErrorTypePermissionDenied, message, "", code)
}

func NewNotFoundError(message string) *ErrorResponse {
	return newError(ErrorTypeNotFound, message, "", CodeNotFound)
}

func NewServerError(message string) *ErrorResponse {
	return newError(ErrorTypeServerError, message, "", CodeInternalError)
}

// NewUpstreamError reports a failed upstream call. It is served as a 500,
// not a 502, matching what existing clients of the relay expect.
func NewUpstreamError(message string) *ErrorResponse {
	return newError(ErrorTypeServerError, message, "", CodeUpstreamError)
}

func NewEmptyResponseError(message string) *ErrorResponse {
	return newError(ErrorTypeEmptyResponse, message, "", CodeEmptyResponse)
}

// NewServerBusyError is a 503 for a request that never obtained an
// admission slot.
func NewServerBusyError(message string) *ErrorResponse {
	return newError(ErrorTypeServiceUnavailable, message, "", CodeServerBusy)
}

// NewGatewayTimeoutError is a 504 for a request that ran out of time.
func NewGatewayTimeoutError(message string) *ErrorResponse {
	return newError(ErrorTypeGatewayTimeout, message, "", CodeUpstreamTimeout)
}
