// Package dto defines API request/response types and error handling.
//
// Error handling follows a structured pattern:
//   - ErrorCode provides machine-readable error classification
//   - APIError wraps errors with HTTP status codes and details
//   - Constructor functions (NotFound, NotAllowed, etc.) create common errors
package dto

import (
	"fmt"
	"maps"
	"net/http"
	"strconv"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrorCodeInvalidPayload is returned when the body is not valid JSON or
	// lacks required fields.
	ErrorCodeInvalidPayload ErrorCode = "INVALID_PAYLOAD"
	// ErrorCodeNotAllowed is returned when a dataset name is not allowed.
	ErrorCodeNotAllowed ErrorCode = "NOT_ALLOWED"
	// ErrorCodeCorruptData is returned when a dataset file cannot be parsed.
	ErrorCodeCorruptData ErrorCode = "CORRUPT_DATA"
	// ErrorCodeNotFound is returned for unknown routes.
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeUnauthorized is returned when the shared secret is missing or wrong.
	ErrorCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrorCodePayloadTooLarge is returned when the body exceeds the limit.
	ErrorCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrorCodeRateLimitExceeded is returned when a client sends too many requests.
	ErrorCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrorCodeStorageError is returned when a storage operation fails.
	ErrorCodeStorageError ErrorCode = "STORAGE_ERROR"
	// ErrorCodeInternal is returned when an unexpected server error occurs.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse is the standard API error response.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    ErrorCode      `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
	}
}

// WithDetails adds details to the error.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	maps.Copy(e.details, details)
	return e
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// NotFound creates a 404 error for an unknown route.
func NotFound() *APIError {
	return NewAPIError(http.StatusNotFound, ErrorCodeNotFound, "Not found")
}

// Unauthorized creates a 401 error.
func Unauthorized() *APIError {
	return NewAPIError(http.StatusUnauthorized, ErrorCodeUnauthorized, "Unauthorized")
}

// NotAllowed creates a 400 error naming the rejected dataset. kind is "Type"
// or "Dataset", matching the field the name came from.
func NotAllowed(kind, name string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeNotAllowed, kind+" '"+name+"' not allowed").
		WithDetail("name", name)
}

// InvalidPayload creates a 400 error for an unusable request body.
func InvalidPayload(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeInvalidPayload, message)
}

// CorruptData creates a 400 error for a dataset file that cannot be parsed.
func CorruptData(err error) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrorCodeCorruptData, "Existing data is corrupt").Wrap(err)
}

// PayloadTooLarge creates a 413 error for a body over limit bytes.
func PayloadTooLarge(limit int64) *APIError {
	return NewAPIError(http.StatusRequestEntityTooLarge, ErrorCodePayloadTooLarge, "Request body too large").
		WithDetail("max_bytes", limit)
}

// RateLimitExceeded creates a 429 error.
func RateLimitExceeded(retryAfter int) *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrorCodeRateLimitExceeded, "Rate limit exceeded, retry after "+strconv.Itoa(retryAfter)+"s").
		WithDetail("retry_after", retryAfter)
}

// StorageError creates a 500 error wrapping a storage failure.
func StorageError(err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrorCodeStorageError, "Storage error").Wrap(err)
}
