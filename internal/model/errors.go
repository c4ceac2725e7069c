package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNetwork        = errors.New("network error")
	ErrRateLimited    = errors.New("rate limited")
)

// Error codes carried in APIError.Code. Callers switch on these instead of
// inspecting response bodies.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeNetwork      = "NETWORK_ERROR"
	CodeInternal     = "INTERNAL_ERROR"
)

// APIError is the tagged error returned by every cart and account operation.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"` // per-field validation messages

	StatusCode int           `json:"-"` // HTTP status, not serialized
	RetryAfter time.Duration `json:"-"` // set on rate limiting when the server says how long
	Err        error         `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		msg += " [" + e.fieldSummary() + "]"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// FirstFieldError returns the first message for field, or "" when the field is clean.
func (e *APIError) FirstFieldError(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

func (e *APIError) fieldSummary() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], "; "))
	}
	return strings.Join(parts, ", ")
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       CodeValidation,
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		Fields:     map[string][]string{field: {reason}},
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewFieldValidationError creates a 422 error carrying the server's per-field messages.
func NewFieldValidationError(message string, fields map[string][]string) *APIError {
	if message == "" {
		message = "the given data was invalid"
	}
	return &APIError{
		Code:       CodeValidation,
		Message:    message,
		Fields:     fields,
		StatusCode: 422,
		Err:        ErrInvalidRequest,
	}
}

// NewConflictError creates a 409 error for requests that clash with work
// already in progress. err is kept for errors.Is.
func NewConflictError(err error) *APIError {
	return &APIError{
		Code:       CodeConflict,
		Message:    err.Error(),
		StatusCode: 409,
		Err:        err,
	}
}

// NewUnauthorizedError creates a 401 error for auth failures.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       CodeUnauthorized,
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}

// NewNetworkError creates a 502 error for transport failures and server faults.
func NewNetworkError(service string, err error) *APIError {
	return &APIError{
		Code:       CodeNetwork,
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %v", ErrNetwork, err),
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       CodeInternal,
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
// retryAfter is zero when the server gave no hint.
func NewRateLimitError(service string, retryAfter time.Duration) *APIError {
	return &APIError{
		Code:       CodeRateLimited,
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		RetryAfter: retryAfter,
		Err:        ErrRateLimited,
	}
}

// IsCode reports whether err carries an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
