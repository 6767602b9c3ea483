package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the migration service.
type ErrorCode string

// Operator-path error codes. These propagate to the caller unchanged; the
// runtime reconciliation path never raises them.
const (
	ErrScenarioNotFound ErrorCode = "SCENARIO_NOT_FOUND"
	ErrInvalidVersion   ErrorCode = "INVALID_VERSION"
	ErrDuplicatePlan    ErrorCode = "DUPLICATE_PLAN"
	ErrPlanNotFound     ErrorCode = "PLAN_NOT_FOUND"
	ErrInvalidState     ErrorCode = "INVALID_STATE"
	ErrInvalidAnchor    ErrorCode = "INVALID_ANCHOR"
)

// Infrastructure error codes
const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	ErrChecksumMismatch  ErrorCode = "CHECKSUM_MISMATCH"
	ErrStoreFailure      ErrorCode = "STORE_FAILURE"
	ErrInternalError     ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
