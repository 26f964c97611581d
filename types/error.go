package types

import "fmt"

// ErrorCode represents a unified error code across the module.
type ErrorCode string

// Request and provider error codes.
const (
	ErrInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrMalformedInput   ErrorCode = "MALFORMED_INPUT"
	ErrAuthentication   ErrorCode = "AUTHENTICATION"
	ErrForbidden        ErrorCode = "FORBIDDEN"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
	ErrQuotaExceeded    ErrorCode = "QUOTA_EXCEEDED"
	ErrModelOverloaded  ErrorCode = "MODEL_OVERLOADED"
	ErrTimeout          ErrorCode = "TIMEOUT"
	ErrUpstreamError    ErrorCode = "UPSTREAM_ERROR"
	ErrUnknownProvider  ErrorCode = "UNKNOWN_PROVIDER"
	ErrMissingModel     ErrorCode = "MISSING_MODEL"
	ErrSchemaValidation ErrorCode = "SCHEMA_VALIDATION"
	ErrCancelled        ErrorCode = "CANCELLED"
	ErrInternalError    ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
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

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// AsError converts any error into an *Error, wrapping foreign errors as
// non-retryable internal errors so callers always see a code.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return NewError(ErrInternalError, err.Error()).WithCause(err)
}
