// Package errors defines the unified error taxonomy for textgate.
// Provider, cache, sanitizer, and configuration failures are mapped to
// these kinds before they cross a package boundary, so callers switch
// on Kind instead of string-matching messages.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error for retry decisions and HTTP mapping.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindAuthentication Kind = "authentication_error"
	KindAuthorization  Kind = "authorization_error"
	KindRateLimit      Kind = "rate_limit_error"
	KindTransientAI    Kind = "transient_ai_error"
	KindPermanentAI    Kind = "permanent_ai_error"
	KindInfrastructure Kind = "infrastructure_error"
	KindConfiguration  Kind = "configuration_error"
)

// Error is the standardized error carried through the core.
type Error struct {
	Kind       Kind          `json:"kind"`
	StatusCode int           `json:"status_code"`
	Message    string        `json:"message"`
	Operation  string        `json:"operation,omitempty"`
	Retryable  bool          `json:"-"`
	RetryAfter time.Duration `json:"-"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s (operation=%s)", e.Kind, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// WithOperation returns a copy of the error tagged with an operation id.
func (e *Error) WithOperation(op string) *Error {
	clone := *e
	clone.Operation = op
	return &clone
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *Error) WithCause(cause error) *Error {
	clone := *e
	clone.cause = cause
	return &clone
}

// HTTPStatusCode returns the HTTP status for the error.
func (e *Error) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// NewValidation creates a validation error (400).
func NewValidation(message string) *Error {
	return &Error{
		Kind:       KindValidation,
		StatusCode: http.StatusBadRequest,
		Message:    message,
	}
}

// NewAuthentication creates an authentication error (401).
func NewAuthentication(message string) *Error {
	return &Error{
		Kind:       KindAuthentication,
		StatusCode: http.StatusUnauthorized,
		Message:    message,
	}
}

// NewAuthorization creates an authorization error (403).
func NewAuthorization(message string) *Error {
	return &Error{
		Kind:       KindAuthorization,
		StatusCode: http.StatusForbidden,
		Message:    message,
	}
}

// NewRateLimit creates a provider rate limit error (429). retryAfter is
// the provider-suggested wait, zero when the provider gave none.
func NewRateLimit(message string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Message:    message,
		Retryable:  true,
		RetryAfter: retryAfter,
	}
}

// NewTransientAI creates a transient provider error (503): network
// timeouts, 5xx responses, connection resets.
func NewTransientAI(message string) *Error {
	return &Error{
		Kind:       KindTransientAI,
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Retryable:  true,
	}
}

// NewPermanentAI creates a permanent provider error (502): the provider
// rejected the request and retrying cannot help.
func NewPermanentAI(message string) *Error {
	return &Error{
		Kind:       KindPermanentAI,
		StatusCode: http.StatusBadGateway,
		Message:    message,
	}
}

// NewInfrastructure creates an infrastructure error (503).
func NewInfrastructure(message string) *Error {
	return &Error{
		Kind:       KindInfrastructure,
		StatusCode: http.StatusServiceUnavailable,
		Message:    message,
		Retryable:  true,
	}
}

// NewConfiguration creates a configuration error (500). Raised at
// startup or on explicit reload, never on the request path.
func NewConfiguration(message string) *Error {
	return &Error{
		Kind:       KindConfiguration,
		StatusCode: http.StatusInternalServerError,
		Message:    message,
	}
}

// KindOf returns the Kind of err, or KindInfrastructure for errors that
// did not originate in the core.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// IsRetryable reports whether err may succeed on retry.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// RetryAfterOf returns the provider-suggested retry delay, zero when
// none was supplied.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// As extracts a *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
