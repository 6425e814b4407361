package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Caller-facing errors. These surface directly as request failures.
var (
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Statement-store failures. Retried inside the LRS client and then absorbed
// by the orchestrator's degradation branch, never returned to end callers.
var (
	ErrLRSTimeout     = New("LRS_TIMEOUT", http.StatusGatewayTimeout, "statement store timed out")
	ErrLRSConnection  = New("LRS_CONNECTION", http.StatusBadGateway, "statement store unreachable")
	ErrLRSAuth        = New("LRS_AUTH", http.StatusBadGateway, "statement store rejected credentials")
	ErrLRSRateLimited = New("LRS_RATE_LIMITED", http.StatusBadGateway, "statement store rate limited the request")
	ErrLRSServer      = New("LRS_SERVER", http.StatusBadGateway, "statement store returned a server error")
	ErrLRSClient      = New("LRS_CLIENT", http.StatusBadGateway, "statement store rejected the request")
)

// Cache sentinels. ErrCacheMiss distinguishes absence from failure;
// ErrCacheUnavailable never propagates past the cache service boundary.
var (
	ErrCacheMiss        = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrCacheUnavailable = New("CACHE_UNAVAILABLE", http.StatusServiceUnavailable, "cache store unavailable")
)

// IsRetriable reports whether a statement-store failure is worth retrying.
// Timeouts, connection failures, 5xx and 429 qualify; other 4xx do not.
func IsRetriable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Code {
	case ErrLRSTimeout.Code, ErrLRSConnection.Code, ErrLRSServer.Code, ErrLRSRateLimited.Code:
		return true
	default:
		return false
	}
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
