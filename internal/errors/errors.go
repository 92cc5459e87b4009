package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a specific error type for better error handling
type ErrorCode string

const (
	// Configuration errors - fatal at startup
	ErrCodeConfigLoad   ErrorCode = "CONFIG_LOAD_FAILED"
	ErrCodeUnknownGroup ErrorCode = "UNKNOWN_GROUP"
	ErrCodeNoServers    ErrorCode = "NO_SERVERS_CONFIGURED"

	// Lookup errors
	ErrCodeResolveFailed ErrorCode = "RESOLVE_FAILED"
	ErrCodeNoResult      ErrorCode = "NO_RESULT"

	// Protocol and transport errors
	ErrCodeProtocol  ErrorCode = "PROTOCOL_ERROR"
	ErrCodeTransport ErrorCode = "TRANSPORT_ERROR"
)

// RouterError represents a structured error with context
type RouterError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component,omitempty"`
	Cause     error     `json:"-"` // Original error
}

// Error implements the error interface
func (e *RouterError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *RouterError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error code
func (e *RouterError) Is(target error) bool {
	if t, ok := target.(*RouterError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a new RouterError
func NewError(code ErrorCode, component, message string) *RouterError {
	return &RouterError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewErrorWithCause creates a new RouterError with an underlying cause
func NewErrorWithCause(code ErrorCode, component, message string, cause error) *RouterError {
	return &RouterError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
		Details:   cause.Error(),
	}
}

// WrapError wraps an existing error with RouterError structure
func WrapError(err error, code ErrorCode, component, message string) *RouterError {
	if err == nil {
		return nil
	}

	return &RouterError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Details:   err.Error(),
	}
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var rErr *RouterError
	if errors.As(err, &rErr) {
		return rErr.Code
	}
	return ErrCodeTransport
}

// IsConfigError reports whether an error is fatal at configuration load time
func IsConfigError(err error) bool {
	switch GetErrorCode(err) {
	case ErrCodeConfigLoad, ErrCodeUnknownGroup, ErrCodeNoServers:
		return true
	default:
		return false
	}
}
