package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a structured error classification.
type ErrorCode string

const (
	// ErrCodeAuthentication indicates bad, missing or expired principal credentials.
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION"
	// ErrCodeAuthorization indicates the principal lacks a required role assignment.
	ErrCodeAuthorization ErrorCode = "AUTHORIZATION"
	// ErrCodeNotFound indicates the named cluster or resource does not exist in scope.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeUnresolvableAccess indicates a credential blob could not be turned into a server and token.
	ErrCodeUnresolvableAccess ErrorCode = "UNRESOLVABLE_ACCESS"
	// ErrCodeFetch indicates a transport failure or non-2xx answer from a cluster API server.
	ErrCodeFetch ErrorCode = "FETCH"
	// ErrCodeConfiguration indicates missing or invalid required input fields.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"
	// ErrCodeRateLimited indicates the caller exceeded an enforced request limit.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeInternal indicates an internal system error.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// StructuredError provides structured error information for better observability.
// It includes an error code for programmatic handling, a human-readable message,
// the underlying cause, and optional context for debugging.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new StructuredError with the given code and message.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
	}
}

// NewWithContext creates a new StructuredError with context information.
func NewWithContext(code ErrorCode, message string, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithContext wraps an error with additional context information.
func WrapWithContext(code ErrorCode, message string, cause error, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// CodeOf returns the code of the outermost StructuredError in err's chain,
// or ErrCodeInternal when there is none.
func CodeOf(err error) ErrorCode {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var se *StructuredError
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Cause
	}
	return false
}

// Lookup returns the context value stored under key by the first
// StructuredError in err's chain that has one.
func Lookup(err error, key string) (any, bool) {
	for err != nil {
		var se *StructuredError
		if !stderrors.As(err, &se) {
			return nil, false
		}
		if v, ok := se.Context[key]; ok {
			return v, true
		}
		err = se.Cause
	}
	return nil, false
}

// HTTPStatus maps an error code to the status the API answers with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeAuthorization:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConfiguration:
		return http.StatusBadRequest
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
