package logical

import (
	"fmt"
	"net/http"
)

// CodedError is an error that carries an HTTP status code.
// This allows services to return errors with appropriate status codes
// without relying on string matching.
type CodedError struct {
	Status  int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *CodedError) Unwrap() error {
	return e.Err
}

// Code returns the HTTP status code.
func (e *CodedError) Code() int {
	return e.Status
}

// ErrBadRequest creates a 400 Bad Request error.
func ErrBadRequest(message string) *CodedError {
	return &CodedError{Status: http.StatusBadRequest, Message: message}
}

// ErrUnauthorized creates a 401 Unauthorized error.
func ErrUnauthorized(message string) *CodedError {
	return &CodedError{Status: http.StatusUnauthorized, Message: message}
}

// ErrForbidden creates a 403 Forbidden error.
func ErrForbidden(message string) *CodedError {
	return &CodedError{Status: http.StatusForbidden, Message: message}
}

// ErrNotFound creates a 404 Not Found error.
func ErrNotFound(message string) *CodedError {
	return &CodedError{Status: http.StatusNotFound, Message: message}
}

// ErrInternal creates a 500 Internal Server Error.
func ErrInternal(message string) *CodedError {
	return &CodedError{Status: http.StatusInternalServerError, Message: message}
}

// ErrServiceUnavailable creates a 503 Service Unavailable error.
func ErrServiceUnavailable(message string) *CodedError {
	return &CodedError{Status: http.StatusServiceUnavailable, Message: message}
}

// WrapWithCode wraps an existing error with an HTTP status code.
func WrapWithCode(status int, err error) *CodedError {
	return &CodedError{Status: status, Message: err.Error(), Err: err}
}

// GetErrorCode extracts the HTTP status code from an error.
// If the error is a CodedError, it returns the status code.
// Otherwise, it returns 500 Internal Server Error.
func GetErrorCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if coded, ok := err.(*CodedError); ok {
		return coded.Status
	}
	if unwrapped, ok := err.(interface{ Unwrap() error }); ok {
		return GetErrorCode(unwrapped.Unwrap())
	}
	return http.StatusInternalServerError
}
