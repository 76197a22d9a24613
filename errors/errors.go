// Package errors provides the structured error model for the promptgate server.
// It includes typed error categories, JSON response formatting, request ID
// tracking, and integrated logging with Uber's zap logger.
//
// Two shapes leave the server:
//
//   - APIError, written by the HTTP boundary for requests that never reach the
//     dispatch pipeline (bad input, rate limiting, queue overflow, timeouts).
//   - The dispatch failure result, which carries one of the backend error types
//     defined here as its discriminant.
//
// Basic usage:
//
//	// Simple error response
//	errors.Error(w, "Something went wrong", http.StatusInternalServerError)
//
//	// Type-specific error
//	errors.ErrorWithType(w, "Invalid input", errors.ValidationError, http.StatusBadRequest)
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// DefaultLogger is the default zap logger instance used throughout the package.
// It is initialized to a production configuration but can be overridden using SetLogger.
var DefaultLogger *zap.Logger

func init() {
	var err error
	DefaultLogger, err = zap.NewProduction()
	if err != nil {
		DefaultLogger = zap.NewNop()
	}
}

// SetLogger allows setting a custom zap logger instance.
// If nil is provided, the function will do nothing to prevent
// accidentally disabling logging.
func SetLogger(logger *zap.Logger) {
	if logger != nil {
		DefaultLogger = logger
	}
}

// ErrorType represents different categories of errors that can occur in the
// gateway.
type ErrorType string

const (
	// ValidationError represents malformed or empty input at the HTTP boundary
	ValidationError ErrorType = "validation_error"

	// InternalError represents unexpected internal server errors
	InternalError ErrorType = "internal_error"

	// ConfigError represents configuration-related errors
	ConfigError ErrorType = "config_error"

	// RateLimitError represents rate limiting errors
	RateLimitError ErrorType = "rate_limit_error"

	// QueueFullError is returned when the admission queue is saturated
	QueueFullError ErrorType = "queue_full"

	// TimeoutError is returned when a request exceeds the server's wall-clock budget
	TimeoutError ErrorType = "timeout_error"

	// NotFoundError represents resource not found errors
	NotFoundError ErrorType = "not_found"

	// BackendHTTPError means the backend answered with a non-200 status
	BackendHTTPError ErrorType = "backend_http_error"

	// TransportError means the backend could not be reached in time
	TransportError ErrorType = "transport_error"

	// BackendResponseError means the backend answered 200 with an unreadable body
	BackendResponseError ErrorType = "backend_response_error"
)

// APIError is our custom error type that implements the error interface
// and provides additional context about the error. It is serialized to JSON
// for API responses while keeping the underlying error for logging.
type APIError struct {
	// Type categorizes the error for client handling
	Type ErrorType `json:"type"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Code is the HTTP status code (not exposed in JSON)
	Code int `json:"-"`

	// RequestID links the error to a specific request
	RequestID string `json:"request_id"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`

	// err is the underlying error (not exposed in JSON)
	err error
}

// Error implements the error interface. It returns a string that
// combines the error type, message, and underlying error (if any).
func (e *APIError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, implementing the unwrap
// interface for error chains.
func (e *APIError) Unwrap() error {
	return e.err
}

// Is implements error matching for errors.Is, allowing type-based
// error matching while ignoring other fields.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WriteError formats and writes an APIError to an http.ResponseWriter.
// It sets the appropriate content type and status code, then writes
// the error as a JSON response.
func WriteError(w http.ResponseWriter, err *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
}

// Error is a drop-in replacement for http.Error that creates and writes
// an APIError with the InternalError type. It includes the request ID from
// the response headers if available.
func Error(w http.ResponseWriter, message string, code int) {
	ErrorWithType(w, message, InternalError, code)
}

// ErrorWithType is like Error but allows specifying the error type.
func ErrorWithType(w http.ResponseWriter, message string, errType ErrorType, code int) {
	requestID := w.Header().Get("X-Request-ID")
	err := &APIError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
	}
	WriteError(w, err)
}
