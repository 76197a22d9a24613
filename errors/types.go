package errors

import (
	"net/http"
	"time"
)

// NewError creates a new APIError with the given parameters.
// It is a general-purpose constructor that allows full control over
// the error's fields. For most cases, you should use one of the
// specialized constructors below.
//
// Example:
//
//	err := NewError(InternalError, "encode failed", 500, "req_123", nil, encErr)
func NewError(errType ErrorType, message string, code int, requestID string, details map[string]interface{}, err error) *APIError {
	return &APIError{
		Type:      errType,
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Details:   details,
		err:       err,
	}
}

// NewValidationError creates a validation error with appropriate defaults.
// Use this for requests rejected before dispatch, such as:
//   - Wrong content type
//   - Missing or malformed JSON body
//   - Field constraint violations
//
// Example:
//
//	err := NewValidationError("req_123", "Invalid request", map[string]interface{}{
//	    "field": "temperature",
//	    "error": "must be between 0 and 2",
//	})
func NewValidationError(requestID, message string, validationDetails map[string]interface{}) *APIError {
	return &APIError{
		Type:      ValidationError,
		Message:   message,
		Code:      http.StatusBadRequest,
		RequestID: requestID,
		Details:   validationDetails,
	}
}

// NewRateLimitError creates a rate limit error with appropriate defaults.
//
// Example:
//
//	err := NewRateLimitError("req_123", 30)
func NewRateLimitError(requestID string, retryAfter int) *APIError {
	return &APIError{
		Type:      RateLimitError,
		Message:   "Rate limit exceeded",
		Code:      http.StatusTooManyRequests,
		RequestID: requestID,
		Details: map[string]interface{}{
			"retry_after": retryAfter,
		},
	}
}

// NewQueueFullError creates the error returned when no admission slot or
// waiting position is available.
func NewQueueFullError(requestID string, maxWaiting int64) *APIError {
	return &APIError{
		Type:      QueueFullError,
		Message:   "Server is at capacity",
		Code:      http.StatusServiceUnavailable,
		RequestID: requestID,
		Details: map[string]interface{}{
			"max_waiting": maxWaiting,
		},
	}
}

// NewTimeoutError creates a gateway timeout error for a request that exceeded
// the server's wall-clock budget.
func NewTimeoutError(requestID string, timeout time.Duration, err error) *APIError {
	return &APIError{
		Type:      TimeoutError,
		Message:   "Request timeout",
		Code:      http.StatusGatewayTimeout,
		RequestID: requestID,
		Details: map[string]interface{}{
			"timeout": timeout.String(),
		},
		err: err,
	}
}

// NewInternalError creates an internal server error with appropriate defaults.
// Use this for unexpected errors that are not covered by other error types:
//   - Panics
//   - Response encoding failures
//
// Example:
//
//	err := NewInternalError("req_123", encErr)
func NewInternalError(requestID string, err error) *APIError {
	return &APIError{
		Type:      InternalError,
		Message:   "An internal error occurred",
		Code:      http.StatusInternalServerError,
		RequestID: requestID,
		err:       err,
	}
}
