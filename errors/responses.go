package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrorResponse is the decoded form of an APIError body, used by clients
// and tests.
type ErrorResponse struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// DecodeResponse reads an error body written by WriteError.
func DecodeResponse(r io.Reader) (*ErrorResponse, error) {
	var resp ErrorResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode error response: %w", err)
	}
	if resp.Type == "" {
		return nil, fmt.Errorf("decode error response: missing type")
	}
	return &resp, nil
}

// AsAPIError returns the first *APIError in err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
