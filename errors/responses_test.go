package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            *APIError
		expectedCode   int
		expectedType   ErrorType
		expectedFields []string
	}{
		{
			name: "queue full",
			err: &APIError{
				Type:      QueueFullError,
				Message:   "Server is at capacity",
				Code:      http.StatusServiceUnavailable,
				RequestID: "test-id",
			},
			expectedCode:   http.StatusServiceUnavailable,
			expectedType:   QueueFullError,
			expectedFields: []string{"type", "message", "request_id"},
		},
		{
			name: "error with details",
			err: &APIError{
				Type:      ValidationError,
				Message:   "validation failed",
				Code:      http.StatusBadRequest,
				RequestID: "test-id",
				Details: map[string]interface{}{
					"field": "temperature",
					"error": "lte",
				},
			},
			expectedCode:   http.StatusBadRequest,
			expectedType:   ValidationError,
			expectedFields: []string{"type", "message", "request_id", "details"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()

			WriteError(rr, tt.err)

			if rr.Code != tt.expectedCode {
				t.Errorf("WriteError() status = %v, want %v", rr.Code, tt.expectedCode)
			}

			contentType := rr.Header().Get("Content-Type")
			if contentType != "application/json" {
				t.Errorf("WriteError() content-type = %v, want application/json", contentType)
			}

			var response ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response body: %v", err)
			}

			if response.Type != tt.expectedType {
				t.Errorf("WriteError() error type = %v, want %v", response.Type, tt.expectedType)
			}
			if response.RequestID != "test-id" {
				t.Errorf("WriteError() request id = %v, want test-id", response.RequestID)
			}
			if (tt.err.Details != nil) != (response.Details != nil) {
				t.Errorf("WriteError() details = %v, want %v", response.Details, tt.err.Details)
			}
		})
	}
}

func TestWriteError_HidesCause(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, NewInternalError("req", errTest("secret detail")))

	var raw map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&raw); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
	for _, field := range []string{"err", "code", "Code"} {
		if _, exists := raw[field]; exists {
			t.Errorf("WriteError() leaked field %q", field)
		}
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestDecodeResponse(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, NewRateLimitError("req-7", 3))

	resp, err := DecodeResponse(rr.Body)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if resp.Type != RateLimitError || resp.RequestID != "req-7" {
		t.Errorf("DecodeResponse() = %+v", resp)
	}

	if _, err := DecodeResponse(strings.NewReader(`{"message":"no type"}`)); err == nil {
		t.Error("DecodeResponse() accepted a body without type")
	}
	if _, err := DecodeResponse(strings.NewReader(`not json`)); err == nil {
		t.Error("DecodeResponse() accepted malformed json")
	}
}

func TestAsAPIError(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NewValidationError("req", "bad", nil))

	apiErr, ok := AsAPIError(wrapped)
	if !ok {
		t.Fatal("AsAPIError() did not find the wrapped APIError")
	}
	if apiErr.Type != ValidationError {
		t.Errorf("AsAPIError() type = %v, want %v", apiErr.Type, ValidationError)
	}

	if _, ok := AsAPIError(errTest("plain")); ok {
		t.Error("AsAPIError() matched a plain error")
	}
}
