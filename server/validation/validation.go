// Package validation decodes and validates dispatch request bodies.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationErrorDetail describes one rejected aspect of a request.
type ValidationErrorDetail struct {
	Field   string `json:"field"`           // The field that failed validation
	Message string `json:"message"`         // Human-readable error message
	Code    string `json:"code"`            // Machine-readable error code
	Value   string `json:"value,omitempty"` // The invalid value (if safe to return)
}

// RequestError is returned when a request body is rejected before dispatch.
type RequestError struct {
	Status  int
	Message string
	Details []ValidationErrorDetail
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s (%d details)", e.Message, len(e.Details))
}

// DetailMap flattens the details into the map form used by errors.APIError.
func (e *RequestError) DetailMap() map[string]interface{} {
	if len(e.Details) == 0 {
		return nil
	}
	return map[string]interface{}{"errors": e.Details}
}

// Validator wraps go-playground/validator and reports failures using JSON
// field names.
type Validator struct {
	validate *validator.Validate
}

// New returns a Validator ready for concurrent use.
func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Struct validates s and returns nil when it passes.
func (v *Validator) Struct(s interface{}) *RequestError {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestError{
			Status:  http.StatusBadRequest,
			Message: "Request validation failed",
			Details: []ValidationErrorDetail{{Field: "body", Message: err.Error(), Code: "invalid"}},
		}
	}

	details := make([]ValidationErrorDetail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, ValidationErrorDetail{
			Field:   fe.Field(),
			Message: describe(fe),
			Code:    fmt.Sprintf("%s_validation_failed", fe.Tag()),
			Value:   fmt.Sprintf("%v", fe.Value()),
		})
	}
	return &RequestError{
		Status:  http.StatusBadRequest,
		Message: "Request validation failed",
		Details: details,
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "required":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	default:
		return fmt.Sprintf("validation failed on '%s'", fe.Tag())
	}
}

// DecodeRequest reads a JSON object from r into dst and validates it.
// The body must be declared as application/json, be at most maxBytes long
// and hold a single JSON object. An empty object is valid.
func (v *Validator) DecodeRequest(w http.ResponseWriter, r *http.Request, maxBytes int64, dst interface{}) *RequestError {
	ct := r.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
		return single(http.StatusBadRequest, "Invalid or missing Content-Type header", ValidationErrorDetail{
			Field:   "header:Content-Type",
			Message: "Content-Type must be application/json",
			Code:    "invalid_content_type",
			Value:   ct,
		})
	}

	if r.Body == nil {
		return missingBody()
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return single(http.StatusRequestEntityTooLarge, "Request body too large", ValidationErrorDetail{
				Field:   "body",
				Message: fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit),
				Code:    "body_too_large",
			})
		}
		return single(http.StatusBadRequest, "Invalid request format", ValidationErrorDetail{
			Field:   "body",
			Message: err.Error(),
			Code:    "unreadable_body",
		})
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return missingBody()
	}
	if data[0] != '{' {
		return single(http.StatusBadRequest, "Invalid request format", ValidationErrorDetail{
			Field:   "body",
			Message: "request body must be a JSON object",
			Code:    "invalid_json",
		})
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(dst); err != nil {
		return single(http.StatusBadRequest, "Invalid request format", ValidationErrorDetail{
			Field:   "body",
			Message: err.Error(),
			Code:    "invalid_json",
		})
	}
	if dec.More() {
		return single(http.StatusBadRequest, "Invalid request format", ValidationErrorDetail{
			Field:   "body",
			Message: "unexpected data after JSON object",
			Code:    "invalid_json",
		})
	}

	return v.Struct(dst)
}

func missingBody() *RequestError {
	return single(http.StatusBadRequest, "Request body is required", ValidationErrorDetail{
		Field:   "body",
		Message: "request body is empty",
		Code:    "missing_body",
	})
}

func single(status int, message string, d ValidationErrorDetail) *RequestError {
	return &RequestError{Status: status, Message: message, Details: []ValidationErrorDetail{d}}
}
