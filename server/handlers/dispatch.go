// Package handlers provides HTTP handlers for the promptgate server.
//
// The dispatch handlers validate the request body, hand the decoded request to
// the dispatcher and translate the result into a status code:
//
//	success                                  200
//	backend_http_error, backend_response_error 502
//	transport_error                          502, or 504 when the backend timed out
//
// Requests rejected before dispatch get an errors.APIError with type
// validation_error.
package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/teilomillet/promptgate/errors"
	"github.com/teilomillet/promptgate/server/dispatch"
	"github.com/teilomillet/promptgate/server/middleware"
	"github.com/teilomillet/promptgate/server/validation"
	"go.uber.org/zap"
)

// Dispatcher runs the chat and code pipelines. *dispatch.Dispatcher
// implements it.
type Dispatcher interface {
	Chat(ctx context.Context, req dispatch.ChatRequest) dispatch.Result
	Code(ctx context.Context, req dispatch.CodeRequest) dispatch.Result
}

// DispatchHandler serves POST /chat and POST /code.
type DispatchHandler struct {
	dispatcher   Dispatcher
	validator    *validation.Validator
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewDispatchHandler creates the dispatch handler. Request bodies larger than
// maxBodyBytes are rejected with 413.
func NewDispatchHandler(d Dispatcher, maxBodyBytes int64, logger *zap.Logger) *DispatchHandler {
	return &DispatchHandler{
		dispatcher:   d,
		validator:    validation.New(),
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Chat handles POST /chat.
func (h *DispatchHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req dispatch.ChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r, dispatch.KindChat, h.dispatcher.Chat(r.Context(), req))
}

// Code handles POST /code.
func (h *DispatchHandler) Code(w http.ResponseWriter, r *http.Request) {
	var req dispatch.CodeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respond(w, r, dispatch.KindCode, h.dispatcher.Code(r.Context(), req))
}

func (h *DispatchHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	rerr := h.validator.DecodeRequest(w, r, h.maxBodyBytes, dst)
	if rerr == nil {
		return true
	}

	requestID := middleware.GetRequestID(r.Context())
	h.logger.Debug("Rejected request",
		zap.String("request_id", requestID),
		zap.String("path", r.URL.Path),
		zap.String("reason", rerr.Message),
	)
	apiErr := errors.NewValidationError(requestID, rerr.Message, rerr.DetailMap())
	apiErr.Code = rerr.Status
	errors.WriteError(w, apiErr)
	return false
}

func (h *DispatchHandler) respond(w http.ResponseWriter, r *http.Request, kind dispatch.Kind, res dispatch.Result) {
	// The Timeout middleware answers once the request budget is spent.
	if stderrors.Is(r.Context().Err(), context.DeadlineExceeded) {
		return
	}

	status := StatusFor(res)
	if f, ok := res.(*dispatch.Failure); ok {
		h.logger.Info("Dispatch failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("kind", string(kind)),
			zap.String("error_type", string(f.ErrorType)),
			zap.Int("status", status),
		)
	}
	writeJSON(w, r, h.logger, status, res)
}

// StatusFor maps a dispatch result to its HTTP status.
func StatusFor(res dispatch.Result) int {
	f, ok := res.(*dispatch.Failure)
	if !ok {
		return http.StatusOK
	}
	if f.Timeout {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, r *http.Request, logger *zap.Logger, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		requestID := middleware.GetRequestID(r.Context())
		errors.LogError(logger, err, requestID)
		errors.WriteError(w, errors.NewInternalError(requestID, err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		logger.Debug("Failed to write response", zap.Error(err))
	}
}
