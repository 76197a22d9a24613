// Package dispatch runs the chat and code pipelines: pick a persona or
// language template, compose the prompt, call the backend and shape the result.
package dispatch

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/teilomillet/promptgate/config"
	"github.com/teilomillet/promptgate/errors"
	"github.com/teilomillet/promptgate/server/backend"
	"github.com/teilomillet/promptgate/server/catalog"
	"github.com/teilomillet/promptgate/server/extract"
	"github.com/teilomillet/promptgate/server/metrics"
	"github.com/teilomillet/promptgate/server/prompt"
	"github.com/teilomillet/promptgate/server/validation"
	"go.uber.org/zap"
)

// Backend is the chat endpoint the dispatcher talks to. *backend.Client
// implements it.
type Backend interface {
	Chat(ctx context.Context, req backend.ChatRequest) (string, error)
}

// Dispatcher is stateless apart from its collaborators and may be shared
// across goroutines.
type Dispatcher struct {
	backend   Backend
	defaults  config.DispatchConfig
	logger    *zap.Logger
	metrics   *metrics.Metrics
	tokens    *validation.TokenCounter
	validator *validation.Validator
}

// Option configures optional Dispatcher collaborators.
type Option func(*Dispatcher)

// WithMetrics records dispatch outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTokenCounter records the token count of every composed prompt.
func WithTokenCounter(tc *validation.TokenCounter) Option {
	return func(d *Dispatcher) { d.tokens = tc }
}

// New creates a Dispatcher that fills absent request fields from defaults.
func New(b Backend, defaults config.DispatchConfig, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		backend:   b,
		defaults:  defaults,
		logger:    logger.With(zap.String("component", "dispatch")),
		validator: validation.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch decodes payload as the request type for kind and runs it. An error
// is returned only when kind is unknown or the payload is not a valid request;
// backend failures come back as a *Failure result.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, payload []byte) (Result, error) {
	switch kind {
	case KindChat:
		var req ChatRequest
		if err := d.decode(payload, &req); err != nil {
			return nil, err
		}
		return d.Chat(ctx, req), nil
	case KindCode:
		var req CodeRequest
		if err := d.decode(payload, &req); err != nil {
			return nil, err
		}
		return d.Code(ctx, req), nil
	default:
		return nil, fmt.Errorf("unknown dispatch kind %q", kind)
	}
}

func (d *Dispatcher) decode(payload []byte, dst interface{}) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	if rerr := d.validator.Struct(dst); rerr != nil {
		return fmt.Errorf("invalid request: %s: %v", rerr.Message, rerr.Details)
	}
	return nil
}

// Chat runs the chat pipeline for req.
func (d *Dispatcher) Chat(ctx context.Context, req ChatRequest) Result {
	message := valueOr(req.Message, d.defaults.Chat.Message)
	model := valueOr(req.Model, d.defaults.Chat.Model)
	temperature := valueOr(req.Temperature, d.defaults.Chat.Temperature)
	persona := catalog.RoleFor(valueOr(req.RoleID, d.defaults.Chat.RoleID))

	logger := d.logger.With(
		zap.String("kind", string(KindChat)),
		zap.String("model", model),
		zap.Int("role_id", persona.Index),
	)

	messages := prompt.ComposeChat(persona, message)
	content, failure := d.call(ctx, logger, KindChat, model, temperature, messages)
	if failure != nil {
		return failure
	}

	d.metrics.RecordDispatch(string(KindChat), "success")
	logger.Debug("Chat dispatch completed", zap.Int("response_length", len(content)))
	return &ChatResult{
		Success:  true,
		Role:     persona.Name,
		Response: content,
		Model:    model,
	}
}

// Code runs the code pipeline for req. When the backend answer has no fenced
// block the whole answer is returned as Code with an empty Explanation.
func (d *Dispatcher) Code(ctx context.Context, req CodeRequest) Result {
	userPrompt := valueOr(req.Prompt, d.defaults.Code.Prompt)
	language := valueOr(req.Language, d.defaults.Code.Language)
	model := valueOr(req.Model, d.defaults.Code.Model)
	temperature := valueOr(req.Temperature, d.defaults.Code.Temperature)
	tmpl := catalog.LanguageTemplateFor(language)

	logger := d.logger.With(
		zap.String("kind", string(KindCode)),
		zap.String("model", model),
		zap.String("language", language),
		zap.String("template", tmpl.Key),
	)

	messages := prompt.ComposeCode(tmpl, userPrompt, language)
	content, failure := d.call(ctx, logger, KindCode, model, temperature, messages)
	if failure != nil {
		return failure
	}

	ex := extract.Extract(content)
	if ex.Code == "" {
		d.metrics.RecordExtractionFallback(tmpl.Key)
		logger.Debug("No fenced block in response, returning raw content as code")
		ex = extract.Extraction{Code: content}
	}

	d.metrics.RecordDispatch(string(KindCode), "success")
	return &CodeResult{
		Success:     true,
		Language:    language,
		Code:        ex.Code,
		Explanation: ex.Explanation,
		Raw:         content,
		Model:       model,
	}
}

func (d *Dispatcher) call(ctx context.Context, logger *zap.Logger, kind Kind, model string, temperature float64, messages []prompt.Message) (string, *Failure) {
	if d.tokens != nil {
		d.metrics.ObservePromptTokens(string(kind), d.tokens.CountMessages(messages))
	}

	start := time.Now()
	content, err := d.backend.Chat(ctx, backend.ChatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
	})
	d.metrics.ObserveBackend(model, time.Since(start))
	if err == nil {
		return content, nil
	}

	failure := failureFrom(err)
	d.metrics.RecordBackendError(string(failure.ErrorType))
	d.metrics.RecordDispatch(string(kind), "failure")
	logger.Warn("Dispatch failed",
		zap.String("error_type", string(failure.ErrorType)),
		zap.Bool("timeout", failure.Timeout),
		zap.Error(err),
	)
	return "", failure
}

// failureFrom maps a backend error onto the failure result, keeping the status
// and body or the transport cause.
func failureFrom(err error) *Failure {
	var (
		httpErr      *backend.HTTPError
		transportErr *backend.TransportError
		decodeErr    *backend.DecodeError
	)
	switch {
	case stderrors.As(err, &httpErr):
		return &Failure{
			Error:     fmt.Sprintf("Backend API error: %d", httpErr.Status),
			ErrorType: errors.BackendHTTPError,
			Details:   httpErr.Body,
			Err:       err,
		}
	case stderrors.As(err, &transportErr):
		msg := "Backend unreachable"
		if transportErr.Timeout {
			msg = "Backend timeout"
		}
		return &Failure{
			Error:     msg,
			ErrorType: errors.TransportError,
			Details:   transportErr.Cause.Error(),
			Timeout:   transportErr.Timeout,
			Err:       err,
		}
	case stderrors.As(err, &decodeErr):
		return &Failure{
			Error:     "Invalid backend response",
			ErrorType: errors.BackendResponseError,
			Details:   decodeErr.Body,
			Err:       err,
		}
	default:
		return &Failure{
			Error:     "Backend request failed",
			ErrorType: errors.TransportError,
			Details:   err.Error(),
			Err:       err,
		}
	}
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
