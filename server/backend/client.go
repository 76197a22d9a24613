// Package backend implements the HTTP client for an Ollama-compatible chat
// endpoint (POST {baseURL}/api/chat).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teilomillet/promptgate/config"
	"github.com/teilomillet/promptgate/server/prompt"
	"go.uber.org/zap"
)

const (
	chatPath = "/api/chat"

	// maxResponseBytes caps how much of a backend body is read.
	maxResponseBytes = 32 << 20
)

// ChatRequest is one non-streaming chat call.
type ChatRequest struct {
	Model       string
	Messages    []prompt.Message
	Temperature float64
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
}

type chatBody struct {
	Model    string           `json:"model"`
	Messages []prompt.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Options  chatOptions      `json:"options"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Client calls the backend chat endpoint. It holds no per-request state and is
// safe for concurrent use.
type Client struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for cfg.BaseURL. The base URL is fixed for the
// lifetime of the client.
func NewClient(cfg config.BackendConfig, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url: %q", cfg.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + chatPath,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		logger:     logger.With(zap.String("component", "backend")),
	}, nil
}

// Chat sends one request and returns message.content from the response. A 200
// response without message.content yields an empty string and no error.
//
// Errors are *HTTPError, *TransportError or *DecodeError. Nothing is retried.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (string, error) {
	payload, err := json.Marshal(chatBody{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   false,
		Options:  chatOptions{Temperature: req.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal backend request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create backend request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", c.transportError(ctx, err, start)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", c.transportError(ctx, err, start)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Backend returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("model", req.Model),
			zap.Duration("latency", time.Since(start)),
		)
		return "", &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", &DecodeError{Body: string(body), Cause: err}
	}

	c.logger.Debug("Backend call completed",
		zap.String("model", req.Model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("content_length", len(decoded.Message.Content)),
	)
	return decoded.Message.Content, nil
}

func (c *Client) transportError(ctx context.Context, err error, start time.Time) error {
	terr := &TransportError{Cause: err, Timeout: isTimeout(ctx, err)}
	c.logger.Warn("Backend request failed",
		zap.Error(err),
		zap.Bool("timeout", terr.Timeout),
		zap.Duration("latency", time.Since(start)),
	)
	return terr
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Close releases idle connections held by the client.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
