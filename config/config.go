// Package config provides configuration management for the promptgate server.
// It covers the HTTP listener, the generative backend, dispatch defaults,
// logging, and the optional admission controls (rate limiting and queueing).
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvBackendURL overrides backend.base_url when set.
const EnvBackendURL = "OLLAMA_BASE_URL"

// Config represents the complete server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Queue     QueueConfig     `yaml:"queue"`
	CORS      CORSConfig      `yaml:"cors"`
}

// ServerConfig holds server-specific configuration for the HTTP server.
type ServerConfig struct {
	// Port specifies the HTTP server port (default: 8000)
	Port int `yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body (default: 30s)
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// It must leave room for RequestTimeout (default: 75s)
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// RequestTimeout is the wall-clock budget for a dispatch request. It must be
	// larger than the backend timeout; exceeding it yields 504 (default: 60s)
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxHeaderBytes controls the maximum number of bytes the server will
	// read parsing the request header's keys and values (default: 1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits the size of dispatch request bodies (default: 1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// ShutdownTimeout specifies how long to wait for the server to shutdown
	// gracefully before forcing termination (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BackendConfig describes the generative backend. The base URL is read once at
// start-up and is not changed by config reloads.
type BackendConfig struct {
	// BaseURL is the backend root, e.g. "http://localhost:11434"
	BaseURL string `yaml:"base_url"`

	// Timeout bounds a single backend call (default: 30s)
	Timeout time.Duration `yaml:"timeout"`
}

// DispatchConfig holds per-kind request defaults and prompt accounting.
type DispatchConfig struct {
	Chat ChatDefaults `yaml:"chat"`
	Code CodeDefaults `yaml:"code"`

	// CountTokens records prompt token counts using tiktoken. The encoding is
	// loaded at start-up, which may require network access.
	CountTokens bool `yaml:"count_tokens"`

	// TokenEncoding is the tiktoken encoding name (default: cl100k_base)
	TokenEncoding string `yaml:"token_encoding"`
}

// ChatDefaults fills fields absent from a chat request.
type ChatDefaults struct {
	Message     string  `yaml:"message"`
	Model       string  `yaml:"model"`
	RoleID      int     `yaml:"role_id"`
	Temperature float64 `yaml:"temperature"`
}

// CodeDefaults fills fields absent from a code request.
type CodeDefaults struct {
	Prompt      string  `yaml:"prompt"`
	Language    string  `yaml:"language"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	// Level sets logging verbosity: debug, info, warn, error
	Level string `yaml:"level"`

	// Format specifies log output format: json or text
	Format string `yaml:"format"`
}

// RateLimitConfig controls the per-client limiter on dispatch routes.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// QueueConfig controls admission to the dispatch routes. At most MaxConcurrent
// requests run; up to MaxWaiting more wait in FIFO order and the rest are
// rejected with 503.
type QueueConfig struct {
	Enabled       bool  `yaml:"enabled"`
	MaxConcurrent int   `yaml:"max_concurrent"`
	MaxWaiting    int64 `yaml:"max_waiting"`
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    75 * time.Second,
			RequestTimeout:  60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:11434",
			Timeout: 30 * time.Second,
		},
		Dispatch: DispatchConfig{
			Chat: ChatDefaults{
				Message:     "Hello",
				Model:       "llama3:8b",
				RoleID:      1,
				Temperature: 0.7,
			},
			Code: CodeDefaults{
				Prompt:      "Write a hello world program",
				Language:    "python",
				Model:       "llama3:8b",
				Temperature: 0.2,
			},
			CountTokens:   false,
			TokenEncoding: "cl100k_base",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Queue: QueueConfig{
			Enabled:       false,
			MaxConcurrent: 8,
			MaxWaiting:    64,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// LoadFile loads configuration from a YAML file
func LoadFile(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// LoadFileOrDefault behaves like LoadFile, except that a missing file yields
// the defaults (still subject to environment overrides and validation).
func LoadFileOrDefault(filename string) (*Config, error) {
	cfg, err := LoadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return finalize(DefaultConfig())
	}
	return cfg, err
}

// expandEnvVars resolves ${VAR} and ${VAR:-default} references. Unset variables
// without a default expand to the empty string.
func expandEnvVars(s string) (string, error) {
	if strings.Count(s, "${") > strings.Count(s, "}") {
		return "", fmt.Errorf("invalid syntax: unterminated variable reference")
	}

	return os.Expand(s, func(key string) string {
		if i := strings.Index(key, ":-"); i >= 0 {
			if val := os.Getenv(key[:i]); val != "" {
				return val
			}
			return key[i+2:]
		}
		return os.Getenv(key)
	}), nil
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expandedData, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expand environment variables: %w", err)
	}

	// Start with defaults
	config := DefaultConfig()

	// Decode YAML on top of defaults. An empty document keeps the defaults.
	dec := yaml.NewDecoder(strings.NewReader(expandedData))
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	return finalize(config)
}

func finalize(config *Config) (*Config, error) {
	if v := os.Getenv(EnvBackendURL); v != "" {
		config.Backend.BaseURL = v
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("negative read timeout: %v", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("negative write timeout: %v", c.Server.WriteTimeout)
	}
	if c.Server.MaxHeaderBytes < 0 {
		return fmt.Errorf("negative max header bytes: %d", c.Server.MaxHeaderBytes)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive: %d", c.Server.MaxBodyBytes)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("negative shutdown timeout: %v", c.Server.ShutdownTimeout)
	}

	// Backend validation
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend base url: %q", c.Backend.BaseURL)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend timeout must be positive: %v", c.Backend.Timeout)
	}

	// The outer budget must outlast the backend budget so that a backend timeout
	// is reported as such instead of being cut off by the listener.
	if c.Server.RequestTimeout <= c.Backend.Timeout {
		return fmt.Errorf("request timeout (%v) must exceed backend timeout (%v)",
			c.Server.RequestTimeout, c.Backend.Timeout)
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Server.RequestTimeout {
		return fmt.Errorf("write timeout (%v) must exceed request timeout (%v)",
			c.Server.WriteTimeout, c.Server.RequestTimeout)
	}

	// Dispatch validation
	if c.Dispatch.Chat.Temperature < 0 || c.Dispatch.Chat.Temperature > 2 {
		return fmt.Errorf("invalid chat temperature: %v", c.Dispatch.Chat.Temperature)
	}
	if c.Dispatch.Code.Temperature < 0 || c.Dispatch.Code.Temperature > 2 {
		return fmt.Errorf("invalid code temperature: %v", c.Dispatch.Code.Temperature)
	}
	if c.Dispatch.Chat.Model == "" || c.Dispatch.Code.Model == "" {
		return fmt.Errorf("empty default model")
	}
	if c.Dispatch.CountTokens && c.Dispatch.TokenEncoding == "" {
		return fmt.Errorf("token counting enabled without an encoding")
	}

	// Logging validation
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Admission validation
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive requests_per_minute and burst")
	}
	if c.Queue.Enabled && (c.Queue.MaxConcurrent <= 0 || c.Queue.MaxWaiting < 0) {
		return fmt.Errorf("queue requires positive max_concurrent and non-negative max_waiting")
	}

	return nil
}
