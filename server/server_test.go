package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/promptgate/config"
	"github.com/teilomillet/promptgate/errors"
	"github.com/teilomillet/promptgate/server/catalog"
	"github.com/teilomillet/promptgate/server/mocks"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// ollamaStub answers /api/chat with a fixed status and body and records the
// decoded request bodies.
type ollamaStub struct {
	mu       sync.Mutex
	requests []map[string]interface{}
	status   int
	content  string
	raw      string
	block    bool
}

func (o *ollamaStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		o.mu.Lock()
		o.requests = append(o.requests, body)
		o.mu.Unlock()
	}
	if o.block {
		<-r.Context().Done()
		return
	}
	if o.status != 0 && o.status != http.StatusOK {
		w.WriteHeader(o.status)
		io.WriteString(w, o.raw)
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": map[string]string{"role": "assistant", "content": o.content},
		"done":    true,
	})
}

func (o *ollamaStub) last(t *testing.T) map[string]interface{} {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.requests)
	return o.requests[len(o.requests)-1]
}

func newTestServer(t *testing.T, stub *ollamaStub, mutate func(*config.Config)) *httptest.Server {
	t.Helper()
	backendSrv := httptest.NewServer(stub)
	t.Cleanup(backendSrv.Close)

	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = backendSrv.URL
	if mutate != nil {
		mutate(cfg)
	}

	s, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(s.backend.Close)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestServer_Chat(t *testing.T) {
	stub := &ollamaStub{content: "Hello from the backend"}
	ts := newTestServer(t, stub, nil)

	resp, body := postJSON(t, ts.URL+"/chat", `{}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, map[string]interface{}{
		"success":  true,
		"role":     catalog.RoleFor(1).Name,
		"response": "Hello from the backend",
		"model":    "llama3:8b",
	}, body)

	wire := stub.last(t)
	assert.Equal(t, "llama3:8b", wire["model"])
	assert.Equal(t, false, wire["stream"])
	assert.Equal(t, map[string]interface{}{"temperature": 0.7}, wire["options"])
	messages := wire["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, map[string]interface{}{"role": "user", "content": "Hello"}, messages[1])
}

func TestServer_Code(t *testing.T) {
	t.Run("fenced answer", func(t *testing.T) {
		stub := &ollamaStub{content: "Sure:\n```rust\nfn main() {}\n```\nThat's it."}
		ts := newTestServer(t, stub, nil)

		resp, body := postJSON(t, ts.URL+"/code", `{"prompt":"empty main","language":"RUST","model":"codellama"}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "fn main() {}", body["code"])
		assert.Equal(t, "Sure:\n\nThat's it.", body["explanation"])
		assert.Equal(t, "RUST", body["language"])
		assert.Equal(t, "codellama", body["model"])
		assert.Equal(t, map[string]interface{}{"temperature": 0.2}, stub.last(t)["options"])
	})

	t.Run("unfenced answer", func(t *testing.T) {
		stub := &ollamaStub{content: "print(1)"}
		ts := newTestServer(t, stub, nil)

		resp, body := postJSON(t, ts.URL+"/code", `{}`)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "print(1)", body["code"])
		assert.Equal(t, "", body["explanation"])
	})
}

func TestServer_BackendFailures(t *testing.T) {
	t.Run("backend error status", func(t *testing.T) {
		ts := newTestServer(t, &ollamaStub{status: http.StatusInternalServerError, raw: "internal error"}, nil)

		resp, body := postJSON(t, ts.URL+"/chat", `{}`)

		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, map[string]interface{}{
			"success":    false,
			"error":      "Backend API error: 500",
			"error_type": "backend_http_error",
			"details":    "internal error",
		}, body)
	})

	t.Run("backend timeout", func(t *testing.T) {
		ts := newTestServer(t, &ollamaStub{block: true}, func(cfg *config.Config) {
			cfg.Backend.Timeout = 50 * time.Millisecond
		})

		resp, body := postJSON(t, ts.URL+"/code", `{}`)

		assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
		assert.Equal(t, "transport_error", body["error_type"])
		assert.Equal(t, true, body["timeout"])
	})

	t.Run("backend unreachable", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		deadURL := "http://" + ln.Addr().String()
		ln.Close()

		ts := newTestServer(t, &ollamaStub{}, func(cfg *config.Config) {
			cfg.Backend.BaseURL = deadURL
		})

		resp, body := postJSON(t, ts.URL+"/chat", `{}`)

		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, "Backend unreachable", body["error"])
		assert.Equal(t, "transport_error", body["error_type"])
	})
}

func TestServer_RequestTimeout(t *testing.T) {
	ts := newTestServer(t, &ollamaStub{block: true}, func(cfg *config.Config) {
		cfg.Server.RequestTimeout = 50 * time.Millisecond
		cfg.Backend.Timeout = 5 * time.Second
	})

	resp, body := postJSON(t, ts.URL+"/chat", `{}`)

	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	assert.Equal(t, string(errors.TimeoutError), body["type"])
	assert.Equal(t, resp.Header.Get("X-Request-ID"), body["request_id"])
}

func TestServer_Validation(t *testing.T) {
	ts := newTestServer(t, &ollamaStub{content: "unused"}, nil)

	resp, err := http.Post(ts.URL+"/chat", "text/plain", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	apiErr, err := errors.DecodeResponse(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, errors.ValidationError, apiErr.Type)
}

func TestServer_Routes(t *testing.T) {
	ts := newTestServer(t, &ollamaStub{}, nil)

	tests := []struct {
		name         string
		method       string
		path         string
		expectedCode int
		contains     string
	}{
		{"health", http.MethodGet, "/health", http.StatusOK, `{"status":"healthy"}`},
		{"roles", http.MethodGet, "/roles", http.StatusOK, `"index":10`},
		{"languages", http.MethodGet, "/languages", http.StatusOK, `"powershell"`},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, "promptgate_http_requests_total"},
		{"unknown route", http.MethodGet, "/v1/completions", http.StatusNotFound, `"type":"not_found"`},
		{"wrong method", http.MethodGet, "/chat", http.StatusMethodNotAllowed, `"type":"validation_error"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.expectedCode, resp.StatusCode)
			data, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(data), tt.contains)
		})
	}
}

func TestServer_RateLimit(t *testing.T) {
	ts := newTestServer(t, &ollamaStub{content: "ok"}, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2}
	})

	for i := 0; i < 2; i++ {
		resp, _ := postJSON(t, ts.URL+"/chat", `{}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, body := postJSON(t, ts.URL+"/chat", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limit_error", body["type"])

	// Catalog routes are not limited.
	health, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestServer_Queue(t *testing.T) {
	ts := newTestServer(t, &ollamaStub{content: "```\nx\n```"}, func(cfg *config.Config) {
		cfg.Queue = config.QueueConfig{Enabled: true, MaxConcurrent: 2, MaxWaiting: 8}
	})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(ts.URL+"/code", "application/json", strings.NewReader(`{}`))
			if !assert.NoError(t, err) {
				return
			}
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}()
	}
	wg.Wait()
}

func TestServer_ServeAndReload(t *testing.T) {
	backendSrv := httptest.NewServer(&ollamaStub{content: "hi"})
	defer backendSrv.Close()

	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = backendSrv.URL
	cfg.Queue.Enabled = true

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	watcher := mocks.NewMockConfigWatcher(cfg)
	s, err := New(cfg, zaptest.NewLogger(t), WithConfigWatcher(watcher), WithLogLevel(level))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/health", ln.Addr()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return watcher.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	reloaded := config.DefaultConfig()
	reloaded.Backend.BaseURL = "http://elsewhere:11434"
	reloaded.Logging.Level = "debug"
	reloaded.Queue.Enabled = true
	reloaded.Queue.MaxWaiting = 3
	watcher.UpdateConfig(reloaded)

	assert.Eventually(t, func() bool { return level.Level() == zapcore.DebugLevel }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return s.queue.MaxWaiting() == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, backendSrv.URL, s.cfg.Backend.BaseURL, "base url is fixed at start-up")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNew_RejectsBadBackendURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend.BaseURL = "ftp://example.com"

	_, err := New(cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}
