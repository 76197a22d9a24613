// Package server assembles the promptgate HTTP server: router, middleware
// stack, dispatch pipeline and lifecycle.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/teilomillet/promptgate/config"
	"github.com/teilomillet/promptgate/errors"
	"github.com/teilomillet/promptgate/server/backend"
	"github.com/teilomillet/promptgate/server/dispatch"
	"github.com/teilomillet/promptgate/server/handlers"
	"github.com/teilomillet/promptgate/server/metrics"
	"github.com/teilomillet/promptgate/server/middleware"
	"github.com/teilomillet/promptgate/server/validation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// Server represents the HTTP server
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	httpServer *http.Server
	backend    *backend.Client
	metrics    *metrics.Metrics
	queue      *middleware.QueueMiddleware
	watcher    config.Watcher
	level      *zap.AtomicLevel
}

// Option configures optional Server behaviour.
type Option func(*Server)

// WithConfigWatcher applies reloaded configuration while the server runs.
func WithConfigWatcher(w config.Watcher) Option {
	return func(s *Server) { s.watcher = w }
}

// WithLogLevel lets reloads change the level of the process logger.
func WithLogLevel(level zap.AtomicLevel) Option {
	return func(s *Server) { s.level = &level }
}

// New builds a server for cfg. The backend base URL is fixed here for the
// lifetime of the server.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := backend.NewClient(cfg.Backend, logger)
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		backend: client,
		metrics: metrics.NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	dispatchOpts := []dispatch.Option{dispatch.WithMetrics(s.metrics)}
	if cfg.Dispatch.CountTokens {
		counter, err := validation.NewTokenCounter(cfg.Dispatch.TokenEncoding)
		if err != nil {
			return nil, fmt.Errorf("create token counter: %w", err)
		}
		dispatchOpts = append(dispatchOpts, dispatch.WithTokenCounter(counter))
	}
	dispatcher := dispatch.New(client, cfg.Dispatch, logger, dispatchOpts...)

	if cfg.Queue.Enabled {
		s.queue = middleware.NewQueueMiddleware(middleware.QueueConfig{
			MaxConcurrent: cfg.Queue.MaxConcurrent,
			MaxWaiting:    cfg.Queue.MaxWaiting,
			Metrics:       s.metrics,
		})
	}

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        s.routes(dispatcher),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		ErrorLog:       zap.NewStdLog(logger),
	}
	return s, nil
}

func (s *Server) routes(d handlers.Dispatcher) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.PrometheusMetrics(s.metrics))
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.CORS(s.cfg.CORS.AllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errors.ErrorWithType(w, "Resource not found", errors.NotFoundError, http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		errors.ErrorWithType(w, "Method not allowed", errors.ValidationError, http.StatusMethodNotAllowed)
	})

	r.Get("/health", handlers.Health(s.logger))
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	r.Get("/roles", handlers.Roles(s.logger))
	r.Get("/languages", handlers.Languages(s.logger))

	h := handlers.NewDispatchHandler(d, s.cfg.Server.MaxBodyBytes, s.logger)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
		if s.cfg.RateLimit.Enabled {
			r.Use(middleware.NewRateLimiter(s.cfg.RateLimit, s.metrics).Handler)
		}
		if s.queue != nil {
			r.Use(s.queue.Handler)
		}
		r.Post("/chat", h.Chat)
		r.Post("/code", h.Code)
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens on the configured port and blocks until ctx is cancelled or
// the listener fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Server started",
			zap.String("address", ln.Addr().String()),
			zap.String("backend", s.cfg.Backend.BaseURL),
		)
		if err := s.httpServer.Serve(ln); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	if s.watcher != nil {
		g.Go(func() error {
			s.watchConfig(gctx)
			return nil
		})
	}

	return g.Wait()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down server")
	defer s.backend.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}
	if s.queue != nil {
		if err := s.queue.Shutdown(ctx); err != nil {
			return fmt.Errorf("error draining queue: %w", err)
		}
	}
	return nil
}

func (s *Server) watchConfig(ctx context.Context) {
	updates := s.watcher.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			s.applyConfig(cfg)
		}
	}
}

// applyConfig applies the parts of a reloaded configuration that can change
// at runtime: the log level and the queue's waiting limit.
func (s *Server) applyConfig(cfg *config.Config) {
	if cfg.Backend.BaseURL != s.cfg.Backend.BaseURL {
		s.logger.Warn("Ignoring backend.base_url change until restart",
			zap.String("current", s.cfg.Backend.BaseURL),
			zap.String("configured", cfg.Backend.BaseURL),
		)
	}

	if s.level != nil {
		if lvl, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil && lvl != s.level.Level() {
			s.level.SetLevel(lvl)
			s.logger.Info("Log level changed", zap.String("level", lvl.String()))
		}
	}

	if s.queue != nil && cfg.Queue.MaxWaiting != s.queue.MaxWaiting() {
		s.queue.SetMaxWaiting(cfg.Queue.MaxWaiting)
		s.logger.Info("Queue waiting limit changed", zap.Int64("max_waiting", cfg.Queue.MaxWaiting))
	}
}
