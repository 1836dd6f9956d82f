package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Config configures the HTTP server.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
}

// Server serves the generate API and the probes on one listener.
type Server struct {
	health     *HealthServer
	httpServer *http.Server
	logger     *zap.Logger
}

func New(cfg Config, handler *Handler, health *HealthServer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	s := &Server{health: health, logger: logger}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewRouter(handler, health, cfg.RequestTimeout, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// timeoutGrace keeps the router deadline behind the generator's own, so a
// timed-out generation answers with its JSON 504 before chi gives up on the
// request and writes a bare one.
const timeoutGrace = time.Second

// NewRouter creates and configures the HTTP router
func NewRouter(handler *Handler, health *HealthServer, requestTimeout time.Duration, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(RequestLogger(logger))

	health.Routes(r)
	r.Group(func(r chi.Router) {
		if requestTimeout > 0 {
			r.Use(chimiddleware.Timeout(requestTimeout + timeoutGrace))
		}
		handler.Routes(r)
	})
	return r
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe blocks until the server stops. A graceful Shutdown is not
// an error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown fails readiness first, then drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.SetDraining(true)
	return s.httpServer.Shutdown(ctx)
}
