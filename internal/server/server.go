package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sundayezeilo/tips/internal/config"
	"github.com/sundayezeilo/tips/internal/httpx"
	"github.com/sundayezeilo/tips/internal/idgen"
	"github.com/sundayezeilo/tips/internal/tips"
)

const healthCheckTimeout = 2 * time.Second

// Pinger reports whether the tip database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server with all dependencies.
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	handler *tips.Handler
	store   Pinger
	ids     idgen.Generator
	server  *http.Server
}

// New creates a new Server instance.
func New(cfg *config.Config, logger *slog.Logger, handler *tips.Handler, store Pinger) *Server {
	return &Server{
		config:  cfg,
		logger:  logger,
		handler: handler,
		store:   store,
		ids:     idgen.NewV7(),
	}
}

// Handler returns the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.applyMiddleware(s.setupRoutes())
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting http server",
			"addr", s.server.Addr,
			"env", s.config.App.Environment,
		)
		serverErrors <- s.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
		return s.shutdownWithTimeout()

	case sig := <-shutdown:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.shutdownWithTimeout()
	}
}

func (s *Server) shutdownWithTimeout() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		// Force close if graceful shutdown fails
		if closeErr := s.server.Close(); closeErr != nil {
			return fmt.Errorf("failed to close server: %w", closeErr)
		}
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /x/health", s.healthCheckHandler)
	if s.config.Observability.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	mux.HandleFunc("GET /api/tips", s.handler.ListTips)
	mux.HandleFunc("GET /api/tips/unapproved", s.handler.ListPending)
	mux.HandleFunc("GET /api/tips/{id}", s.handler.GetTip)
	mux.HandleFunc("POST /api/tips", s.handler.CreateTip)
	mux.HandleFunc("POST /api/tips/{id}/edits", s.handler.CreateEdit)
	mux.HandleFunc("POST /api/tips/{id}/approve", s.handler.ApproveTip)
	mux.HandleFunc("POST /api/tips/{id}/reject", s.handler.RejectTip)
	mux.HandleFunc("POST /api/tips/{id}/revert", s.handler.RevertEdit)
	mux.HandleFunc("DELETE /api/tips/{id}", s.handler.DeleteTip)

	return mux
}

// applyMiddleware wraps the handler with middleware in the correct order.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	middlewares := []httpx.Middleware{
		httpx.Recovery(s.logger), // Outermost: catch panics
		httpx.RequestID(s.ids),
	}
	if s.config.Observability.MetricsEnabled {
		middlewares = append(middlewares, httpx.Metrics)
	}
	middlewares = append(middlewares,
		httpx.Logger(s.logger),
		httpx.CORS(nil), // allow all origins
	)
	return httpx.Chain(middlewares...)(handler)
}

// healthCheckHandler reports 503 while the tip database is unreachable.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "health check failed",
			"request_id", httpx.GetRequestID(ctx),
			"error", err.Error(),
		)
		status, code = "degraded", http.StatusServiceUnavailable
	}

	httpx.WriteJSON(w, code, map[string]string{
		"status":  status,
		"service": s.config.Observability.ServiceName,
		"version": s.config.Observability.ServiceVersion,
	})
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("shutdown timeout exceeded, forcing close")
			return s.server.Close()
		}
		return err
	}

	return nil
}
