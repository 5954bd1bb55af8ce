package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/gorilla/mux"

	"github.com/al3dwii/agenticBE/internal/config"
)

// RequestObserver records per-request metrics.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// Server wraps the HTTP server and related dependencies.
type Server struct {
	cfg    config.Config
	logger *slog.Logger
	server *http.Server
	router *mux.Router

	closing     context.Context
	stopClosing context.CancelFunc
}

// New constructs a server with base routes and middleware wiring. observer
// may be nil.
func New(cfg config.Config, logger *slog.Logger, observer RequestObserver) *Server {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
	router.Use(instrument(logger, observer))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	closing, stopClosing := context.WithCancel(context.Background())
	return &Server{
		cfg:         cfg,
		logger:      logger,
		server:      srv,
		router:      router,
		closing:     closing,
		stopClosing: stopClosing,
	}
}

// Run starts the HTTP server and blocks until it exits or errors.
func (s *Server) Run() error {
	s.logger.Info("api server listening", "addr", s.server.Addr, "env", s.cfg.Env)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server within the provided context timeout.
// Streams watching Closing are released before connections are drained.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.stopClosing()
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Closing is closed once Shutdown begins.
func (s *Server) Closing() <-chan struct{} {
	return s.closing.Done()
}

// Mux exposes the router for route registration by other packages.
func (s *Server) Mux() *mux.Router {
	return s.router
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func instrument(logger *slog.Logger, observer RequestObserver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			elapsed := time.Since(start)
			if observer != nil {
				observer.ObserveRequest(r.Method, route, rec.status, elapsed)
			}
			logger.Info("request", "method", r.Method, "route", route, "status", rec.status, "duration", elapsed)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps event streams working through the middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
