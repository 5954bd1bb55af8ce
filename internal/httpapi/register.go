package httpapi

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/mux"

	"github.com/al3dwii/agenticBE/internal/auth"
	"github.com/al3dwii/agenticBE/internal/domain"
	"github.com/al3dwii/agenticBE/internal/packs"
	"github.com/al3dwii/agenticBE/internal/queue"
)

// DefaultHeartbeat is the interval between SSE keep-alive comments.
const DefaultHeartbeat = 15 * time.Second

// RateLimiter counts requests per tenant and user.
type RateLimiter interface {
	Check(ctx context.Context, tenantID, userID string) error
}

// Streamer subscribes to a job's live messages.
type Streamer interface {
	Subscribe(ctx context.Context, jobID string) (<-chan string, error)
}

// RunObserver records agent run outcomes.
type RunObserver interface {
	ObserveAgentRun(agent, mode string, err error, elapsed time.Duration)
}

// Deps carries everything the API handlers need.
type Deps struct {
	Env           string
	Domain        domain.Container
	Issuer        *auth.Issuer
	Limiter       RateLimiter
	Registry      *packs.Registry
	Streamer      Streamer
	Publisher     queue.Publisher
	Runs          RunObserver
	Metrics       http.Handler
	ArtifactsDir  string
	SignupEnabled bool
	Heartbeat     time.Duration
	// Closing ends open event streams when the server begins shutting down.
	Closing <-chan struct{}
}

// Register attaches API routes to the provided router.
func Register(router *mux.Router, logger *slog.Logger, deps Deps) {
	if deps.Heartbeat <= 0 {
		deps.Heartbeat = DefaultHeartbeat
	}

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"ok": true, "env": deps.Env})
	}).Methods(http.MethodGet)

	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}
	if deps.ArtifactsDir != "" {
		router.PathPrefix("/artifacts/").Handler(artifactFiles(deps.ArtifactsDir)).Methods(http.MethodGet, http.MethodHead)
	}

	registerAuthRoutes(router, logger, deps)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(auth.Middleware(deps.Issuer))
	registerPackRoutes(v1, deps)
	registerAgentRoutes(v1, logger, deps)
	registerJobRoutes(v1, logger, deps)
}

// artifactFiles serves stored artifacts without directory listings. A missing
// directory yields 404s.
func artifactFiles(dir string) http.Handler {
	files := http.StripPrefix("/artifacts/", http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/artifacts/")
		if name == "" || strings.HasSuffix(name, "/") {
			http.NotFound(w, r)
			return
		}
		if info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+name)))); err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
