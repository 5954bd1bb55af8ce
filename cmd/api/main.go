package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"log/slog"

	"github.com/al3dwii/agenticBE/internal/app"
	"github.com/al3dwii/agenticBE/internal/auth"
	"github.com/al3dwii/agenticBE/internal/config"
	"github.com/al3dwii/agenticBE/internal/httpapi"
	"github.com/al3dwii/agenticBE/internal/logger"
	"github.com/al3dwii/agenticBE/internal/preflight"
	"github.com/al3dwii/agenticBE/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logr := logger.NewWithOptions(logger.Options{Env: cfg.Env, File: cfg.LogFile})

	baseCtx, stop := context.WithCancel(context.Background())
	defer stop()

	results := preflight.Run(baseCtx, logr, preflight.Default(cfg.SofficeBin, cfg.GhostscriptBin, cfg.ArtifactsDir))
	if preflight.ShouldFail(results) {
		if cfg.PreflightStrict {
			logr.Error("preflight checks failed (PREFLIGHT_STRICT=true)", "critical", len(results.Critical))
			os.Exit(1)
		}
		logr.Warn("preflight checks failed; conversions may not work", "critical", len(results.Critical))
	}

	a, err := app.Build(baseCtx, cfg, logr)
	if err != nil {
		logr.Error("failed to init application", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	srv := server.New(cfg, logr, a.Metrics)

	deps := httpapi.Deps{
		Env:           cfg.Env,
		Domain:        a.Domain,
		Issuer:        auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiry),
		Limiter:       a.Limiter,
		Registry:      a.Registry,
		Streamer:      a.Emitter,
		Publisher:     a.Queue,
		Runs:          a.Metrics,
		Metrics:       a.Metrics.HTTPHandler(),
		SignupEnabled: cfg.TenantSignupEnabled,
		Closing:       srv.Closing(),
	}
	if a.ServeArtifacts() {
		deps.ArtifactsDir = cfg.ArtifactsDir
	}
	httpapi.Register(srv.Mux(), logr, deps)

	// An in-process queue has no other consumer, so the API runs the worker.
	var wg sync.WaitGroup
	if cfg.QueueBackend == "memory" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Worker.Run(baseCtx, a.Queue); err != nil {
				logr.Error("embedded worker stopped", "err", err)
			}
		}()
	}

	go func() {
		if err := srv.Run(); err != nil {
			logr.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logr.Error("server shutdown failed", "err", err)
	}
	stop()
	wg.Wait()
}
