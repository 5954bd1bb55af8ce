package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/al3dwii/agenticBE/internal/app"
	"github.com/al3dwii/agenticBE/internal/config"
	"github.com/al3dwii/agenticBE/internal/logger"
	"github.com/al3dwii/agenticBE/internal/preflight"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logr := logger.NewWithOptions(logger.Options{Env: cfg.Env, File: cfg.LogFile})

	if cfg.QueueBackend != "amqp" {
		logr.Error("standalone worker requires QUEUE_BACKEND=amqp; the API runs an embedded worker otherwise")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results := preflight.Run(ctx, logr, preflight.Default(cfg.SofficeBin, cfg.GhostscriptBin, cfg.ArtifactsDir))
	if preflight.ShouldFail(results) && cfg.PreflightStrict {
		logr.Error("preflight checks failed (PREFLIGHT_STRICT=true)", "critical", len(results.Critical))
		os.Exit(1)
	}

	a, err := app.Build(ctx, cfg, logr)
	if err != nil {
		logr.Error("failed to init application", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Worker.Run(ctx, a.Queue); err != nil && ctx.Err() == nil {
		logr.Error("worker stopped", "err", err)
		os.Exit(1)
	}
	logr.Info("worker stopped")
}
