// Package app assembles the service from configuration. The api, worker and
// docctl binaries share it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/al3dwii/agenticBE/internal/artifacts"
	"github.com/al3dwii/agenticBE/internal/backoff"
	"github.com/al3dwii/agenticBE/internal/config"
	"github.com/al3dwii/agenticBE/internal/database"
	"github.com/al3dwii/agenticBE/internal/domain"
	"github.com/al3dwii/agenticBE/internal/events"
	"github.com/al3dwii/agenticBE/internal/metrics"
	"github.com/al3dwii/agenticBE/internal/office"
	"github.com/al3dwii/agenticBE/internal/packs"
	"github.com/al3dwii/agenticBE/internal/queue"
	"github.com/al3dwii/agenticBE/internal/ratelimit"
	"github.com/al3dwii/agenticBE/internal/storage/memory"
	pgstorage "github.com/al3dwii/agenticBE/internal/storage/postgres"
	"github.com/al3dwii/agenticBE/internal/webhooks"
	"github.com/al3dwii/agenticBE/internal/worker"
)

// App holds the wired components.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	DB     *database.DB
	Redis  *redis.Client
	Domain domain.Container

	Bus        events.Bus
	Emitter    *events.Emitter
	Limiter    *ratelimit.Limiter
	Queue      queue.Queue
	Artifacts  artifacts.Store
	Registry   *packs.Registry
	Dispatcher *webhooks.Dispatcher
	Deliverer  *webhooks.Deliverer
	Worker     *worker.Worker
}

// Build connects backends and wires services. Close releases them.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.Config, a.Logger

	container, err := a.buildDomain(ctx)
	if err != nil {
		return err
	}
	a.Domain = container

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "parse REDIS_URL")
		}
		a.Redis = redis.NewClient(opts)
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "ping redis")
		}
		a.Bus = events.NewRedisBus(a.Redis)
		a.Limiter = ratelimit.New(ratelimit.NewRedisStore(a.Redis), cfg.RateLimitTenantPerMin, cfg.RateLimitUserPerMin)
		logger.Info("using redis event bus and rate limiter")
	} else {
		a.Bus = events.NewMemoryBus()
		a.Limiter = ratelimit.New(ratelimit.NewMemoryStore(), cfg.RateLimitTenantPerMin, cfg.RateLimitUserPerMin)
		logger.Info("using in-process event bus and rate limiter (REDIS_URL unset)")
	}
	a.Emitter = events.NewEmitter(container.Events, a.Bus, logger)

	if a.Queue, err = a.buildQueue(ctx); err != nil {
		return err
	}

	if a.Artifacts, err = BuildArtifacts(cfg, logger); err != nil {
		return err
	}
	a.Registry = BuildRegistry(cfg, a.Artifacts, logger)

	a.Dispatcher = webhooks.NewDispatcher(container.Deliveries, a.Queue, logger)
	a.Deliverer = webhooks.NewDeliverer(container.Deliveries, webhooks.DelivererOptions{
		Secret:     cfg.WebhookHMACSecret,
		Timeout:    cfg.WebhookTimeout,
		MaxRetries: cfg.WebhookMaxRetries,
		Observer:   a.Metrics.ObserveWebhook,
		Logger:     logger,
	})
	a.Worker = worker.New(worker.Options{
		Registry:  a.Registry,
		Jobs:      container.Jobs,
		Emitter:   a.Emitter,
		Webhooks:  a.Dispatcher,
		Deliverer: a.Deliverer,
		Publisher: a.Queue,
		Metrics:   a.Metrics,
		Logger:    logger,
	})
	return nil
}

func (a *App) buildDomain(ctx context.Context) (domain.Container, error) {
	cfg, logger := a.Config, a.Logger
	switch cfg.DataBackend {
	case "memory":
		logger.Info("using in-memory repositories (DATA_BACKEND=memory)")
		return domain.New(domain.Options{
			TenantRepo:   memory.NewTenantRepository(),
			JobRepo:      memory.NewJobRepository(),
			EventRepo:    memory.NewEventRepository(),
			DeliveryRepo: memory.NewDeliveryRepository(),
		}), nil
	case "postgres":
		db, err := Connect(ctx, cfg, logger)
		if err != nil {
			return domain.Container{}, err
		}
		a.DB = db
		if err := db.RunMigrations(ctx, database.NewSQLMigrator(db.DB, database.MigrationsFS(), database.MigrationsDir, logger)); err != nil {
			return domain.Container{}, errors.Wrap(err, "database migrations")
		}
		logger.Info("using postgres repositories (DATA_BACKEND=postgres)")
		return domain.New(domain.Options{
			TenantRepo:   pgstorage.NewTenantRepository(db.DB),
			JobRepo:      pgstorage.NewJobRepository(db.DB),
			EventRepo:    pgstorage.NewEventRepository(db.DB),
			DeliveryRepo: pgstorage.NewDeliveryRepository(db.DB),
		}), nil
	default:
		return domain.Container{}, fmt.Errorf("unsupported data backend: %s", cfg.DataBackend)
	}
}

// Connect opens the configured database.
func Connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*database.DB, error) {
	db, err := database.Connect(ctx, database.Options{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		Logger:          logger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect database")
	}
	return db, nil
}

func (a *App) buildQueue(ctx context.Context) (queue.Queue, error) {
	cfg, logger := a.Config, a.Logger
	if cfg.QueueBackend != "amqp" {
		logger.Info("using in-process task queue (QUEUE_BACKEND=memory)")
		return queue.NewMemory(0, cfg.WorkerConcurrency, logger), nil
	}

	var q *queue.AMQP
	err := backoff.Do(ctx, backoff.Constant{Interval: 2 * time.Second, MaxAttempts: 15}, func(attempt int) error {
		var err error
		q, err = queue.DialAMQP(cfg.AMQPURL, cfg.QueueName, cfg.WorkerConcurrency, logger)
		if err != nil {
			logger.Warn("rabbitmq not ready", "attempt", attempt, "err", err)
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect rabbitmq")
	}
	logger.Info("using rabbitmq task queue", "queue", cfg.QueueName)
	return q, nil
}

// BuildArtifacts returns the configured artifact store.
func BuildArtifacts(cfg config.Config, logger *slog.Logger) (artifacts.Store, error) {
	if cfg.ArtifactsBackend == "s3" {
		return artifacts.NewS3Store(artifacts.S3Options{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.S3PublicBaseURL,
			Logger:        logger,
		})
	}
	return artifacts.NewLocalStore(cfg.ArtifactsDir, cfg.PublicBaseURL, logger), nil
}

// BuildRegistry registers the available packs.
func BuildRegistry(cfg config.Config, store artifacts.Store, logger *slog.Logger) *packs.Registry {
	reg := packs.NewRegistry()
	pack := &office.Pack{
		Fetcher:   office.NewFetcher(cfg.FetchUserAgent, cfg.FetchTimeout),
		Converter: office.NewSoffice(cfg.SofficeBin, cfg.ConvertTimeout, logger),
		PDF:       &office.PDFReader{GhostscriptBin: cfg.GhostscriptBin, Timeout: cfg.ConvertTimeout},
		Artifacts: store,
		Logger:    logger,
	}
	pack.Register(reg)
	return reg
}

// ServeArtifacts reports whether the API should serve ARTIFACTS_DIR itself.
func (a *App) ServeArtifacts() bool {
	return a.Config.ArtifactsBackend != "s3"
}

// Close releases connections.
func (a *App) Close() {
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil {
			a.Logger.Error("error closing queue", "err", err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("error closing redis", "err", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error("error closing database", "err", err)
		}
	}
}
