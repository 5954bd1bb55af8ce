package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/al3dwii/agenticBE/internal/auth"
	"github.com/al3dwii/agenticBE/internal/config"
	"github.com/al3dwii/agenticBE/internal/database"
	"github.com/al3dwii/agenticBE/internal/domain"
	domainevents "github.com/al3dwii/agenticBE/internal/domain/events"
	"github.com/al3dwii/agenticBE/internal/domain/jobs"
	"github.com/al3dwii/agenticBE/internal/domain/tenants"
	"github.com/al3dwii/agenticBE/internal/logger"
	pgstorage "github.com/al3dwii/agenticBE/internal/storage/postgres"
)

func main() {
	count := flag.Int("tenants", 1, "number of demo tenants to create")
	seed := flag.Int64("seed", 0, "faker seed (0 = random)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog := logger.New("development")
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logr := logger.New(cfg.Env)

	if cfg.DataBackend != "postgres" {
		logr.Error("seed command requires DATA_BACKEND=postgres")
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.Connect(ctx, database.Options{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		Logger:          logr,
	})
	if err != nil {
		logr.Error("failed to connect database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	migrator := database.NewSQLMigrator(db.DB, database.MigrationsFS(), database.MigrationsDir, logr)
	if err := db.RunMigrations(ctx, migrator); err != nil {
		logr.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	container := domain.New(domain.Options{
		TenantRepo: pgstorage.NewTenantRepository(db.DB),
		JobRepo:    pgstorage.NewJobRepository(db.DB),
		EventRepo:  pgstorage.NewEventRepository(db.DB),
	})
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiry)
	faker := gofakeit.New(*seed)

	for i := 0; i < *count; i++ {
		tenant, apiKey, err := container.Tenants.Register(ctx, tenants.RegisterInput{Name: faker.Company()})
		if err != nil {
			logr.Error("failed to seed tenant", "err", err)
			os.Exit(1)
		}
		token, err := issuer.Issue(tenant.ID, faker.Username())
		if err != nil {
			logr.Error("failed to issue token", "tenant_id", tenant.ID, "err", err)
			os.Exit(1)
		}

		if err := seedJob(ctx, container, faker, tenant.ID); err != nil {
			logr.Error("failed to seed job", "tenant_id", tenant.ID, "err", err)
			os.Exit(1)
		}

		fmt.Printf("Tenant: %s (%s)\n", tenant.Name, tenant.ID)
		fmt.Printf("  API key: %s\n", apiKey)
		fmt.Printf("  Token:   %s\n", token.AccessToken)
	}

	logr.Info("seed complete", "tenants", *count)
}

// seedJob records a finished conversion so history endpoints have data.
func seedJob(ctx context.Context, c domain.Container, faker *gofakeit.Faker, tenantID string) error {
	job, err := c.Jobs.Create(ctx, jobs.CreateInput{
		TenantID: tenantID,
		Pack:     "office",
		Agent:    "word_to_pptx",
		Input: map[string]any{
			"file_url": faker.URL() + "/brief.docx",
			"title":    faker.BS(),
		},
	})
	if err != nil {
		return err
	}
	steps := []struct{ step, status string }{
		{domainevents.StepRun, domainevents.StatusStarted},
		{domainevents.StepRun, domainevents.StatusFinished},
	}
	for _, s := range steps {
		if _, err := c.Events.Record(ctx, domainevents.Event{TenantID: tenantID, JobID: job.ID, Step: s.step, Status: s.status}); err != nil {
			return err
		}
	}
	_, err = c.Jobs.MarkSucceeded(ctx, tenantID, job.ID, map[string]any{
		"pptx_key": "slides.pptx",
		"pptx_url": "http://localhost:8080/artifacts/slides.pptx",
	})
	return err
}
