package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

// Options configures the SQL database connection.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Logger          *slog.Logger
	PingTimeout     time.Duration
}

const defaultPingTimeout = 5 * time.Second

// DB wraps *sql.DB to centralize lifecycle management.
type DB struct {
	*sql.DB
	logger *slog.Logger
}

// Connect initializes a pooled SQL connection using the provided options.
func Connect(ctx context.Context, opts Options) (*DB, error) {
	if opts.Driver == "" {
		return nil, errors.New("database driver is required")
	}
	if opts.DSN == "" {
		return nil, errors.New("database DSN is required")
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	pool, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, err
	}

	if opts.MaxOpenConns > 0 {
		pool.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = defaultPingTimeout
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	// Fail fast on a bad DSN instead of on the first request.
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("database connected", "driver", opts.Driver)

	return &DB{DB: pool, logger: log}, nil
}

// Close releases database resources.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

// RunMigrations applies pending schema migrations.
func (db *DB) RunMigrations(ctx context.Context, migrator Migrator) error {
	if migrator == nil {
		db.logger.Info("no migrator configured; skipping migrations")
		return nil
	}

	db.logger.Info("running migrations")
	if err := migrator.Up(ctx); err != nil {
		return err
	}

	db.logger.Info("migrations completed")
	return nil
}

// InTenantTx runs fn inside a transaction whose app.tenant_id setting is bound
// to tenantID. Row level security policies key off that setting, and the third
// set_config argument scopes it to the transaction.
func InTenantTx(ctx context.Context, db *sql.DB, tenantID string, fn func(tx *sql.Tx) error) error {
	if tenantID == "" {
		return errors.New("tenant id is required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenantID); err != nil {
		tx.Rollback()
		return fmt.Errorf("set tenant context: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
