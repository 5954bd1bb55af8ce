package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"log/slog"
)

// Migrator defines an interface capable of applying schema migrations.
type Migrator interface {
	Up(ctx context.Context) error
}

// SQLMigrator executes .sql migration files against a database connection and
// records each applied file in schema_migrations.
type SQLMigrator struct {
	Logger *slog.Logger
	DB     *sql.DB
	FS     fs.FS
	Path   string
}

// NewSQLMigrator builds a migrator that runs SQL statements from the provided filesystem.
func NewSQLMigrator(db *sql.DB, f fs.FS, dir string, logger *slog.Logger) *SQLMigrator {
	return &SQLMigrator{DB: db, FS: f, Path: dir, Logger: logger}
}

const createMigrationsTable = `
    CREATE TABLE IF NOT EXISTS schema_migrations (
        name       TEXT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )
`

// Up executes all pending *.up.sql files in lexical order.
func (m *SQLMigrator) Up(ctx context.Context) error {
	if m == nil {
		return errors.New("sql migrator is nil")
	}
	if m.DB == nil {
		return errors.New("sql migrator requires a database handle")
	}
	if m.FS == nil {
		return errors.New("sql migrator requires a filesystem")
	}
	if m.Path == "" {
		return errors.New("sql migrator requires a path")
	}

	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := m.DB.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	done, err := m.applied(ctx)
	if err != nil {
		return err
	}

	names, err := PendingMigrations(m.FS, m.Path, done)
	if err != nil {
		return err
	}

	for _, name := range names {
		contents, err := fs.ReadFile(m.FS, path.Join(m.Path, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		statements := splitSQLStatements(string(contents))
		if err := m.apply(ctx, name, statements); err != nil {
			return err
		}
		logger.Info("migration applied", "file", name, "statements", len(statements))
	}

	if len(names) == 0 {
		logger.Info("no migrations to run")
	}
	return nil
}

func (m *SQLMigrator) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.DB.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		done[name] = true
	}
	return done, rows.Err()
}

func (m *SQLMigrator) apply(ctx context.Context, name string, statements []string) error {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("exec %s [%d]: %w", name, i+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		tx.Rollback()
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return tx.Commit()
}

// PendingMigrations lists *.up.sql files under dir, in lexical order, that are
// not in done.
func PendingMigrations(f fs.FS, dir string, done map[string]bool) ([]string, error) {
	entries, err := fs.ReadDir(f, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") || done[name] {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// splitSQLStatements splits on ';' and drops blanks and full-line comments.
// Migrations must not contain ';' inside literals or function bodies.
func splitSQLStatements(sqlText string) []string {
	raw := strings.Split(sqlText, ";")
	out := make([]string, 0, len(raw))
	for _, stmt := range raw {
		trimmed := strings.TrimSpace(stripComments(stmt))
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func stripComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
