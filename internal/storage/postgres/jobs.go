package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/al3dwii/agenticBE/internal/database"
	"github.com/al3dwii/agenticBE/internal/domain/jobs"
)

// JobRepository persists jobs inside tenant-scoped transactions.
type JobRepository struct {
	db *sql.DB
}

// NewJobRepository constructs a repository using a pooled DB handle.
func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, tenant_id, kind, status, input_json, output_json, COALESCE(error, ''), COALESCE(webhook_url, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (jobs.Job, error) {
	var (
		j           jobs.Job
		input, outp []byte
	)
	if err := row.Scan(
		&j.ID,
		&j.TenantID,
		&j.Kind,
		&j.Status,
		&input,
		&outp,
		&j.Error,
		&j.WebhookURL,
		&j.CreatedAt,
		&j.UpdatedAt,
	); err != nil {
		return jobs.Job{}, err
	}

	var err error
	if j.Input, err = decodeJSON(input); err != nil {
		return jobs.Job{}, err
	}
	if j.Output, err = decodeJSON(outp); err != nil {
		return jobs.Job{}, err
	}
	return j, nil
}

// FindByID retrieves a job visible to the tenant.
func (r *JobRepository) FindByID(ctx context.Context, tenantID, id string) (jobs.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1 AND tenant_id = $2`

	var job jobs.Job
	err := database.InTenantTx(ctx, r.db, tenantID, func(tx *sql.Tx) error {
		var err error
		job, err = scanJob(tx.QueryRowContext(ctx, query, id, tenantID))
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobs.Job{}, jobs.ErrNotFound
		}
		return jobs.Job{}, fmt.Errorf("find job: %w", err)
	}
	return job, nil
}

// Save inserts or updates a job.
func (r *JobRepository) Save(ctx context.Context, job jobs.Job) (jobs.Job, error) {
	input, err := encodeJSON(job.Input)
	if err != nil {
		return jobs.Job{}, err
	}
	if input == nil {
		input = []byte(`{}`)
	}
	output, err := encodeJSON(job.Output)
	if err != nil {
		return jobs.Job{}, err
	}

	now := time.Now().UTC()
	err = database.InTenantTx(ctx, r.db, job.TenantID, func(tx *sql.Tx) error {
		if job.ID == "" {
			job.ID = uuid.NewString()
			const insert = `
                INSERT INTO jobs (id, tenant_id, kind, status, input_json, output_json, error, webhook_url, created_at, updated_at)
                VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),NULLIF($8,''),$9,$10)
            `
			if _, err := tx.ExecContext(ctx, insert,
				job.ID,
				job.TenantID,
				job.Kind,
				job.Status,
				input,
				output,
				job.Error,
				job.WebhookURL,
				now,
				now,
			); err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			job.CreatedAt = now
			job.UpdatedAt = now
			return nil
		}

		const update = `
            UPDATE jobs
               SET status = $3,
                   output_json = $4,
                   error = NULLIF($5,''),
                   updated_at = $6
             WHERE id = $1 AND tenant_id = $2
            RETURNING created_at
        `
		if err := tx.QueryRowContext(ctx, update,
			job.ID,
			job.TenantID,
			job.Status,
			output,
			job.Error,
			now,
		).Scan(&job.CreatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return jobs.ErrNotFound
			}
			return fmt.Errorf("update job: %w", err)
		}
		job.UpdatedAt = now
		return nil
	})
	if err != nil {
		return jobs.Job{}, err
	}
	return job, nil
}

// ListByTenant returns paginated jobs, newest first.
func (r *JobRepository) ListByTenant(ctx context.Context, tenantID string, offset, limit int) ([]jobs.Job, error) {
	query := `SELECT ` + jobColumns + `
          FROM jobs
         WHERE tenant_id = $1
         ORDER BY created_at DESC
         OFFSET $2
         LIMIT $3`

	var result []jobs.Job
	err := database.InTenantTx(ctx, r.db, tenantID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, tenantID, offset, limit)
		if err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			j, err := scanJob(rows)
			if err != nil {
				return fmt.Errorf("scan job: %w", err)
			}
			result = append(result, j)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows err: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
