package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/al3dwii/agenticBE/internal/database"
	"github.com/al3dwii/agenticBE/internal/domain/events"
)

// EventRepository appends job events.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository constructs a repository using a pooled DB handle.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Save(ctx context.Context, e events.Event) (events.Event, error) {
	payload, err := encodeJSON(e.Payload)
	if err != nil {
		return events.Event{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	const insert = `
        INSERT INTO events (id, tenant_id, job_id, step, status, payload_json, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
    `
	err = database.InTenantTx(ctx, r.db, e.TenantID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, insert, e.ID, e.TenantID, e.JobID, e.Step, e.Status, payload, e.CreatedAt)
		return err
	})
	if err != nil {
		return events.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return e, nil
}

func (r *EventRepository) ListByJob(ctx context.Context, tenantID, jobID string) ([]events.Event, error) {
	const query = `
        SELECT id, tenant_id, job_id, step, status, payload_json, created_at
          FROM events
         WHERE tenant_id = $1 AND job_id = $2
         ORDER BY created_at
    `

	list := []events.Event{}
	err := database.InTenantTx(ctx, r.db, tenantID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, tenantID, jobID)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e   events.Event
				raw []byte
			)
			if err := rows.Scan(&e.ID, &e.TenantID, &e.JobID, &e.Step, &e.Status, &raw, &e.CreatedAt); err != nil {
				return fmt.Errorf("scan event: %w", err)
			}
			if e.Payload, err = decodeJSON(raw); err != nil {
				return err
			}
			list = append(list, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}
