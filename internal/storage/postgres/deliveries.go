package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/al3dwii/agenticBE/internal/database"
	"github.com/al3dwii/agenticBE/internal/domain/webhooks"
)

// DeliveryRepository persists outbound webhook deliveries.
type DeliveryRepository struct {
	db *sql.DB
}

// NewDeliveryRepository constructs a repository using a pooled DB handle.
func NewDeliveryRepository(db *sql.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

const deliveryColumns = `id, tenant_id, job_id, url, event_type, payload_json, status, attempts, COALESCE(last_error, ''), created_at, updated_at`

func scanDelivery(row rowScanner) (webhooks.Delivery, error) {
	var (
		d   webhooks.Delivery
		raw []byte
	)
	if err := row.Scan(
		&d.ID,
		&d.TenantID,
		&d.JobID,
		&d.URL,
		&d.EventType,
		&raw,
		&d.Status,
		&d.Attempts,
		&d.LastError,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return webhooks.Delivery{}, err
	}
	payload, err := decodeJSON(raw)
	if err != nil {
		return webhooks.Delivery{}, err
	}
	d.Payload = payload
	return d, nil
}

// FindByID looks a delivery up without a tenant context; the worker learns
// the tenant from the row itself.
func (r *DeliveryRepository) FindByID(ctx context.Context, id string) (webhooks.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = $1`

	d, err := scanDelivery(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return webhooks.Delivery{}, webhooks.ErrNotFound
		}
		return webhooks.Delivery{}, fmt.Errorf("find delivery: %w", err)
	}
	return d, nil
}

func (r *DeliveryRepository) Save(ctx context.Context, d webhooks.Delivery) (webhooks.Delivery, error) {
	payload, err := encodeJSON(d.Payload)
	if err != nil {
		return webhooks.Delivery{}, err
	}
	if payload == nil {
		payload = []byte(`{}`)
	}

	now := time.Now().UTC()
	err = database.InTenantTx(ctx, r.db, d.TenantID, func(tx *sql.Tx) error {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		const upsert = `
            INSERT INTO webhook_deliveries
                (id, tenant_id, job_id, url, event_type, payload_json, status, attempts, last_error, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),$10,$10)
            ON CONFLICT (id) DO UPDATE
               SET status = EXCLUDED.status,
                   attempts = EXCLUDED.attempts,
                   last_error = EXCLUDED.last_error,
                   updated_at = EXCLUDED.updated_at
            RETURNING created_at
        `
		return tx.QueryRowContext(ctx, upsert,
			d.ID,
			d.TenantID,
			d.JobID,
			d.URL,
			d.EventType,
			payload,
			d.Status,
			d.Attempts,
			d.LastError,
			now,
		).Scan(&d.CreatedAt)
	})
	if err != nil {
		return webhooks.Delivery{}, fmt.Errorf("save delivery: %w", err)
	}
	d.UpdatedAt = now
	return d, nil
}

func (r *DeliveryRepository) ListByJob(ctx context.Context, tenantID, jobID string) ([]webhooks.Delivery, error) {
	query := `SELECT ` + deliveryColumns + `
          FROM webhook_deliveries
         WHERE tenant_id = $1 AND job_id = $2
         ORDER BY created_at`

	var list []webhooks.Delivery
	err := database.InTenantTx(ctx, r.db, tenantID, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, tenantID, jobID)
		if err != nil {
			return fmt.Errorf("list deliveries: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			d, err := scanDelivery(rows)
			if err != nil {
				return fmt.Errorf("scan delivery: %w", err)
			}
			list = append(list, d)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}
