package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/al3dwii/agenticBE/internal/domain/tenants"
)

// TenantRepository persists tenants. The tenants table is not under row level
// security: authentication has to look a tenant up before it is known.
type TenantRepository struct {
	db *sql.DB
}

// NewTenantRepository constructs a repository using a pooled DB handle.
func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) FindByID(ctx context.Context, id string) (tenants.Tenant, error) {
	const query = `
        SELECT id, name, api_key_hash, api_key_salt, created_at, updated_at
          FROM tenants
         WHERE id = $1
    `

	var t tenants.Tenant
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.Name,
		&t.APIKeyHash,
		&t.APIKeySalt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tenants.Tenant{}, tenants.ErrNotFound
		}
		return tenants.Tenant{}, fmt.Errorf("find tenant: %w", err)
	}
	return t, nil
}

func (r *TenantRepository) Save(ctx context.Context, t tenants.Tenant) (tenants.Tenant, error) {
	now := time.Now().UTC()
	if t.ID == "" {
		t.ID = uuid.NewString()
		const insert = `
            INSERT INTO tenants (id, name, api_key_hash, api_key_salt, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6)
        `
		if _, err := r.db.ExecContext(ctx, insert, t.ID, t.Name, t.APIKeyHash, t.APIKeySalt, now, now); err != nil {
			return tenants.Tenant{}, fmt.Errorf("insert tenant: %w", err)
		}
		t.CreatedAt = now
		t.UpdatedAt = now
		return t, nil
	}

	const update = `
        UPDATE tenants
           SET name = $2,
               api_key_hash = $3,
               api_key_salt = $4,
               updated_at = $5
         WHERE id = $1
        RETURNING created_at
    `
	if err := r.db.QueryRowContext(ctx, update, t.ID, t.Name, t.APIKeyHash, t.APIKeySalt, now).Scan(&t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tenants.Tenant{}, tenants.ErrNotFound
		}
		return tenants.Tenant{}, fmt.Errorf("update tenant: %w", err)
	}
	t.UpdatedAt = now
	return t, nil
}
