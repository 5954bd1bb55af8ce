package memory

import (
	"context"
	"sync"
	"time"

	"github.com/al3dwii/agenticBE/internal/domain/tenants"
)

// TenantRepository is an in-memory implementation of tenants.Repository.
type TenantRepository struct {
	mu      sync.RWMutex
	tenants map[string]tenants.Tenant
}

// NewTenantRepository creates an in-memory tenant repo.
func NewTenantRepository() *TenantRepository {
	return &TenantRepository{tenants: make(map[string]tenants.Tenant)}
}

func (r *TenantRepository) FindByID(_ context.Context, id string) (tenants.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[id]
	if !ok {
		return tenants.Tenant{}, tenants.ErrNotFound
	}
	return t, nil
}

func (r *TenantRepository) Save(_ context.Context, tenant tenants.Tenant) (tenants.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if tenant.ID == "" {
		tenant.ID = newID()
		tenant.CreatedAt = now
	} else if existing, ok := r.tenants[tenant.ID]; ok && tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = existing.CreatedAt
	}
	tenant.UpdatedAt = now

	r.tenants[tenant.ID] = tenant
	return tenant, nil
}
