package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/al3dwii/agenticBE/internal/domain/webhooks"
)

// DeliveryRepository is an in-memory implementation of webhooks.Repository.
type DeliveryRepository struct {
	mu         sync.RWMutex
	deliveries map[string]webhooks.Delivery
}

// NewDeliveryRepository creates an in-memory delivery repo.
func NewDeliveryRepository() *DeliveryRepository {
	return &DeliveryRepository{deliveries: make(map[string]webhooks.Delivery)}
}

func (r *DeliveryRepository) FindByID(_ context.Context, id string) (webhooks.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.deliveries[id]
	if !ok {
		return webhooks.Delivery{}, webhooks.ErrNotFound
	}
	return d, nil
}

func (r *DeliveryRepository) Save(_ context.Context, delivery webhooks.Delivery) (webhooks.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if delivery.ID == "" {
		delivery.ID = newID()
	}
	if existing, ok := r.deliveries[delivery.ID]; ok && delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = existing.CreatedAt
	}
	if delivery.CreatedAt.IsZero() {
		delivery.CreatedAt = now
	}
	delivery.UpdatedAt = now

	r.deliveries[delivery.ID] = delivery
	return delivery, nil
}

func (r *DeliveryRepository) ListByJob(_ context.Context, tenantID, jobID string) ([]webhooks.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var list []webhooks.Delivery
	for _, d := range r.deliveries {
		if d.TenantID == tenantID && d.JobID == jobID {
			list = append(list, d)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}
