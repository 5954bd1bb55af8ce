package memory

import (
	"context"
	"sync"
	"time"

	"github.com/al3dwii/agenticBE/internal/domain/events"
)

// EventRepository is an append-only in-memory implementation of events.Repository.
type EventRepository struct {
	mu     sync.RWMutex
	events []events.Event
}

// NewEventRepository creates an in-memory event repo.
func NewEventRepository() *EventRepository {
	return &EventRepository{}
}

func (r *EventRepository) Save(_ context.Context, event events.Event) (events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == "" {
		event.ID = newID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.events = append(r.events, event)
	return event, nil
}

func (r *EventRepository) ListByJob(_ context.Context, tenantID, jobID string) ([]events.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := []events.Event{}
	for _, e := range r.events {
		if e.TenantID == tenantID && e.JobID == jobID {
			list = append(list, e)
		}
	}
	return list, nil
}
