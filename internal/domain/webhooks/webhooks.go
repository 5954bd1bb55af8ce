package webhooks

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotImplemented = errors.New("webhook deliveries repository: not implemented")
	ErrNotFound       = errors.New("webhook delivery not found")
)

// Event types sent to tenant endpoints.
const (
	EventJobSucceeded = "job.succeeded"
	EventJobFailed    = "job.failed"
)

// Delivery tracks one outbound webhook and its attempts.
type Delivery struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	JobID     string         `json:"job_id"`
	URL       string         `json:"url"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	Status    Status         `json:"status"`
	Attempts  int            `json:"attempts"`
	LastError string         `json:"last_error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Status represents delivery status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusRetrying Status = "retrying"
	StatusFailed   Status = "failed"
)

// Repository persists deliveries. FindByID is not tenant scoped because the
// worker only knows the delivery id when it picks up a task.
type Repository interface {
	FindByID(ctx context.Context, id string) (Delivery, error)
	Save(ctx context.Context, delivery Delivery) (Delivery, error)
	ListByJob(ctx context.Context, tenantID, jobID string) ([]Delivery, error)
}

// NullRepository returns ErrNotImplemented for all operations.
type NullRepository struct{}

func (NullRepository) FindByID(context.Context, string) (Delivery, error) {
	return Delivery{}, ErrNotImplemented
}

func (NullRepository) Save(context.Context, Delivery) (Delivery, error) {
	return Delivery{}, ErrNotImplemented
}

func (NullRepository) ListByJob(context.Context, string, string) ([]Delivery, error) {
	return nil, ErrNotImplemented
}
