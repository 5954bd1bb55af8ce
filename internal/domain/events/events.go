package events

import (
	"context"
	"errors"
	"time"
)

var ErrNotImplemented = errors.New("events repository: not implemented")

// Step names used by the job runner and the agent loop.
const (
	StepPlan = "plan"
	StepAct  = "act"
	StepRun  = "run"
)

// Step statuses.
const (
	StatusStarted  = "started"
	StatusProgress = "progress"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// Event is one recorded step of a job.
type Event struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	JobID     string         `json:"job_id"`
	Step      string         `json:"step"`
	Status    string         `json:"status"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// Repository persists job events.
type Repository interface {
	Save(ctx context.Context, event Event) (Event, error)
	ListByJob(ctx context.Context, tenantID, jobID string) ([]Event, error)
}

// NullRepository returns ErrNotImplemented for all operations.
type NullRepository struct{}

func (NullRepository) Save(context.Context, Event) (Event, error) {
	return Event{}, ErrNotImplemented
}

func (NullRepository) ListByJob(context.Context, string, string) ([]Event, error) {
	return nil, ErrNotImplemented
}

// Service exposes event history.
type Service interface {
	Record(ctx context.Context, event Event) (Event, error)
	History(ctx context.Context, tenantID, jobID string) ([]Event, error)
}

// NewService builds an event service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

type service struct {
	repo Repository
}

func (s *service) Record(ctx context.Context, event Event) (Event, error) {
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	return s.repo.Save(ctx, event)
}

func (s *service) History(ctx context.Context, tenantID, jobID string) ([]Event, error) {
	return s.repo.ListByJob(ctx, tenantID, jobID)
}
