package jobs

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotImplemented = errors.New("jobs repository: not implemented")
	ErrNotFound       = errors.New("job not found")
	ErrInvalidInput   = errors.New("invalid job input")
)

// Job is a queued agent run owned by a tenant.
type Job struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	Kind       string         `json:"kind"`
	Status     Status         `json:"status"`
	Input      map[string]any `json:"input"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	WebhookURL string         `json:"webhook_url,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Status represents job status.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Kind joins a pack and agent name into the stored job kind.
func Kind(pack, agent string) string {
	return pack + "." + agent
}

// SplitKind is the inverse of Kind.
func SplitKind(kind string) (pack, agent string, ok bool) {
	pack, agent, ok = strings.Cut(kind, ".")
	if !ok || pack == "" || agent == "" {
		return "", "", false
	}
	return pack, agent, true
}

// Repository abstracts job persistence. All reads are scoped to a tenant.
type Repository interface {
	FindByID(ctx context.Context, tenantID, id string) (Job, error)
	Save(ctx context.Context, job Job) (Job, error)
	ListByTenant(ctx context.Context, tenantID string, offset, limit int) ([]Job, error)
}

// NullRepository returns ErrNotImplemented for all operations.
type NullRepository struct{}

func (NullRepository) FindByID(context.Context, string, string) (Job, error) {
	return Job{}, ErrNotImplemented
}

func (NullRepository) Save(context.Context, Job) (Job, error) {
	return Job{}, ErrNotImplemented
}

func (NullRepository) ListByTenant(context.Context, string, int, int) ([]Job, error) {
	return nil, ErrNotImplemented
}

// Service provides business logic around jobs.
type Service interface {
	Get(ctx context.Context, tenantID, id string) (Job, error)
	Create(ctx context.Context, input CreateInput) (Job, error)
	MarkRunning(ctx context.Context, tenantID, id string) (Job, error)
	MarkSucceeded(ctx context.Context, tenantID, id string, result any) (Job, error)
	MarkFailed(ctx context.Context, tenantID, id string, reason string) (Job, error)
	ListForTenant(ctx context.Context, tenantID string, offset, limit int) ([]Job, error)
}

// CreateInput is used to queue a new job.
type CreateInput struct {
	TenantID   string
	Pack       string
	Agent      string
	Input      map[string]any
	WebhookURL string
}

// NewService builds a job service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

type service struct {
	repo Repository
}

func (s *service) Get(ctx context.Context, tenantID, id string) (Job, error) {
	return s.repo.FindByID(ctx, tenantID, id)
}

func (s *service) Create(ctx context.Context, input CreateInput) (Job, error) {
	if strings.TrimSpace(input.TenantID) == "" || strings.TrimSpace(input.Pack) == "" || strings.TrimSpace(input.Agent) == "" {
		return Job{}, ErrInvalidInput
	}
	in := input.Input
	if in == nil {
		in = map[string]any{}
	}

	return s.repo.Save(ctx, Job{
		TenantID:   input.TenantID,
		Kind:       Kind(input.Pack, input.Agent),
		Status:     StatusQueued,
		Input:      in,
		WebhookURL: strings.TrimSpace(input.WebhookURL),
	})
}

func (s *service) MarkRunning(ctx context.Context, tenantID, id string) (Job, error) {
	return s.transition(ctx, tenantID, id, func(job *Job) {
		job.Status = StatusRunning
	})
}

func (s *service) MarkSucceeded(ctx context.Context, tenantID, id string, result any) (Job, error) {
	return s.transition(ctx, tenantID, id, func(job *Job) {
		job.Status = StatusSucceeded
		job.Output = map[string]any{"result": result}
		job.Error = ""
	})
}

func (s *service) MarkFailed(ctx context.Context, tenantID, id string, reason string) (Job, error) {
	return s.transition(ctx, tenantID, id, func(job *Job) {
		job.Status = StatusFailed
		job.Error = reason
	})
}

func (s *service) transition(ctx context.Context, tenantID, id string, apply func(*Job)) (Job, error) {
	job, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		return Job{}, err
	}
	apply(&job)
	return s.repo.Save(ctx, job)
}

func (s *service) ListForTenant(ctx context.Context, tenantID string, offset, limit int) ([]Job, error) {
	return s.repo.ListByTenant(ctx, tenantID, offset, limit)
}
