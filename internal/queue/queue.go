package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Task names understood by the worker.
const (
	TaskRunAgentJob    = "run_agent_job"
	TaskDeliverWebhook = "deliver_webhook"
)

// Task is a unit of background work.
type Task struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
	// Retries counts how many times the task was rescheduled after failing.
	Retries int `json:"retries"`
}

// NewTask encodes payload into a task with a fresh id.
func NewTask(name string, payload any) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, errors.Wrapf(err, "encode %s payload", name)
	}
	return Task{ID: uuid.NewString(), Name: name, Payload: raw}, nil
}

// Decode unmarshals the task payload into v.
func (t Task) Decode(v any) error {
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return errors.Wrapf(err, "decode %s payload", t.Name)
	}
	return nil
}

// Handler processes a task. A returned error marks the delivery failed.
type Handler func(ctx context.Context, task Task) error

// Publisher enqueues tasks.
type Publisher interface {
	Publish(ctx context.Context, task Task) error
	// PublishAfter makes task visible to consumers once delay has passed.
	PublishAfter(ctx context.Context, task Task, delay time.Duration) error
}

// Consumer delivers tasks to a handler until ctx ends.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}

// Queue is both ends of a task queue.
type Queue interface {
	Publisher
	Consumer
	Close() error
}

// AgentJobPayload is the body of a run_agent_job task.
type AgentJobPayload struct {
	TenantID   string         `json:"tenant_id"`
	Pack       string         `json:"pack"`
	Agent      string         `json:"agent"`
	Payload    map[string]any `json:"payload"`
	JobID      string         `json:"job_id"`
	WebhookURL string         `json:"webhook_url,omitempty"`
}

// WebhookPayload is the body of a deliver_webhook task.
type WebhookPayload struct {
	DeliveryID string `json:"delivery_id"`
}
