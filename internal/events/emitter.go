package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"

	domain "github.com/al3dwii/agenticBE/internal/domain/events"
)

// Emitter records job steps and fans them out to live subscribers.
type Emitter struct {
	store  domain.Service
	bus    Bus
	logger *slog.Logger
}

// NewEmitter builds an emitter over the event store and bus.
func NewEmitter(store domain.Service, bus Bus, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{store: store, bus: bus, logger: logger}
}

type stepMessage struct {
	Event   string         `json:"event"`
	Step    string         `json:"step"`
	Status  string         `json:"status"`
	Payload map[string]any `json:"payload"`
	ID      string         `json:"id"`
}

// Emit persists a step event and publishes it on the job channel. A failed
// publish is logged; the stored history stays authoritative.
func (e *Emitter) Emit(ctx context.Context, tenantID, jobID, step, status string, payload map[string]any) (domain.Event, error) {
	saved, err := e.store.Record(ctx, domain.Event{
		TenantID: tenantID,
		JobID:    jobID,
		Step:     step,
		Status:   status,
		Payload:  payload,
	})
	if err != nil {
		return domain.Event{}, errors.Wrap(err, "record event")
	}

	msg, err := json.Marshal(stepMessage{
		Event:   "step",
		Step:    saved.Step,
		Status:  saved.Status,
		Payload: saved.Payload,
		ID:      saved.ID,
	})
	if err != nil {
		return saved, errors.Wrap(err, "encode step message")
	}
	if err := e.bus.Publish(ctx, ChannelFor(jobID), string(msg)); err != nil {
		e.logger.Warn("event publish failed", "job_id", jobID, "step", step, "error", err)
	}
	return saved, nil
}

// Publish sends a lifecycle message such as {"event":"started"} without
// storing it.
func (e *Emitter) Publish(ctx context.Context, jobID string, message map[string]any) error {
	b, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "encode lifecycle message")
	}
	return e.bus.Publish(ctx, ChannelFor(jobID), string(b))
}

// Subscribe exposes the bus for streaming a job's messages.
func (e *Emitter) Subscribe(ctx context.Context, jobID string) (<-chan string, error) {
	return e.bus.Subscribe(ctx, ChannelFor(jobID))
}
