package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/al3dwii/agenticBE/internal/domain/events"
	"github.com/al3dwii/agenticBE/internal/domain/jobs"
	domainhooks "github.com/al3dwii/agenticBE/internal/domain/webhooks"
	"github.com/al3dwii/agenticBE/internal/packs"
	"github.com/al3dwii/agenticBE/internal/queue"
)

// Emitter records job events and publishes lifecycle messages.
type Emitter interface {
	Emit(ctx context.Context, tenantID, jobID, step, status string, payload map[string]any) (events.Event, error)
	Publish(ctx context.Context, jobID string, message map[string]any) error
}

// Enqueuer schedules webhook deliveries.
type Enqueuer interface {
	Enqueue(ctx context.Context, tenantID, jobID, url, eventType string, payload map[string]any) (domainhooks.Delivery, error)
}

// Deliverer makes webhook attempts and reports the retry schedule.
type Deliverer interface {
	Deliver(ctx context.Context, id string) error
	NextDelay(retries int) (time.Duration, bool)
	GiveUp(ctx context.Context, id string) error
}

// RunObserver records agent run outcomes.
type RunObserver interface {
	ObserveAgentRun(agent, mode string, err error, elapsed time.Duration)
}

// Options holds worker dependencies.
type Options struct {
	Registry  *packs.Registry
	Jobs      jobs.Service
	Emitter   Emitter
	Webhooks  Enqueuer
	Deliverer Deliverer
	Publisher queue.Publisher
	Metrics   RunObserver
	Logger    *slog.Logger
}

// Worker executes queued tasks.
type Worker struct {
	opts   Options
	logger *slog.Logger
}

// New builds a worker.
func New(opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{opts: opts, logger: logger}
}

// Handle dispatches a task by name. It satisfies queue.Handler.
func (w *Worker) Handle(ctx context.Context, task queue.Task) error {
	switch task.Name {
	case queue.TaskRunAgentJob:
		var p queue.AgentJobPayload
		if err := task.Decode(&p); err != nil {
			return err
		}
		return w.RunAgentJob(ctx, p)
	case queue.TaskDeliverWebhook:
		var p queue.WebhookPayload
		if err := task.Decode(&p); err != nil {
			return err
		}
		return w.DeliverWebhook(ctx, task, p)
	default:
		return errors.Errorf("unknown task %q", task.Name)
	}
}

// Run consumes from c until ctx ends.
func (w *Worker) Run(ctx context.Context, c queue.Consumer) error {
	w.logger.Info("worker consuming")
	return c.Consume(ctx, w.Handle)
}

// RunAgentJob executes one queued agent run. Agent failures are recorded on
// the job and do not fail the task.
func (w *Worker) RunAgentJob(ctx context.Context, p queue.AgentJobPayload) error {
	logger := w.logger.With("job_id", p.JobID, "tenant_id", p.TenantID, "agent", jobs.Kind(p.Pack, p.Agent))

	w.publish(ctx, p.JobID, map[string]any{"event": "started"})
	if _, err := w.opts.Jobs.MarkRunning(ctx, p.TenantID, p.JobID); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			logger.Warn("job vanished before run")
			return nil
		}
		return errors.Wrap(err, "mark job running")
	}
	w.emit(ctx, logger, p, events.StatusStarted, map[string]any{"pack": p.Pack, "agent": p.Agent})

	agent, err := w.opts.Registry.Lookup(p.Pack, p.Agent)
	if err != nil {
		return w.fail(ctx, logger, p, fmt.Sprintf("Unknown agent %s/%s: %v", p.Pack, p.Agent, err))
	}

	inputs := make(map[string]any, len(p.Payload)+2)
	for k, v := range p.Payload {
		inputs[k] = v
	}
	inputs["tenant_id"] = p.TenantID
	inputs["job_id"] = p.JobID

	start := time.Now()
	result, runErr := w.runAgent(ctx, agent, packs.Context{
		TenantID: p.TenantID,
		JobID:    p.JobID,
		Logger:   logger,
	}, inputs)
	if w.opts.Metrics != nil {
		w.opts.Metrics.ObserveAgentRun(jobs.Kind(p.Pack, p.Agent), "job", runErr, time.Since(start))
	}
	if runErr != nil {
		return w.fail(ctx, logger, p, runErr.Error())
	}

	if _, err := w.opts.Jobs.MarkSucceeded(ctx, p.TenantID, p.JobID, result); err != nil {
		return errors.Wrap(err, "mark job succeeded")
	}
	w.emit(ctx, logger, p, events.StatusFinished, map[string]any{"result": result})
	w.publish(ctx, p.JobID, map[string]any{"event": "succeeded"})
	logger.Info("job succeeded", "elapsed", time.Since(start).String())

	if p.WebhookURL != "" {
		w.enqueueHook(ctx, logger, p, domainhooks.EventJobSucceeded, map[string]any{"job_id": p.JobID, "result": result})
	}
	return nil
}

func (w *Worker) runAgent(ctx context.Context, agent packs.Agent, rc packs.Context, inputs map[string]any) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("agent panic: %v", r)
		}
	}()
	return agent.Run(ctx, rc, inputs)
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, p queue.AgentJobPayload, reason string) error {
	logger.Warn("job failed", "error", reason)
	if _, err := w.opts.Jobs.MarkFailed(ctx, p.TenantID, p.JobID, reason); err != nil {
		return errors.Wrap(err, "mark job failed")
	}
	w.emit(ctx, logger, p, events.StatusFailed, map[string]any{"error": reason})
	w.publish(ctx, p.JobID, map[string]any{"event": "failed", "error": reason})
	if p.WebhookURL != "" {
		w.enqueueHook(ctx, logger, p, domainhooks.EventJobFailed, map[string]any{"job_id": p.JobID, "error": reason})
	}
	return nil
}

func (w *Worker) emit(ctx context.Context, logger *slog.Logger, p queue.AgentJobPayload, status string, payload map[string]any) {
	if _, err := w.opts.Emitter.Emit(ctx, p.TenantID, p.JobID, events.StepRun, status, payload); err != nil {
		logger.Warn("emit run event failed", "status", status, "error", err)
	}
}

func (w *Worker) publish(ctx context.Context, jobID string, msg map[string]any) {
	if err := w.opts.Emitter.Publish(ctx, jobID, msg); err != nil {
		w.logger.Warn("publish job message failed", "job_id", jobID, "error", err)
	}
}

func (w *Worker) enqueueHook(ctx context.Context, logger *slog.Logger, p queue.AgentJobPayload, eventType string, payload map[string]any) {
	if w.opts.Webhooks == nil {
		return
	}
	if _, err := w.opts.Webhooks.Enqueue(ctx, p.TenantID, p.JobID, p.WebhookURL, eventType, payload); err != nil {
		logger.Error("enqueue webhook failed", "event", eventType, "error", err)
	}
}

// DeliverWebhook makes one attempt and schedules the next one on failure.
func (w *Worker) DeliverWebhook(ctx context.Context, task queue.Task, p queue.WebhookPayload) error {
	err := w.opts.Deliverer.Deliver(ctx, p.DeliveryID)
	if err == nil {
		return nil
	}

	logger := w.logger.With("delivery_id", p.DeliveryID, "retries", task.Retries)
	delay, ok := w.opts.Deliverer.NextDelay(task.Retries)
	if !ok {
		logger.Warn("webhook retries exhausted", "error", err)
		return w.opts.Deliverer.GiveUp(ctx, p.DeliveryID)
	}

	next := task
	next.Retries++
	if perr := w.opts.Publisher.PublishAfter(ctx, next, delay); perr != nil {
		return errors.Wrap(perr, "schedule webhook retry")
	}
	logger.Info("webhook retry scheduled", "delay", delay.String(), "error", err)
	return nil
}
