package webhooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/al3dwii/agenticBE/internal/backoff"
	domain "github.com/al3dwii/agenticBE/internal/domain/webhooks"
	"github.com/al3dwii/agenticBE/internal/queue"
)

// Outcome labels recorded for each delivery attempt.
const (
	OutcomeSent     = "sent"
	OutcomeRetrying = "retrying"
	OutcomeFailed   = "failed"
)

// Observer is notified of each attempt's outcome.
type Observer func(outcome string)

// Dispatcher stores outbound deliveries and schedules them on the queue.
type Dispatcher struct {
	repo      domain.Repository
	publisher queue.Publisher
	logger    *slog.Logger
}

// NewDispatcher builds a dispatcher.
func NewDispatcher(repo domain.Repository, publisher queue.Publisher, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{repo: repo, publisher: publisher, logger: logger}
}

// Enqueue persists a pending delivery and publishes a deliver_webhook task.
func (d *Dispatcher) Enqueue(ctx context.Context, tenantID, jobID, url, eventType string, payload map[string]any) (domain.Delivery, error) {
	saved, err := d.repo.Save(ctx, domain.Delivery{
		TenantID:  tenantID,
		JobID:     jobID,
		URL:       url,
		EventType: eventType,
		Payload:   payload,
		Status:    domain.StatusPending,
	})
	if err != nil {
		return domain.Delivery{}, errors.Wrap(err, "save webhook delivery")
	}

	task, err := queue.NewTask(queue.TaskDeliverWebhook, queue.WebhookPayload{DeliveryID: saved.ID})
	if err != nil {
		return saved, err
	}
	if err := d.publisher.Publish(ctx, task); err != nil {
		return saved, errors.Wrap(err, "publish webhook task")
	}
	d.logger.Info("webhook enqueued", "delivery_id", saved.ID, "job_id", jobID, "event", eventType)
	return saved, nil
}

// Deliverer performs HTTP delivery attempts.
type Deliverer struct {
	repo     domain.Repository
	client   *http.Client
	secret   string
	policy   backoff.Exponential
	observer Observer
	logger   *slog.Logger
}

// DelivererOptions configures a Deliverer.
type DelivererOptions struct {
	Secret     string
	Timeout    time.Duration
	MaxRetries int
	Client     *http.Client
	Observer   Observer
	Logger     *slog.Logger
}

// RetryPolicy is the delay schedule between attempts: 10s doubling up to 600s.
func RetryPolicy(maxRetries int) backoff.Exponential {
	return backoff.Exponential{Base: 10 * time.Second, Max: 600 * time.Second, MaxRetries: maxRetries}
}

// NewDeliverer builds a deliverer.
func NewDeliverer(repo domain.Repository, opts DelivererOptions) *Deliverer {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	secret := opts.Secret
	if secret == "" {
		secret = "change-me"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = func(string) {}
	}
	return &Deliverer{
		repo:     repo,
		client:   client,
		secret:   secret,
		policy:   RetryPolicy(opts.MaxRetries),
		observer: observer,
		logger:   logger,
	}
}

// Deliver makes one attempt. Unknown ids are ignored. A failed attempt leaves
// the delivery in retrying state and returns the failure.
func (d *Deliverer) Deliver(ctx context.Context, id string) error {
	delivery, err := d.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			d.logger.Warn("webhook delivery not found", "delivery_id", id)
			return nil
		}
		return errors.Wrap(err, "load webhook delivery")
	}

	attemptErr := d.post(ctx, delivery)
	delivery.Attempts++
	if attemptErr == nil {
		delivery.Status = domain.StatusSent
		delivery.LastError = ""
	} else {
		delivery.Status = domain.StatusRetrying
		delivery.LastError = attemptErr.Error()
	}

	if _, err := d.repo.Save(ctx, delivery); err != nil {
		return errors.Wrap(err, "save webhook delivery")
	}

	if attemptErr != nil {
		d.observer(OutcomeRetrying)
		d.logger.Warn("webhook attempt failed", "delivery_id", id, "attempts", delivery.Attempts, "error", attemptErr)
		return attemptErr
	}
	d.observer(OutcomeSent)
	d.logger.Info("webhook delivered", "delivery_id", id, "attempts", delivery.Attempts)
	return nil
}

// NextDelay returns the wait before retry number retries+1, or false once
// retries are exhausted.
func (d *Deliverer) NextDelay(retries int) (time.Duration, bool) {
	next := d.policy.NextBackOff(retries + 1)
	return next, next >= 0
}

// GiveUp marks a delivery as permanently failed.
func (d *Deliverer) GiveUp(ctx context.Context, id string) error {
	delivery, err := d.repo.FindByID(ctx, id)
	if err != nil {
		return errors.Wrap(err, "load webhook delivery")
	}
	delivery.Status = domain.StatusFailed
	if _, err := d.repo.Save(ctx, delivery); err != nil {
		return errors.Wrap(err, "save webhook delivery")
	}
	d.observer(OutcomeFailed)
	d.logger.Error("webhook delivery abandoned", "delivery_id", id, "attempts", delivery.Attempts, "last_error", delivery.LastError)
	return nil
}

func (d *Deliverer) post(ctx context.Context, delivery domain.Delivery) error {
	body, err := Canonical(delivery.Payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("X-Agentic-Event", delivery.EventType)
	req.Header.Set("X-Agentic-Signature", SignBody(d.secret, body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, firstChars(string(raw), 200))
}

func firstChars(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
