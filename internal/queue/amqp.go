package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"
)

// AMQP is a RabbitMQ-backed queue. Delayed tasks go through a per-delay
// holding queue whose messages dead-letter back into the main queue.
type AMQP struct {
	conn     *amqp.Connection
	pub      *amqp.Channel
	pubMu    sync.Mutex
	queue    string
	prefetch int
	logger   *slog.Logger

	declaredMu sync.Mutex
	declared   map[string]bool
}

// DialAMQP connects, opens a publishing channel and declares the durable queue.
func DialAMQP(url, queue string, prefetch int, logger *slog.Logger) (*AMQP, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if prefetch <= 0 {
		prefetch = 1
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to RabbitMQ")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to open RabbitMQ channel")
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrapf(err, "declare queue %s", queue)
	}

	return &AMQP{
		conn:     conn,
		pub:      ch,
		queue:    queue,
		prefetch: prefetch,
		logger:   logger,
		declared: map[string]bool{},
	}, nil
}

func (q *AMQP) Publish(ctx context.Context, task Task) error {
	return q.publish(q.queue, task)
}

func (q *AMQP) PublishAfter(ctx context.Context, task Task, delay time.Duration) error {
	if delay <= 0 {
		return q.Publish(ctx, task)
	}
	name, args := DelayQueue(q.queue, delay)
	if err := q.declareOnce(name, args); err != nil {
		return err
	}
	return q.publish(name, task)
}

// DelayQueue returns the holding queue name and arguments for delay.
func DelayQueue(queue string, delay time.Duration) (string, amqp.Table) {
	ms := delay.Milliseconds()
	return fmt.Sprintf("%s.delay.%d", queue, ms), amqp.Table{
		"x-message-ttl":             ms,
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
		"x-expires":                 ms + int64(time.Minute/time.Millisecond),
	}
}

func (q *AMQP) declareOnce(name string, args amqp.Table) error {
	q.declaredMu.Lock()
	defer q.declaredMu.Unlock()
	if q.declared[name] {
		return nil
	}

	q.pubMu.Lock()
	_, err := q.pub.QueueDeclare(name, true, false, false, false, args)
	q.pubMu.Unlock()
	if err != nil {
		return errors.Wrapf(err, "declare delay queue %s", name)
	}
	q.declared[name] = true
	return nil
}

func (q *AMQP) publish(routingKey string, task Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return errors.Wrap(err, "encode task")
	}

	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	if err := q.pub.Publish("", routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    task.ID,
		Type:         task.Name,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}); err != nil {
		return errors.Wrap(err, "failed to publish message to RabbitMQ")
	}
	return nil
}

// Consume processes deliveries with up to prefetch concurrent handlers. A
// handler error nacks the message without requeueing it.
func (q *AMQP) Consume(ctx context.Context, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return errors.Wrap(err, "open consumer channel")
	}
	defer ch.Close()

	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		return errors.Wrap(err, "set qos")
	}

	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "consume %s", q.queue)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	sem := make(chan struct{}, q.prefetch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("RabbitMQ delivery channel closed")
			}
			sem <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				q.handle(ctx, handler, d)
			}(d)
		}
	}
}

func (q *AMQP) handle(ctx context.Context, handler Handler, d amqp.Delivery) {
	var task Task
	if err := json.Unmarshal(d.Body, &task); err != nil {
		q.logger.Error("discarding malformed task", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}

	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("task panicked: %v", rec)
			}
		}()
		err = handler(ctx, task)
	}()

	if err != nil {
		q.logger.Warn("task failed", "task", task.Name, "task_id", task.ID, "error", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// Close shuts the channel and connection.
func (q *AMQP) Close() error {
	var errs []error
	if err := q.pub.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing RabbitMQ channel: %w", err))
	}
	if err := q.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("error closing RabbitMQ connection: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors occurred during RabbitMQ shutdown: %v", errs)
	}
	return nil
}
