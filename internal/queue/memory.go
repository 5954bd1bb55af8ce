package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrClosed is returned when publishing to a closed queue.
var ErrClosed = errors.New("queue closed")

// Memory is an in-process queue served by a fixed pool of goroutines.
type Memory struct {
	tasks   chan Task
	workers int
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	timers map[*time.Timer]struct{}
}

// NewMemory builds a queue with the given buffer and worker count.
func NewMemory(buffer, workers int, logger *slog.Logger) *Memory {
	if buffer <= 0 {
		buffer = 256
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		tasks:   make(chan Task, buffer),
		workers: workers,
		logger:  logger,
		done:    make(chan struct{}),
		timers:  make(map[*time.Timer]struct{}),
	}
}

func (q *Memory) Publish(ctx context.Context, task Task) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Memory) PublishAfter(ctx context.Context, task Task, delay time.Duration) error {
	if delay <= 0 {
		return q.Publish(ctx, task)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		if err := q.Publish(context.Background(), task); err != nil {
			q.logger.Warn("delayed publish dropped", "task", task.Name, "task_id", task.ID, "error", err)
		}
	})
	q.timers[timer] = struct{}{}
	return nil
}

// Consume runs the worker pool until ctx is cancelled.
func (q *Memory) Consume(ctx context.Context, handler Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-q.tasks:
					q.handle(ctx, handler, task)
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func (q *Memory) handle(ctx context.Context, handler Handler, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			q.logger.Error("task panicked", "task", task.Name, "task_id", task.ID, "panic", fmt.Sprint(rec))
		}
	}()
	if err := handler(ctx, task); err != nil {
		q.logger.Warn("task failed", "task", task.Name, "task_id", task.ID, "error", err)
	}
}

// Close stops pending delayed publishes and releases publishers blocked on a
// full buffer. Queued tasks are discarded.
func (q *Memory) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	for t := range q.timers {
		t.Stop()
	}
	q.timers = map[*time.Timer]struct{}{}
	return nil
}
