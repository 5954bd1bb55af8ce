package queue_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al3dwii/agenticBE/internal/queue"
)

func TestTaskRoundTrip(t *testing.T) {
	task, err := queue.NewTask(queue.TaskDeliverWebhook, queue.WebhookPayload{DeliveryID: "d-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.JSONEq(t, `{"delivery_id":"d-1"}`, string(task.Payload))

	var p queue.WebhookPayload
	require.NoError(t, task.Decode(&p))
	assert.Equal(t, "d-1", p.DeliveryID)
}

func TestMemoryQueueDelivers(t *testing.T) {
	q := queue.NewMemory(8, 2, nil)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu   sync.Mutex
		seen []string
		wg   sync.WaitGroup
	)
	wg.Add(3)
	done := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, task queue.Task) error {
			mu.Lock()
			seen = append(seen, task.Name)
			mu.Unlock()
			wg.Done()
			if task.Name == "bad" {
				return errors.New("handler failure")
			}
			if task.Name == "panic" {
				panic("boom")
			}
			return nil
		})
		close(done)
	}()

	for _, name := range []string{"ok", "bad", "panic"} {
		require.NoError(t, q.Publish(ctx, queue.Task{ID: name, Name: name}))
	}
	wg.Wait()
	cancel()
	<-done

	assert.ElementsMatch(t, []string{"ok", "bad", "panic"}, seen)
}

func TestMemoryPublishAfter(t *testing.T) {
	q := queue.NewMemory(8, 1, nil)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan time.Time, 1)
	go func() {
		_ = q.Consume(ctx, func(_ context.Context, task queue.Task) error {
			got <- time.Now()
			return nil
		})
	}()

	start := time.Now()
	require.NoError(t, q.PublishAfter(ctx, queue.Task{ID: "1", Name: "later"}, 50*time.Millisecond))

	select {
	case at := <-got:
		assert.GreaterOrEqual(t, at.Sub(start), 50*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task never delivered")
	}
}

func TestMemoryClosed(t *testing.T) {
	q := queue.NewMemory(1, 1, nil)
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Publish(context.Background(), queue.Task{}), queue.ErrClosed)
	assert.ErrorIs(t, q.PublishAfter(context.Background(), queue.Task{}, time.Second), queue.ErrClosed)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMemoryCloseReleasesBlockedPublishers(t *testing.T) {
	logs := &lockedBuffer{}
	q := queue.NewMemory(1, 1, slog.New(slog.NewJSONHandler(logs, nil)))
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, queue.Task{ID: "fill", Name: "fill"}))
	require.NoError(t, q.PublishAfter(ctx, queue.Task{ID: "late", Name: "late"}, 10*time.Millisecond))

	blocked := make(chan error, 1)
	go func() { blocked <- q.Publish(ctx, queue.Task{ID: "extra", Name: "extra"}) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, q.Close())

	select {
	case err := <-blocked:
		assert.ErrorIs(t, err, queue.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("publish still blocked after close")
	}
	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "delayed publish dropped")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDelayQueue(t *testing.T) {
	name, args := queue.DelayQueue("agentic.tasks", 20*time.Second)
	assert.Equal(t, "agentic.tasks.delay.20000", name)
	assert.Equal(t, int64(20000), args["x-message-ttl"])
	assert.Equal(t, "agentic.tasks", args["x-dead-letter-routing-key"])
}
