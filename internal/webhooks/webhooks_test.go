package webhooks_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/al3dwii/agenticBE/internal/domain/webhooks"
	"github.com/al3dwii/agenticBE/internal/queue"
	"github.com/al3dwii/agenticBE/internal/storage/memory"
	"github.com/al3dwii/agenticBE/internal/webhooks"
)

func TestCanonicalSortsKeysAndKeepsUnicode(t *testing.T) {
	type item struct {
		Zed   string `json:"zed"`
		Alpha int    `json:"alpha"`
	}
	body, err := webhooks.Canonical(map[string]any{
		"result": item{Zed: "<b>é</b>", Alpha: 1},
		"job_id": "j1",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"job_id":"j1","result":{"alpha":1,"zed":"<b>é</b>"}}`, string(body))
}

func TestSign(t *testing.T) {
	sig, err := webhooks.Sign("change-me", map[string]any{"job_id": "j1", "error": "boom"})
	require.NoError(t, err)

	mac := hmac.New(sha256.New, []byte("change-me"))
	mac.Write([]byte(`{"error":"boom","job_id":"j1"}`))
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), sig)

	assert.True(t, webhooks.Verify("change-me", []byte(`{"error":"boom","job_id":"j1"}`), sig))
	assert.False(t, webhooks.Verify("other", []byte(`{"error":"boom","job_id":"j1"}`), sig))
}

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []queue.Task
}

func (p *recordingPublisher) Publish(_ context.Context, task queue.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *recordingPublisher) PublishAfter(ctx context.Context, task queue.Task, _ time.Duration) error {
	return p.Publish(ctx, task)
}

func TestEnqueuePersistsAndPublishes(t *testing.T) {
	repo := memory.NewDeliveryRepository()
	pub := &recordingPublisher{}
	d := webhooks.NewDispatcher(repo, pub, nil)

	saved, err := d.Enqueue(context.Background(), "t1", "j1", "https://hooks.test", domain.EventJobSucceeded, map[string]any{"job_id": "j1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, saved.Status)
	assert.Zero(t, saved.Attempts)

	require.Len(t, pub.tasks, 1)
	assert.Equal(t, queue.TaskDeliverWebhook, pub.tasks[0].Name)
	var p queue.WebhookPayload
	require.NoError(t, pub.tasks[0].Decode(&p))
	assert.Equal(t, saved.ID, p.DeliveryID)
}

func TestDeliverSuccess(t *testing.T) {
	var (
		gotBody  string
		gotEvent string
		gotSig   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotEvent = r.Header.Get("X-Agentic-Event")
		gotSig = r.Header.Get("X-Agentic-Signature")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	repo := memory.NewDeliveryRepository()
	saved, err := repo.Save(context.Background(), domain.Delivery{
		TenantID: "t1", JobID: "j1", URL: srv.URL, EventType: domain.EventJobSucceeded,
		Payload: map[string]any{"job_id": "j1", "result": map[string]any{"pdf_key": "slides.pdf"}},
		Status:  domain.StatusRetrying, LastError: "HTTP 500: old",
	})
	require.NoError(t, err)

	var outcomes []string
	d := webhooks.NewDeliverer(repo, webhooks.DelivererOptions{Secret: "s3cret", MaxRetries: 6, Observer: func(o string) { outcomes = append(outcomes, o) }})
	require.NoError(t, d.Deliver(context.Background(), saved.ID))

	assert.Equal(t, domain.EventJobSucceeded, gotEvent)
	assert.Equal(t, `{"job_id":"j1","result":{"pdf_key":"slides.pdf"}}`, gotBody)
	assert.True(t, webhooks.Verify("s3cret", []byte(gotBody), gotSig))

	after, err := repo.FindByID(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSent, after.Status)
	assert.Equal(t, 1, after.Attempts)
	assert.Empty(t, after.LastError)
	assert.Equal(t, []string{webhooks.OutcomeSent}, outcomes)
}

func TestDeliverHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", 500)))
	}))
	defer srv.Close()

	repo := memory.NewDeliveryRepository()
	saved, err := repo.Save(context.Background(), domain.Delivery{TenantID: "t1", JobID: "j1", URL: srv.URL, EventType: domain.EventJobFailed, Payload: map[string]any{}, Status: domain.StatusPending})
	require.NoError(t, err)

	d := webhooks.NewDeliverer(repo, webhooks.DelivererOptions{MaxRetries: 6})
	err = d.Deliver(context.Background(), saved.ID)
	require.Error(t, err)
	assert.Equal(t, "HTTP 502: "+strings.Repeat("x", 200), err.Error())

	after, err := repo.FindByID(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRetrying, after.Status)
	assert.Equal(t, 1, after.Attempts)
	assert.Equal(t, "HTTP 502: "+strings.Repeat("x", 200), after.LastError)
}

func TestDeliverTransportFailureAndGiveUp(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	repo := memory.NewDeliveryRepository()
	saved, err := repo.Save(context.Background(), domain.Delivery{TenantID: "t1", JobID: "j1", URL: url, EventType: domain.EventJobFailed, Payload: map[string]any{}, Status: domain.StatusPending})
	require.NoError(t, err)

	d := webhooks.NewDeliverer(repo, webhooks.DelivererOptions{MaxRetries: 6, Timeout: time.Second})
	require.Error(t, d.Deliver(context.Background(), saved.ID))

	require.NoError(t, d.GiveUp(context.Background(), saved.ID))
	after, err := repo.FindByID(context.Background(), saved.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, after.Status)
	assert.NotEmpty(t, after.LastError)
}

func TestDeliverUnknownIsNoop(t *testing.T) {
	d := webhooks.NewDeliverer(memory.NewDeliveryRepository(), webhooks.DelivererOptions{})
	assert.NoError(t, d.Deliver(context.Background(), "missing"))
}

func TestNextDelay(t *testing.T) {
	d := webhooks.NewDeliverer(memory.NewDeliveryRepository(), webhooks.DelivererOptions{MaxRetries: 6})

	delay, ok := d.NextDelay(0)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Second, delay)

	delay, ok = d.NextDelay(5)
	assert.True(t, ok)
	assert.Equal(t, 320*time.Second, delay)

	_, ok = d.NextDelay(6)
	assert.False(t, ok)
}
