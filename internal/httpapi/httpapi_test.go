package httpapi_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al3dwii/agenticBE/internal/auth"
	"github.com/al3dwii/agenticBE/internal/domain"
	domainevents "github.com/al3dwii/agenticBE/internal/domain/events"
	"github.com/al3dwii/agenticBE/internal/domain/jobs"
	"github.com/al3dwii/agenticBE/internal/events"
	"github.com/al3dwii/agenticBE/internal/httpapi"
	"github.com/al3dwii/agenticBE/internal/packs"
	"github.com/al3dwii/agenticBE/internal/queue"
	"github.com/al3dwii/agenticBE/internal/ratelimit"
	"github.com/al3dwii/agenticBE/internal/storage/memory"
)

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []queue.Task
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, task queue.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func (p *recordingPublisher) PublishAfter(ctx context.Context, task queue.Task, _ time.Duration) error {
	return p.Publish(ctx, task)
}

const echoSchema = `{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"]}`

type harness struct {
	router    *mux.Router
	deps      httpapi.Deps
	bus       *events.MemoryBus
	publisher *recordingPublisher
	artifacts string
}

func newHarness(t *testing.T, mutate ...func(*httpapi.Deps)) *harness {
	t.Helper()
	container := domain.New(domain.Options{
		TenantRepo:   memory.NewTenantRepository(),
		JobRepo:      memory.NewJobRepository(),
		EventRepo:    memory.NewEventRepository(),
		DeliveryRepo: memory.NewDeliveryRepository(),
	})
	reg := packs.NewRegistry()
	reg.Register("test",
		packs.Agent{Name: "echo", Schema: echoSchema, Run: func(_ context.Context, rc packs.Context, in map[string]any) (map[string]any, error) {
			return map[string]any{"echo": in, "tenant": rc.TenantID}, nil
		}},
		packs.Agent{Name: "fail", Run: func(context.Context, packs.Context, map[string]any) (map[string]any, error) {
			return nil, errors.New("nope")
		}},
	)

	bus := events.NewMemoryBus()
	pub := &recordingPublisher{}
	dir := t.TempDir()
	deps := httpapi.Deps{
		Env:           "test",
		Domain:        container,
		Issuer:        auth.NewIssuer("secret", time.Hour),
		Limiter:       ratelimit.New(ratelimit.NewMemoryStore(), 100, 100),
		Registry:      reg,
		Streamer:      events.NewEmitter(container.Events, bus, nil),
		Publisher:     pub,
		ArtifactsDir:  dir,
		SignupEnabled: true,
		Heartbeat:     50 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&deps)
	}

	router := mux.NewRouter()
	httpapi.Register(router, slog.New(slog.NewJSONHandler(io.Discard, nil)), deps)
	return &harness{router: router, deps: deps, bus: bus, publisher: pub, artifacts: dir}
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

// signup registers a tenant and returns its id and a token.
func (h *harness) signup(t *testing.T, name string) (string, string) {
	t.Helper()
	rr := h.do(t, http.MethodPost, "/v1/auth/tenants", "", map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	out := decode(t, rr)
	tenant := out["tenant"].(map[string]any)
	token := out["token"].(map[string]any)
	return tenant["id"].(string), token["access_token"].(string)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true,"env":"test"}`, rr.Body.String())
}

func TestAuthFlow(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, http.MethodPost, "/v1/auth/tenants", "", map[string]any{"name": "Acme"})
	require.Equal(t, http.StatusCreated, rr.Code)
	out := decode(t, rr)
	tenantID := out["tenant"].(map[string]any)["id"].(string)
	apiKey := out["api_key"].(string)
	assert.NotEmpty(t, apiKey)

	rr = h.do(t, http.MethodPost, "/v1/auth/token", "", map[string]any{"tenant_id": tenantID, "api_key": apiKey, "user_id": "u1"})
	require.Equal(t, http.StatusOK, rr.Code)
	tok := decode(t, rr)
	assert.Equal(t, "bearer", tok["token_type"])

	p, err := h.deps.Issuer.Verify(tok["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{TenantID: tenantID, UserID: "u1"}, p)

	rr = h.do(t, http.MethodPost, "/v1/auth/token", "", map[string]any{"tenant_id": tenantID, "api_key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = h.do(t, http.MethodPost, "/v1/auth/tenants", "", map[string]any{"name": " "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSignupDisabled(t *testing.T) {
	h := newHarness(t, func(d *httpapi.Deps) { d.SignupEnabled = false })
	rr := h.do(t, http.MethodPost, "/v1/auth/tenants", "", map[string]any{"name": "Acme"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	h := newHarness(t)
	rr := h.do(t, http.MethodGet, "/v1/packs", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = h.do(t, http.MethodGet, "/v1/packs", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestPacks(t *testing.T) {
	h := newHarness(t)
	_, token := h.signup(t, "Acme")

	rr := h.do(t, http.MethodGet, "/v1/packs", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"test":["echo","fail"]}`, rr.Body.String())

	rr = h.do(t, http.MethodGet, "/v1/packs/test/echo/schema", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, echoSchema, rr.Body.String())

	rr = h.do(t, http.MethodGet, "/v1/packs/test/missing/schema", token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRunAgentSync(t *testing.T) {
	h := newHarness(t)
	tenantID, token := h.signup(t, "Acme")

	rr := h.do(t, http.MethodPost, "/v1/agents/test/echo", token, map[string]any{"inputs": map[string]any{"n": 2}, "n": 99})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	out := decode(t, rr)
	assert.Equal(t, map[string]any{"n": float64(2)}, out["echo"])
	assert.Equal(t, tenantID, out["tenant"])

	// top-level keys minus metadata
	rr = h.do(t, http.MethodPost, "/v1/agents/test/echo", token, map[string]any{"n": 3, "webhook_url": "x", "files": []string{}})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]any{"n": float64(3)}, decode(t, rr)["echo"])

	rr = h.do(t, http.MethodPost, "/v1/agents/test/echo", token, `[1,2]`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Payload must be a JSON object", decode(t, rr)["error"])

	rr = h.do(t, http.MethodPost, "/v1/agents/test/echo", token, map[string]any{"n": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPost, "/v1/agents/test/fail", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Agent error: nope", decode(t, rr)["error"])

	rr = h.do(t, http.MethodPost, "/v1/agents/test/ghost", token, map[string]any{})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Unknown agent 'test.ghost'", decode(t, rr)["error"])
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, func(d *httpapi.Deps) {
		d.Limiter = ratelimit.New(ratelimit.NewMemoryStore(), 2, 100)
	})
	_, token := h.signup(t, "Acme")

	for i := 0; i < 2; i++ {
		rr := h.do(t, http.MethodPost, "/v1/agents/test/echo", token, map[string]any{"n": 1})
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := h.do(t, http.MethodPost, "/v1/agents/test/echo", token, map[string]any{"n": 1})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "Tenant rate limit exceeded", decode(t, rr)["error"])
}

func TestJobsLifecycle(t *testing.T) {
	h := newHarness(t)
	tenantID, token := h.signup(t, "Acme")

	rr := h.do(t, http.MethodPost, "/v1/jobs", token, map[string]any{
		"pack": "test", "agent": "echo", "inputs": map[string]any{"n": 5}, "webhook_url": "https://example.com/hook",
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	out := decode(t, rr)
	assert.Equal(t, "queued", out["status"])
	jobID := out["job_id"].(string)

	require.Len(t, h.publisher.tasks, 1)
	var payload queue.AgentJobPayload
	require.NoError(t, h.publisher.tasks[0].Decode(&payload))
	assert.Equal(t, queue.AgentJobPayload{
		TenantID: tenantID, Pack: "test", Agent: "echo", Payload: map[string]any{"n": float64(5)},
		JobID: jobID, WebhookURL: "https://example.com/hook",
	}, payload)

	rr = h.do(t, http.MethodGet, "/v1/jobs/"+jobID, token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "test.echo", decode(t, rr)["kind"])

	rr = h.do(t, http.MethodGet, "/v1/jobs", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), decode(t, rr)["count"])

	_, err := h.deps.Domain.Events.Record(context.Background(), eventFor(tenantID, jobID))
	require.NoError(t, err)
	rr = h.do(t, http.MethodGet, "/v1/jobs/"+jobID+"/history", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["events"], 1)

	// other tenants cannot see the job
	_, other := h.signup(t, "Other")
	rr = h.do(t, http.MethodGet, "/v1/jobs/"+jobID, other, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = h.do(t, http.MethodGet, "/v1/jobs/"+jobID+"/events", other, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateJobValidation(t *testing.T) {
	h := newHarness(t)
	_, token := h.signup(t, "Acme")

	rr := h.do(t, http.MethodPost, "/v1/jobs", token, map[string]any{"agent": "echo"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = h.do(t, http.MethodPost, "/v1/jobs", token, map[string]any{"pack": "test", "agent": "ghost"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = h.do(t, http.MethodPost, "/v1/jobs", token, map[string]any{"pack": "test", "agent": "echo", "inputs": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, h.publisher.tasks)

	h.publisher.err = errors.New("broker down")
	rr = h.do(t, http.MethodPost, "/v1/jobs", token, map[string]any{"pack": "test", "agent": "echo", "n": 1})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	list, err := h.deps.Domain.Jobs.ListForTenant(context.Background(), mustTenant(t, h, token), 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, jobs.StatusFailed, list[0].Status)
}

func TestJobEventStream(t *testing.T) {
	h := newHarness(t)
	tenantID, token := h.signup(t, "Acme")
	job, err := h.deps.Domain.Jobs.Create(context.Background(), jobs.CreateInput{TenantID: tenantID, Pack: "test", Agent: "echo"})
	require.NoError(t, err)

	srv := httptest.NewServer(h.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/jobs/"+job.ID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.NoError(t, h.bus.Publish(context.Background(), events.ChannelFor(job.ID), `{"event":"started"}`))

	reader := bufio.NewReader(resp.Body)
	var sawData, sawPing bool
	deadline := time.Now().Add(3 * time.Second)
	for (!sawData || !sawPing) && time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch strings.TrimRight(line, "\n") {
		case `data: {"event":"started"}`:
			sawData = true
		case ": ping":
			sawPing = true
		}
	}
	assert.True(t, sawData, "expected data frame")
	assert.True(t, sawPing, "expected heartbeat")
}

func TestJobEventStreamEndsOnClosing(t *testing.T) {
	closing := make(chan struct{})
	h := newHarness(t, func(d *httpapi.Deps) { d.Closing = closing })
	tenantID, token := h.signup(t, "Acme")
	job, err := h.deps.Domain.Jobs.Create(context.Background(), jobs.CreateInput{TenantID: tenantID, Pack: "test", Agent: "echo"})
	require.NoError(t, err)

	srv := httptest.NewServer(h.router)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/jobs/"+job.ID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	close(closing)

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, resp.Body)
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("event stream still open after closing")
	}
}

func TestArtifactsServed(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(filepath.Join(h.artifacts, "slides.pdf"), []byte("%PDF"), 0o644))

	rr := h.do(t, http.MethodGet, "/artifacts/slides.pdf", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "%PDF", rr.Body.String())

	rr = h.do(t, http.MethodGet, "/artifacts/missing.pdf", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = h.do(t, http.MethodGet, "/artifacts/", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func mustTenant(t *testing.T, h *harness, token string) string {
	t.Helper()
	p, err := h.deps.Issuer.Verify(token)
	require.NoError(t, err)
	return p.TenantID
}

func eventFor(tenantID, jobID string) domainevents.Event {
	return domainevents.Event{TenantID: tenantID, JobID: jobID, Step: domainevents.StepRun, Status: domainevents.StatusStarted}
}
