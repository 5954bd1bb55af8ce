package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/al3dwii/agenticBE/internal/metrics"
)

func TestObserveAndScrape(t *testing.T) {
	m := metrics.New()
	m.ObserveRequest("GET", "/v1/jobs/{id}", 200, 20*time.Millisecond)
	m.ObserveAgentRun("office.pptx_to_pdf", "sync", nil, time.Second)
	m.ObserveAgentRun("office.pptx_to_pdf", "job", errors.New("boom"), time.Second)
	m.ObserveWebhook("sent")

	count, err := testutil.GatherAndCount(m.Registry(), "agentic_agent_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `agentic_http_requests_total{method="GET",route="/v1/jobs/{id}",status="200"} 1`)
	assert.Contains(t, string(body), `agentic_webhook_attempts_total{outcome="sent"} 1`)
}
