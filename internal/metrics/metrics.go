package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requestCounter    *prometheus.CounterVec
	responseHistogram *prometheus.HistogramVec
	agentRunCounter   *prometheus.CounterVec
	agentHistogram    *prometheus.HistogramVec
	webhookCounter    *prometheus.CounterVec
}

// New builds and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentic_http_requests_total",
				Help: "Total number of HTTP requests.",
			}, []string{"method", "route", "status"}),
		responseHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentic_http_response_seconds",
			Help:    "Histogram of HTTP response time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		agentRunCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentic_agent_runs_total",
				Help: "Total number of agent runs by outcome.",
			}, []string{"agent", "mode", "outcome"}),
		agentHistogram: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentic_agent_run_seconds",
			Help:    "Histogram of agent run time.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"agent", "mode"}),
		webhookCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentic_webhook_attempts_total",
				Help: "Total number of webhook delivery attempts by outcome.",
			}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestCounter,
		m.responseHistogram,
		m.agentRunCounter,
		m.agentHistogram,
		m.webhookCounter,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler returns the scrape handler.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requestCounter.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.responseHistogram.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveAgentRun records an agent run. mode is "sync" or "job".
func (m *Metrics) ObserveAgentRun(agent, mode string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.agentRunCounter.WithLabelValues(agent, mode, outcome).Inc()
	m.agentHistogram.WithLabelValues(agent, mode).Observe(elapsed.Seconds())
}

// ObserveWebhook records a webhook attempt outcome.
func (m *Metrics) ObserveWebhook(outcome string) {
	m.webhookCounter.WithLabelValues(outcome).Inc()
}
