// Package metrics records Prometheus metrics for the agent. Orchestrator
// activity arrives through agentloop events; the HTTP gateway reports its
// own requests directly.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/martinemde/chatagent/agentloop"
)

const namespace = "chatagent"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	messages          prometheus.Counter
	responses         *prometheus.CounterVec
	responseDuration  prometheus.Histogram
	modelCalls        *prometheus.CounterVec
	modelDuration     prometheus.Histogram
	modelTokens       *prometheus.CounterVec
	toolCalls         *prometheus.CounterVec
	toolErrors        *prometheus.CounterVec
	toolDuration      *prometheus.HistogramVec
	iterationLimits   prometheus.Counter
	contextWarnings   prometheus.Counter
	errors            prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	httpResponseBytes *prometheus.HistogramVec
}

// New creates a Metrics with Go runtime and process collectors included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		messages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total user messages received.",
		}),
		responses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Total replies by loop outcome.",
		}, []string{"outcome"}),
		responseDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_duration_seconds",
			Help:      "Time from receiving a message to producing its reply.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		modelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total model calls by status.",
		}, []string{"status"}),
		modelDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Model call duration, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 9),
		}),
		modelTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens reported by the provider.",
		}, []string{"direction"}),
		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total tool calls.",
		}, []string{"tool"}),
		toolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_errors_total",
			Help:      "Tool calls that produced an error result.",
		}, []string{"tool"}),
		toolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_execution_duration_seconds",
			Help:      "Tool execution duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		iterationLimits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iteration_limit_total",
			Help:      "Messages that hit the iteration cap.",
		}),
		contextWarnings: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_warnings_total",
			Help:      "Model calls whose estimated context neared the window.",
		}),
		errors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_errors_total",
			Help:      "Messages answered with an error reply.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpResponseBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response body size.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"method", "route"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Subscribe feeds orchestrator events into the collectors.
func (m *Metrics) Subscribe(emitter *agentloop.EventEmitter) {
	emitter.Subscribe(m.Observe)
}

// Observe records a single orchestrator event.
func (m *Metrics) Observe(ev agentloop.Event) {
	switch ev.Kind {
	case agentloop.EventMessageReceived:
		m.messages.Inc()

	case agentloop.EventResponse:
		outcome, _ := ev.Data["outcome"].(string)
		m.responses.WithLabelValues(outcome).Inc()
		if d, ok := durationOf(ev); ok {
			m.responseDuration.Observe(d.Seconds())
		}

	case agentloop.EventModelCall:
		status := "ok"
		if _, failed := ev.Data["error"]; failed {
			status = "error"
		}
		m.modelCalls.WithLabelValues(status).Inc()
		if d, ok := durationOf(ev); ok {
			m.modelDuration.Observe(d.Seconds())
		}
		if n, ok := ev.Data["input_tokens"].(int); ok && n > 0 {
			m.modelTokens.WithLabelValues("input").Add(float64(n))
		}
		if n, ok := ev.Data["output_tokens"].(int); ok && n > 0 {
			m.modelTokens.WithLabelValues("output").Add(float64(n))
		}

	case agentloop.EventToolCallEnd:
		tool, _ := ev.Data["tool_name"].(string)
		m.toolCalls.WithLabelValues(tool).Inc()
		if isErr, _ := ev.Data["is_error"].(bool); isErr {
			m.toolErrors.WithLabelValues(tool).Inc()
		}
		if d, ok := durationOf(ev); ok {
			m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
		}

	case agentloop.EventIterationLimit:
		m.iterationLimits.Inc()

	case agentloop.EventContextWarning:
		m.contextWarnings.Inc()

	case agentloop.EventError:
		m.errors.Inc()
	}
}

// ObserveHTTPRequest records one served HTTP request. route is the matched
// route pattern, not the raw path.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration, size int) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
	m.httpResponseBytes.WithLabelValues(method, route).Observe(float64(size))
}

func durationOf(ev agentloop.Event) (time.Duration, bool) {
	d, ok := ev.Data["duration"].(time.Duration)
	return d, ok
}
