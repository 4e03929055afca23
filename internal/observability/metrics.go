package observability

import (
	"net/http"
	"time"

	"github.com/kusuridheeraj/titan-grid/internal/failsafe"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/kusuridheeraj/titan-grid/internal/services/rules"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aegis"

// Decision latency buckets in milliseconds
var latencyBuckets = []float64{
	0.25, 0.5, 1, 2.5, // in-region store round trips
	5, 10, 25, // slow store
	50, 100, 150, 250, // near or past the store timeout
}

// Metrics holds the rate limiter's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	Blocked         *prometheus.CounterVec
	DecisionLatency prometheus.Histogram
	BreakerState    *prometheus.GaugeVec
	PipelineDropped prometheus.Counter
	PipelineErrors  *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry, including Go and process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Admission decisions by outcome and rule source",
			},
			[]string{"outcome", "source"},
		),
		Blocked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blocked_total",
				Help:      "Denied requests by severity",
			},
			[]string{"severity"},
		),
		DecisionLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_latency_ms",
				Help:      "Time spent deciding admission in milliseconds",
				Buckets:   latencyBuckets,
			},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
		PipelineDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_dropped_total",
				Help:      "Observability records dropped because the queue was full",
			},
		),
		PipelineErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_errors_total",
				Help:      "Audit and alert delivery failures",
			},
			[]string{"sink"},
		),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveDecision records one admission decision.
func (m *Metrics) ObserveDecision(rule models.RateLimitRule, decision models.RateLimitDecision, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !decision.Allowed {
		outcome = "denied"
	}
	m.Requests.WithLabelValues(outcome, string(rule.Source)).Inc()
	m.DecisionLatency.Observe(float64(elapsed.Microseconds()) / 1000)
}

// ObserveSeverity counts one denial by severity.
func (m *Metrics) ObserveSeverity(sev models.Severity) {
	if m == nil {
		return
	}
	m.Blocked.WithLabelValues(string(sev)).Inc()
}

// SetBreakerState exports the breaker state as a gauge.
func (m *Metrics) SetBreakerState(name string, state failsafe.State) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case failsafe.StateHalfOpen:
		v = 1
	case failsafe.StateOpen:
		v = 2
	}
	m.BreakerState.WithLabelValues(name).Set(v)
}

// RegisterResolverStats exports the resolver's cumulative counters.
func (m *Metrics) RegisterResolverStats(stats func() rules.Stats) {
	factory := promauto.With(m.registry)
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rule_cache_hits_total",
		Help:      "Dynamic rule cache hits",
	}, func() float64 { return float64(stats().CacheHits) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rule_cache_misses_total",
		Help:      "Dynamic rule cache misses",
	}, func() float64 { return float64(stats().CacheMisses) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rule_lookup_errors_total",
		Help:      "Dynamic rule store lookup failures",
	}, func() float64 { return float64(stats().LookupErrors) })
}

// RegisterQueueDepth exports the pipeline backlog.
func (m *Metrics) RegisterQueueDepth(depth func() int) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pipeline_queue_depth",
		Help:      "Observability records waiting for a worker",
	}, func() float64 { return float64(depth()) })
}
