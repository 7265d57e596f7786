package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vapordeck/vapordeck/pkg/lifecycle"
)

// Metrics provides Prometheus metrics for vapordeck. It implements the
// lifecycle engine's Observer hook.
type Metrics struct {
	config MetricsConfig

	// Verb metrics
	verbsStarted *prometheus.CounterVec
	verbsDone    *prometheus.CounterVec
	verbDuration *prometheus.HistogramVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	// Instance metrics
	instancesManaged prometheus.Gauge

	registry *prometheus.Registry
}

var _ lifecycle.Observer = (*Metrics)(nil)

// NewMetrics creates a new metrics collector with the given
// configuration. A disabled config yields a no-op instance.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		verbsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verbs_started_total",
				Help:      "Total number of lifecycle verbs started",
			},
			[]string{"verb", "provider"},
		),
		verbsDone: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verbs_completed_total",
				Help:      "Total number of lifecycle verbs completed",
			},
			[]string{"verb", "provider", "outcome"},
		),
		verbDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "verb_duration_seconds",
				Help:      "Duration of lifecycle verbs in seconds",
				Buckets:   buckets,
			},
			[]string{"verb", "provider"},
		),
		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of lifecycle errors by class",
			},
			[]string{"class"},
		),
		instancesManaged: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "instances_managed",
				Help:      "Current number of persisted instance records",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.verbsStarted, m.verbsDone, m.verbDuration,
		m.errorsByClass, m.instancesManaged,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return m, nil
}

// ObserveVerb records one finished verb execution.
func (m *Metrics) ObserveVerb(verb, provider string, err error, elapsed time.Duration) {
	if m.registry == nil {
		return
	}

	m.verbsStarted.WithLabelValues(verb, provider).Inc()
	m.verbDuration.WithLabelValues(verb, provider).Observe(elapsed.Seconds())
	m.verbsDone.WithLabelValues(verb, provider, outcomeLabel(err)).Inc()
	if class := errorClass(err); class != "" {
		m.errorsByClass.WithLabelValues(class).Inc()
	}
}

// SetInstancesManaged records the current number of persisted records.
func (m *Metrics) SetInstancesManaged(n int) {
	if m.registry == nil {
		return
	}
	m.instancesManaged.Set(float64(n))
}

// Registry returns the underlying Prometheus registry, or nil when
// metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server in a goroutine. It is a
// no-op when metrics are disabled.
func (m *Metrics) StartServer() error {
	if m.registry == nil {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	go func() {
		// Exits with the process; errors here are not actionable.
		_ = http.ListenAndServe(m.config.ListenAddress, mux)
	}()
	return nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case lifecycle.IsInterrupted(err):
		return "interrupted"
	default:
		return "failure"
	}
}

func errorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case lifecycle.IsTransient(err):
		return string(lifecycle.ErrorClassTransient)
	case lifecycle.IsThrottled(err):
		return string(lifecycle.ErrorClassThrottled)
	case lifecycle.IsConflict(err):
		return string(lifecycle.ErrorClassConflict)
	case lifecycle.IsInterrupted(err):
		return string(lifecycle.ErrorClassInterrupted)
	default:
		return string(lifecycle.ErrorClassPermanent)
	}
}
