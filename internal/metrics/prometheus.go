package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FairForge/ssoload/internal/loginflow"
)

// VU outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Prometheus exports flow metrics on a private registry.
type Prometheus struct {
	StepDuration *prometheus.HistogramVec
	VUs          *prometheus.CounterVec
	ActiveVUs    prometheus.Gauge
	registry     *prometheus.Registry
}

// NewPrometheus creates and registers all metrics.
func NewPrometheus(scenario string) *Prometheus {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"scenario": scenario}

	p := &Prometheus{
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "ssoload_step_duration_seconds",
				Help:        "Login journey checkpoint durations in seconds",
				Buckets:     []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
				ConstLabels: labels,
			},
			[]string{"stat"},
		),
		VUs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "ssoload_vu_total",
				Help:        "Virtual users by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome", "step"},
		),
		ActiveVUs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "ssoload_vu_active",
				Help:        "Virtual users currently running",
				ConstLabels: labels,
			},
		),
		registry: registry,
	}

	registry.MustRegister(p.StepDuration)
	registry.MustRegister(p.VUs)
	registry.MustRegister(p.ActiveVUs)

	return p
}

// Emit implements loginflow.MetricsSink.
func (p *Prometheus) Emit(_ context.Context, m loginflow.Metric) {
	p.StepDuration.WithLabelValues(m.Name).Observe(m.Value.Seconds())
}

// VUStarted marks a virtual user as running.
func (p *Prometheus) VUStarted() {
	p.ActiveVUs.Inc()
}

// VUFinished records how a virtual user ended. step is the failing step, or
// empty on success.
func (p *Prometheus) VUFinished(outcome, step string) {
	if outcome != OutcomeSkipped {
		p.ActiveVUs.Dec()
	}
	p.VUs.WithLabelValues(outcome, step).Inc()
}

// Handler returns the Prometheus metrics handler
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
