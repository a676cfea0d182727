// File: internal/observability/metrics.go
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/xkilldash9x/kickstart-cli/internal/faults"
)

// Metrics holds the counters of a single run. Each instance owns its own
// registry so it can be exported as a node_exporter textfile after a batch run.
type Metrics struct {
	registry *prometheus.Registry

	StepsTotal       *prometheus.CounterVec
	FailuresTotal    *prometheus.CounterVec
	PollsTotal       *prometheus.CounterVec
	StepDuration     *prometheus.HistogramVec
	NavigationsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the run counters.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kickstart",
				Subsystem: "flow",
				Name:      "steps_total",
				Help:      "Install stages and checkout levels executed, by outcome.",
			},
			[]string{"flow", "step", "outcome"},
		),
		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kickstart",
				Subsystem: "flow",
				Name:      "failures_total",
				Help:      "Flow failures by error kind.",
			},
			[]string{"flow", "kind"},
		),
		PollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kickstart",
				Subsystem: "install",
				Name:      "polls_total",
				Help:      "Progress page reloads while waiting on batch operations.",
			},
			[]string{"stage"},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "kickstart",
				Subsystem: "flow",
				Name:      "step_duration_seconds",
				Help:      "Wall time spent per stage or level.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7m
			},
			[]string{"flow", "step"},
		),
		NavigationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kickstart",
				Subsystem: "browser",
				Name:      "navigations_total",
				Help:      "Page loads by status class.",
			},
			[]string{"class"},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveStep records one executed step. A nil receiver is a no-op so callers
// can run without metrics.
func (m *Metrics) ObserveStep(flow, step string, seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.StepsTotal.WithLabelValues(flow, step, outcome).Inc()
	m.StepDuration.WithLabelValues(flow, step).Observe(seconds)
}

// ObserveFailure counts a terminal flow error under its kind.
func (m *Metrics) ObserveFailure(flow string, err error) {
	if m == nil || err == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(flow, faults.KindOf(err).String()).Inc()
}

// ObservePoll counts one progress reload.
func (m *Metrics) ObservePoll(stage string) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(stage).Inc()
}

// ObserveNavigation counts a page load by status class ("2xx", "5xx", ...).
func (m *Metrics) ObserveNavigation(status int) {
	if m == nil {
		return
	}
	m.NavigationsTotal.WithLabelValues(fmt.Sprintf("%dxx", status/100)).Inc()
}

// WriteTextfile writes all metrics in the text exposition format. The write
// is atomic so a collector never reads a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
