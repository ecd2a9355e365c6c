// Package metrics records workflow stage and traversal metrics in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ragflow/internal/domain"
	"ragflow/internal/workflow"
)

const namespace = "ragflow"

// Traversal outcomes.
const (
	OutcomeAnswered  = "answered"
	OutcomeOffTopic  = "off_topic"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the collectors on a private registry, so several instances
// can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration   *prometheus.HistogramVec
	StageFailures   *prometheus.CounterVec
	Classifications *prometheus.CounterVec
	Traversals      *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Workflow stage duration in seconds",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		StageFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_failures_total",
				Help:      "Total number of failed workflow stages",
			},
			[]string{"stage"},
		),
		Classifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifications_total",
				Help:      "Total number of topic classifications",
			},
			[]string{"result"},
		),
		Traversals: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "traversals_total",
				Help:      "Total number of workflow traversals",
			},
			[]string{"outcome"},
		),
	}
}

// Registry exposes the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// StageStarted does nothing; durations are observed when the stage finishes.
func (m *Metrics) StageStarted(context.Context, workflow.StageID) {}

// StageFinished observes the stage duration and counts a failure when err is set.
func (m *Metrics) StageFinished(_ context.Context, id workflow.StageID, elapsed time.Duration, err error) {
	m.StageDuration.WithLabelValues(string(id)).Observe(elapsed.Seconds())
	if err != nil {
		m.StageFailures.WithLabelValues(string(id)).Inc()
	}
}

// TraversalFinished counts the outcome and, when one was reached, the classification.
func (m *Metrics) TraversalFinished(res workflow.Result, err error) {
	if c := res.State.Classification; c != domain.ClassificationUnset {
		m.Classifications.WithLabelValues(string(c)).Inc()
	}
	m.Traversals.WithLabelValues(Outcome(res, err)).Inc()
}

// Outcome labels a finished traversal.
func Outcome(res workflow.Result, err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case err != nil:
		return OutcomeFailed
	case res.State.Classification == domain.OffTopic:
		return OutcomeOffTopic
	default:
		return OutcomeAnswered
	}
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
