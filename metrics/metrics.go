// Package metrics exposes Prometheus instruments for the reasoning pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "casecounsel"

// Stage outcome labels
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeSkipped  = "skipped"
	OutcomeBlocked  = "blocked"
)

// Metrics holds the pipeline instruments.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	StageOutcomes *prometheus.CounterVec
	ModelCalls    *prometheus.HistogramVec
	Summaries     *prometheus.CounterVec
}

// New registers the pipeline instruments with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StageOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_outcomes_total",
			Help:      "Pipeline stage completions by stage and outcome.",
		}, []string{"stage", "outcome"}),
		ModelCalls: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_seconds",
			Help:      "Model gateway call latency by model key and status.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		}, []string{"model", "status"}),
		Summaries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Background case summarizations by result.",
		}, []string{"result"}),
	}
}

// Stage records one stage outcome
func (m *Metrics) Stage(stage, outcome string) {
	if m == nil {
		return
	}
	m.StageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// ModelCall records the latency of one gateway call
func (m *Metrics) ModelCall(model string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ModelCalls.WithLabelValues(model, status).Observe(elapsed.Seconds())
}

// Summary records one summarization run
func (m *Metrics) Summary(result string) {
	if m == nil {
		return
	}
	m.Summaries.WithLabelValues(result).Inc()
}
