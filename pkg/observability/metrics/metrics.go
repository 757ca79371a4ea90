package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cid_pipeline_records_total",
			Help: "Records handled by a pipeline stage, by outcome",
		},
		[]string{"stage", "outcome"},
	)

	recordDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cid_pipeline_record_duration_seconds",
			Help:    "Time spent processing one record in a stage",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	labelsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cid_pipeline_labels_total",
			Help: "Labels written by a pipeline stage",
		},
		[]string{"stage"},
	)

	softFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cid_pipeline_soft_failures_total",
			Help: "Units of work dropped without failing the record",
		},
		[]string{"stage", "kind"},
	)

	// Model metrics
	modelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cid_model_calls_total",
			Help: "Generation and embedding calls, by outcome",
		},
		[]string{"kind", "model", "outcome"},
	)

	modelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cid_model_call_duration_seconds",
			Help:    "Generation and embedding call latency",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"kind", "model"},
	)

	// Audit metrics
	auditDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cid_audit_decisions_total",
			Help: "Audit verdicts by decision and rejection reason",
		},
		[]string{"decision", "reason"},
	)
)

// Handler returns the Prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordRecord(stage, outcome string, duration time.Duration) {
	recordsTotal.WithLabelValues(stage, outcome).Inc()
	recordDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func RecordLabels(stage string, count int) {
	labelsTotal.WithLabelValues(stage).Add(float64(count))
}

func RecordSoftFailure(stage, kind string) {
	softFailuresTotal.WithLabelValues(stage, kind).Inc()
}

func RecordModelCall(kind, model, outcome string, duration time.Duration) {
	modelCallsTotal.WithLabelValues(kind, model, outcome).Inc()
	modelCallDuration.WithLabelValues(kind, model).Observe(duration.Seconds())
}

func RecordAuditDecision(decision, reason string) {
	auditDecisionsTotal.WithLabelValues(decision, reason).Inc()
}
