package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline Prometheus metrics.
var (
	ProcessorResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supportgraph",
			Name:      "processor_results_total",
			Help:      "Per-entity processor outcomes",
		},
		[]string{"processor", "status"}, // success / skipped / error
	)

	ProcessorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "supportgraph",
			Name:      "processor_duration_seconds",
			Help:      "Per-entity processor execution time in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"processor"},
	)

	TurnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "supportgraph",
			Name:      "turn_duration_seconds",
			Help:      "Wall time of one pipeline turn",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supportgraph",
			Name:      "jobs_total",
			Help:      "Finished jobs by final status",
		},
		[]string{"status"},
	)

	IdempotencyChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "supportgraph",
			Name:      "idempotency_checks_total",
			Help:      "Idempotency lookups by outcome",
		},
		[]string{"result"}, // "hit" / "miss" / "error"
	)

	SimilarityCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "supportgraph",
			Name:      "similarity_candidates",
			Help:      "Ranked candidates returned per similarity query",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(ProcessorResultsTotal)
	prometheus.MustRegister(ProcessorDuration)
	prometheus.MustRegister(TurnDuration)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(IdempotencyChecksTotal)
	prometheus.MustRegister(SimilarityCandidates)
	pipelineMetricsRegistered = true
}

// ObserveProcessor records one per-entity processor outcome.
func ObserveProcessor(processor, status string, d time.Duration) {
	ProcessorResultsTotal.WithLabelValues(processor, status).Inc()
	ProcessorDuration.WithLabelValues(processor).Observe(d.Seconds())
}
