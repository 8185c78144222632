package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

var (
	generationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsql_generation_total",
			Help: "Total number of SQL generations by source (model or fallback).",
		},
		[]string{"source"},
	)
	generationFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsql_generation_fallback_total",
			Help: "Total number of fallback generations by reason.",
		},
		[]string{"reason"},
	)
	generationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shopsql_generation_duration_seconds",
			Help:    "End-to-end SQL generation latency, including fallbacks.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsql_query_executions_total",
			Help: "Total number of SQL executions by status.",
		},
		[]string{"status"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shopsql_query_duration_seconds",
			Help:    "SQL execution latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
	modelReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shopsql_model_ready",
			Help: "1 when the inference engine holds a live model, 0 otherwise.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		generationTotal,
		generationFallbackTotal,
		generationDurationSeconds,
		queryExecutionsTotal,
		queryDurationSeconds,
		modelReady,
	)
}

// ObserveGeneration records one generate call. reason is ignored for model output.
func ObserveGeneration(source, reason string, elapsed time.Duration) {
	generationTotal.WithLabelValues(source).Inc()
	if source == SourceFallback {
		if reason == "" {
			reason = "unknown"
		}
		generationFallbackTotal.WithLabelValues(reason).Inc()
	}
	generationDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveQueryExecution(err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	queryExecutionsTotal.WithLabelValues(status).Inc()
	queryDurationSeconds.Observe(elapsed.Seconds())
}

func SetModelReady(ready bool) {
	if ready {
		modelReady.Set(1)
		return
	}
	modelReady.Set(0)
}
