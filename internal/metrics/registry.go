package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric definitions for the posture engine.

var (
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpe",
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Total number of multi-framework analyses executed",
		},
		[]string{"status"},
	)

	analysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cpe",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "End-to-end multi-framework analysis duration",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.5m
		},
	)

	frameworkExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpe",
			Subsystem: "framework",
			Name:      "executions_total",
			Help:      "Total number of framework executions",
		},
		[]string{"framework_id", "status"},
	)

	ruleDispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cpe",
			Subsystem: "rule",
			Name:      "dispatch_duration_seconds",
			Help:      "Rule dispatch duration by backend kind",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
		[]string{"kind"},
	)

	ruleDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpe",
			Subsystem: "rule",
			Name:      "dispatch_total",
			Help:      "Total number of rule dispatches",
		},
		[]string{"kind", "status"},
	)

	findingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpe",
			Subsystem: "rule",
			Name:      "findings_total",
			Help:      "Total number of findings produced",
		},
		[]string{"severity"},
	)

	aiResponseParseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cpe",
			Subsystem: "ai",
			Name:      "response_parse_failures_total",
			Help:      "Model responses that contained no parseable findings array",
		},
	)
)

// Handler returns the Prometheus metrics handler for the optional debug
// listener.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAnalysis records a completed multi-framework analysis.
func RecordAnalysis(status string, duration time.Duration) {
	analysesTotal.WithLabelValues(status).Inc()
	analysisDuration.Observe(duration.Seconds())
}

// RecordFrameworkExecution records one framework execution outcome.
func RecordFrameworkExecution(frameworkID, status string) {
	frameworkExecutions.WithLabelValues(frameworkID, status).Inc()
}

// RecordRuleDispatch records a rule dispatch outcome.
func RecordRuleDispatch(kind, status string, duration time.Duration) {
	ruleDispatchDuration.WithLabelValues(kind).Observe(duration.Seconds())
	ruleDispatchTotal.WithLabelValues(kind, status).Inc()
}

// RecordFinding records a produced finding by severity.
func RecordFinding(severity string) {
	findingsTotal.WithLabelValues(severity).Inc()
}

// RecordAIParseFailure records a model response with no findings array.
func RecordAIParseFailure() {
	aiResponseParseFailures.Inc()
}
