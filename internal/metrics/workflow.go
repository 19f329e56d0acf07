package metrics

import "github.com/prometheus/client_golang/prometheus"

// Workflow and coordinator Prometheus metrics.
var (
	EventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfrag",
			Name:      "events_received_total",
			Help:      "Events accepted by the coordinator",
		},
		[]string{"event"},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfrag",
			Name:      "runs_total",
			Help:      "Finished runs by function and terminal status",
		},
		[]string{"function", "status"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Name:      "run_duration_seconds",
			Help:      "Run duration from start to terminal state",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"function"},
	)

	RunAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pdfrag",
			Name:      "run_attempts_total",
			Help:      "Handler invocations including retries",
		},
		[]string{"function"},
	)

	RunsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pdfrag",
			Name:      "runs_in_flight",
			Help:      "Runs currently executing",
		},
	)

	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Name:      "workflow_step_duration_seconds",
			Help:      "Duration of individual workflow steps",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"workflow", "step"},
	)

	ChunksIndexedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pdfrag",
			Name:      "chunks_indexed_total",
			Help:      "Chunks written to the vector index",
		},
	)
)

var workflowMetricsRegistered bool

// RegisterWorkflowMetrics registers coordinator and workflow metrics. Must be called once from main.
func RegisterWorkflowMetrics() {
	if workflowMetricsRegistered {
		return
	}
	prometheus.MustRegister(EventsReceivedTotal)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(RunAttemptsTotal)
	prometheus.MustRegister(RunsInFlight)
	prometheus.MustRegister(StepDuration)
	prometheus.MustRegister(ChunksIndexedTotal)
	workflowMetricsRegistered = true
}
