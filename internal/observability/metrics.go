package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide Prometheus surface for the subsystem. This is
// distinct from the per-conversation metrics collector: these counters
// aggregate across all conversations for the lifetime of the process and are
// scraped from /metrics.
type Metrics struct {
	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolErrorCounter tracks tool failures by error type.
	// Labels: tool_name, error_type (timeout|validation|security|tool)
	ToolErrorCounter *prometheus.CounterVec

	// CacheOpsCounter counts idempotency cache operations.
	// Labels: op (hit|miss|store|evict|expire)
	CacheOpsCounter *prometheus.CounterVec

	// ArtifactOpsCounter counts artifact store operations.
	// Labels: op (store|retrieve|delete|reject), status (success|error)
	ArtifactOpsCounter *prometheus.CounterVec

	// ArtifactBytes tracks bytes written to the artifact store.
	ArtifactBytes prometheus.Counter

	// StoreWriteCounter counts trace/metrics persistence writes.
	// Labels: kind (trace|metrics), status (success|error)
	StoreWriteCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics with reg, or with
// the default registry when reg is nil. Call once per process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	if reg == nil {
		factory = promauto.With(prometheus.DefaultRegisterer)
	}

	return &Metrics{
		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conduit_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		ToolErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_tool_errors_total",
				Help: "Total number of tool failures by tool name and error type",
			},
			[]string{"tool_name", "error_type"},
		),
		CacheOpsCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_cache_ops_total",
				Help: "Idempotency cache operations by kind",
			},
			[]string{"op"},
		),
		ArtifactOpsCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_artifact_ops_total",
				Help: "Artifact store operations by kind and status",
			},
			[]string{"op", "status"},
		),
		ArtifactBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "conduit_artifact_bytes_total",
				Help: "Total bytes written to the artifact store",
			},
		),
		StoreWriteCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conduit_store_writes_total",
				Help: "Trace and metrics persistence writes by kind and status",
			},
			[]string{"kind", "status"},
		),
	}
}

// RecordToolExecution records one tool invocation outcome.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordToolError records a classified tool failure.
func (m *Metrics) RecordToolError(toolName, errorType string) {
	m.ToolErrorCounter.WithLabelValues(toolName, errorType).Inc()
}

// RecordCacheOp records an idempotency cache operation.
func (m *Metrics) RecordCacheOp(op string) {
	m.CacheOpsCounter.WithLabelValues(op).Inc()
}

// RecordArtifactOp records an artifact store operation.
func (m *Metrics) RecordArtifactOp(op, status string) {
	m.ArtifactOpsCounter.WithLabelValues(op, status).Inc()
}

// RecordArtifactWrite records bytes written to the artifact store.
func (m *Metrics) RecordArtifactWrite(sizeBytes int64) {
	m.ArtifactOpsCounter.WithLabelValues("store", "success").Inc()
	m.ArtifactBytes.Add(float64(sizeBytes))
}

// RecordStoreWrite records a trace or metrics persistence write.
func (m *Metrics) RecordStoreWrite(kind, status string) {
	m.StoreWriteCounter.WithLabelValues(kind, status).Inc()
}
