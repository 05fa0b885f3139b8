package exec

import (
	"context"
	"log/slog"

	"github.com/haasonsaas/conduit/pkg/metrics"
	"github.com/haasonsaas/conduit/pkg/trace"
)

// TurnSink persists a finished turn. Satisfied by internal/store.TraceStore.
type TurnSink interface {
	SaveTrace(ctx context.Context, tr *trace.Trace) error
	SaveMetrics(ctx context.Context, m *metrics.AgentMetrics) error
}

// TraceExporter mirrors a finished trace to an external collector. Satisfied
// by internal/observability.Exporter.
type TraceExporter interface {
	ExportTrace(ctx context.Context, tr *trace.Trace)
}

// Recorder finalizes conversation turns: it closes the root span, finalizes
// the collector, persists the trace and metrics, and mirrors the trace to
// OTLP when an exporter is configured.
type Recorder struct {
	Store    TurnSink
	Exporter TraceExporter
	Logger   *slog.Logger
}

// BeginTurn creates the per-turn tracer and collector pair.
func (r *Recorder) BeginTurn(conversationID, sessionID string, enabled bool, prices metrics.PriceTable) Turn {
	return Turn{
		Tracer:    trace.NewTracer(conversationID, sessionID, enabled),
		Collector: metrics.NewCollector(conversationID, sessionID, enabled, prices),
	}
}

// FinishTurn ends the turn and flushes it. An abandoned turn that never
// reaches FinishTurn leaves no record. Persistence failures log and degrade;
// the turn's result has already been delivered to the caller.
func (r *Recorder) FinishTurn(ctx context.Context, turn Turn, status trace.SpanStatus) *trace.Trace {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var m *metrics.AgentMetrics
	if turn.Collector != nil {
		m = turn.Collector.Finalize()
	}
	if turn.Tracer == nil {
		return nil
	}
	turn.Tracer.EndActiveSpan(status)
	tr := turn.Tracer.GetTrace(m)
	if tr == nil {
		return nil
	}

	if r.Store != nil {
		if err := r.Store.SaveTrace(ctx, tr); err != nil {
			logger.Warn("trace persist failed", "trace_id", tr.TraceID, "error", err)
		}
		if m != nil {
			if err := r.Store.SaveMetrics(ctx, m); err != nil {
				logger.Warn("metrics persist failed", "conversation_id", m.ConversationID, "error", err)
			}
		}
	}
	if r.Exporter != nil {
		r.Exporter.ExportTrace(ctx, tr)
	}
	return tr
}
