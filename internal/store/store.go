// Package store persists finalized traces and metrics snapshots. Each trace
// is one JSON document written at turn end; metrics append as JSON lines to a
// per-session per-day file. A SQLite index mirrors the query fields so
// lookups never scan files.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/conduit/internal/observability"
	"github.com/haasonsaas/conduit/pkg/metrics"
	"github.com/haasonsaas/conduit/pkg/trace"
)

const (
	// DefaultTraceRetention bounds how long trace files and index rows are
	// kept before cleanup removes them.
	DefaultTraceRetention = 7 * 24 * time.Hour

	// DefaultMetricsRetention bounds metrics file and row retention.
	DefaultMetricsRetention = 30 * 24 * time.Hour

	traceFileFormat = "20060102_150405"
	metricsDayFmt   = "20060102"
)

// TraceStore writes trace documents and metrics lines under a base directory
// and maintains the SQLite index. The index is process-wide shared state;
// row-level consistency comes from the database engine.
type TraceStore struct {
	dir     string
	db      *sql.DB
	logger  *slog.Logger
	metrics *observability.Metrics

	// guards file appends to the per-session metrics files
	mu sync.Mutex
}

// Options configures a TraceStore.
type Options struct {
	Dir     string
	DB      *sql.DB
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// New creates a TraceStore rooted at opts.Dir, creating the directory and
// index schema as needed.
func New(opts Options) (*TraceStore, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if opts.DB == nil {
		return nil, fmt.Errorf("index db is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	s := &TraceStore{
		dir:     opts.Dir,
		db:      opts.DB,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if err := s.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TraceStore) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trace_index (
			trace_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			start_time TIMESTAMP NOT NULL,
			duration_ms INTEGER NOT NULL,
			status TEXT NOT NULL,
			total_tokens INTEGER NOT NULL,
			tool_calls INTEGER NOT NULL,
			filename TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trace_conversation ON trace_index(conversation_id);
		CREATE INDEX IF NOT EXISTS idx_trace_session ON trace_index(session_id);
		CREATE INDEX IF NOT EXISTS idx_trace_start ON trace_index(start_time);

		CREATE TABLE IF NOT EXISTS metrics_index (
			conversation_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL,
			filename TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (conversation_id, recorded_at)
		);
		CREATE INDEX IF NOT EXISTS idx_metrics_session ON metrics_index(session_id);
		CREATE INDEX IF NOT EXISTS idx_metrics_recorded ON metrics_index(recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("create index schema: %w", err)
	}
	return nil
}

// SaveTrace writes a finalized trace as one JSON document and indexes it.
// Traces without a root span are rejected; incomplete turns leave no record.
func (s *TraceStore) SaveTrace(ctx context.Context, tr *trace.Trace) error {
	if tr == nil || tr.RootSpan == nil {
		return fmt.Errorf("trace has no root span")
	}

	filename := fmt.Sprintf("trace_%s_%s.json",
		filenameComponent(tr.ConversationID), tr.RootSpan.StartTime.UTC().Format(traceFileFormat))
	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		s.countWrite("trace", "error")
		return fmt.Errorf("write trace file: %w", err)
	}

	var totalTokens, toolCalls int64
	if tr.Metrics != nil {
		totalTokens = tr.Metrics.TotalTokens
		toolCalls = tr.Metrics.ToolCallsCount
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trace_index (trace_id, conversation_id, session_id, start_time,
			duration_ms, status, total_tokens, tool_calls, filename)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trace_id) DO UPDATE SET
			duration_ms = excluded.duration_ms,
			status = excluded.status,
			total_tokens = excluded.total_tokens,
			tool_calls = excluded.tool_calls,
			filename = excluded.filename
	`, tr.TraceID, tr.ConversationID, tr.SessionID, tr.RootSpan.StartTime.UTC(),
		tr.RootSpan.DurationMs, string(tr.RootSpan.Status), totalTokens, toolCalls, filename)
	if err != nil {
		s.countWrite("trace", "error")
		return fmt.Errorf("index trace: %w", err)
	}

	s.countWrite("trace", "success")
	s.logger.Info("trace persisted",
		"trace_id", tr.TraceID,
		"conversation_id", tr.ConversationID,
		"file", filename)
	return nil
}

// SaveMetrics appends one finalized metrics snapshot to the session's daily
// JSONL file and indexes the payload for lookup by conversation.
func (s *TraceStore) SaveMetrics(ctx context.Context, m *metrics.AgentMetrics) error {
	if m == nil {
		return fmt.Errorf("metrics is nil")
	}

	now := time.Now().UTC()
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	filename := fmt.Sprintf("metrics_%s_%s.jsonl", filenameComponent(m.SessionID), now.Format(metricsDayFmt))

	s.mu.Lock()
	err = appendLine(filepath.Join(s.dir, filename), payload)
	s.mu.Unlock()
	if err != nil {
		s.countWrite("metrics", "error")
		return fmt.Errorf("append metrics line: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metrics_index (conversation_id, session_id, recorded_at, filename, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, recorded_at) DO UPDATE SET payload = excluded.payload
	`, m.ConversationID, m.SessionID, now, filename, string(payload))
	if err != nil {
		s.countWrite("metrics", "error")
		return fmt.Errorf("index metrics: %w", err)
	}

	s.countWrite("metrics", "success")
	return nil
}

// filenameComponent keeps caller-supplied IDs filesystem-safe before they
// become part of a filename: path separators and other hostile runes are
// replaced so an ID can never escape the store directory.
func filenameComponent(id string) string {
	if id == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			return r
		}
		return '-'
	}, id)
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}

func (s *TraceStore) countWrite(kind, status string) {
	if s.metrics != nil {
		s.metrics.RecordStoreWrite(kind, status)
	}
}
