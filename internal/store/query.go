package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/haasonsaas/conduit/pkg/metrics"
	"github.com/haasonsaas/conduit/pkg/trace"
)

// TraceSummary is one trace_index row: enough to render a listing without
// loading the trace document.
type TraceSummary struct {
	TraceID        string    `json:"trace_id"`
	ConversationID string    `json:"conversation_id"`
	SessionID      string    `json:"session_id"`
	StartTime      time.Time `json:"start_time"`
	DurationMs     int64     `json:"duration_ms"`
	Status         string    `json:"status"`
	TotalTokens    int64     `json:"total_tokens"`
	ToolCalls      int64     `json:"tool_calls"`
	Filename       string    `json:"filename"`
}

// ConversationSummary aggregates the traces recorded for one conversation.
type ConversationSummary struct {
	ConversationID  string    `json:"conversation_id"`
	SessionID       string    `json:"session_id"`
	StartTime       time.Time `json:"start_time"`
	TotalDurationMs int64     `json:"total_duration_ms"`
	TraceCount      int64     `json:"trace_count"`
	TotalTokens     int64     `json:"total_tokens"`
	ToolCalls       int64     `json:"tool_calls"`
}

// PerformanceSummary breaks a conversation's wall time into llm/tool/other
// shares, derived from the latest metrics snapshot.
type PerformanceSummary struct {
	ConversationID   string  `json:"conversation_id"`
	TotalDurationMs  int64   `json:"total_duration_ms"`
	LLMDurationMs    int64   `json:"llm_duration_ms"`
	ToolDurationMs   int64   `json:"tool_duration_ms"`
	OtherDurationMs  int64   `json:"other_duration_ms"`
	LLMPercent       float64 `json:"llm_percent"`
	ToolPercent      float64 `json:"tool_percent"`
	OtherPercent     float64 `json:"other_percent"`
	TotalTokens      int64   `json:"total_tokens"`
	ToolCallsCount   int64   `json:"tool_calls_count"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

const summaryColumns = `trace_id, conversation_id, session_id, start_time,
	duration_ms, status, total_tokens, tool_calls, filename`

// ByConversation returns the traces recorded for one conversation, oldest
// first.
func (s *TraceStore) ByConversation(ctx context.Context, conversationID string) ([]*TraceSummary, error) {
	return s.querySummaries(ctx, `
		SELECT `+summaryColumns+` FROM trace_index
		WHERE conversation_id = ? ORDER BY start_time ASC
	`, conversationID)
}

// BySession returns the traces recorded under one session, oldest first.
func (s *TraceStore) BySession(ctx context.Context, sessionID string) ([]*TraceSummary, error) {
	return s.querySummaries(ctx, `
		SELECT `+summaryColumns+` FROM trace_index
		WHERE session_id = ? ORDER BY start_time ASC
	`, sessionID)
}

// ByTimeRange returns traces whose start time falls in [from, to).
func (s *TraceStore) ByTimeRange(ctx context.Context, from, to time.Time) ([]*TraceSummary, error) {
	return s.querySummaries(ctx, `
		SELECT `+summaryColumns+` FROM trace_index
		WHERE start_time >= ? AND start_time < ? ORDER BY start_time ASC
	`, from.UTC(), to.UTC())
}

// Recent returns the most recently started traces, newest first.
func (s *TraceStore) Recent(ctx context.Context, limit int) ([]*TraceSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.querySummaries(ctx, `
		SELECT `+summaryColumns+` FROM trace_index
		ORDER BY start_time DESC LIMIT ?
	`, limit)
}

// ListConversations aggregates traces per conversation, newest first. An
// empty sessionID lists across all sessions.
func (s *TraceStore) ListConversations(ctx context.Context, sessionID string, limit int) ([]*ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	// Aggregate expressions lose the declared column type, so MIN(start_time)
	// would come back as text. Join the aggregate back to its source row and
	// scan start_time as a real column instead.
	query := `
		SELECT i.conversation_id, i.session_id, i.start_time, agg.total_ms,
			agg.trace_count, agg.total_tokens, agg.tool_calls
		FROM trace_index i
		JOIN (
			SELECT conversation_id, session_id, MIN(start_time) AS min_start,
				SUM(duration_ms) AS total_ms, COUNT(*) AS trace_count,
				SUM(total_tokens) AS total_tokens, SUM(tool_calls) AS tool_calls
			FROM trace_index
	`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += `
			GROUP BY conversation_id, session_id
		) agg ON i.conversation_id = agg.conversation_id
			AND i.session_id = agg.session_id
			AND i.start_time = agg.min_start
		ORDER BY i.start_time DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []*ConversationSummary
	for rows.Next() {
		c := &ConversationSummary{}
		if err := rows.Scan(&c.ConversationID, &c.SessionID, &c.StartTime,
			&c.TotalDurationMs, &c.TraceCount, &c.TotalTokens, &c.ToolCalls); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}


// LoadTrace reads back the most recent trace document for a conversation.
// Returns (nil, nil) when the conversation has no recorded trace.
func (s *TraceStore) LoadTrace(ctx context.Context, conversationID string) (*trace.Trace, error) {
	var filename string
	err := s.db.QueryRowContext(ctx, `
		SELECT filename FROM trace_index
		WHERE conversation_id = ? ORDER BY start_time DESC LIMIT 1
	`, conversationID).Scan(&filename)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup trace file: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("read trace file %s: %w", filename, err)
	}
	tr := &trace.Trace{}
	if err := json.Unmarshal(data, tr); err != nil {
		return nil, fmt.Errorf("decode trace file %s: %w", filename, err)
	}
	return tr, nil
}

// GetMetrics returns the latest metrics snapshot recorded for a
// conversation, or (nil, nil) when none exists.
func (s *TraceStore) GetMetrics(ctx context.Context, conversationID string) (*metrics.AgentMetrics, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM metrics_index
		WHERE conversation_id = ? ORDER BY recorded_at DESC LIMIT 1
	`, conversationID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup metrics: %w", err)
	}

	m := &metrics.AgentMetrics{}
	if err := json.Unmarshal([]byte(payload), m); err != nil {
		return nil, fmt.Errorf("decode metrics payload: %w", err)
	}
	return m, nil
}

// GetPerformanceSummary derives the duration breakdown for a conversation
// from its latest metrics snapshot. Returns (nil, nil) when no metrics were
// recorded.
func (s *TraceStore) GetPerformanceSummary(ctx context.Context, conversationID string) (*PerformanceSummary, error) {
	m, err := s.GetMetrics(ctx, conversationID)
	if err != nil || m == nil {
		return nil, err
	}

	p := &PerformanceSummary{
		ConversationID:   conversationID,
		TotalDurationMs:  m.TotalDurationMs,
		LLMDurationMs:    m.LLMDurationMs,
		ToolDurationMs:   m.ToolDurationMs,
		OtherDurationMs:  m.OtherDurationMs,
		TotalTokens:      m.TotalTokens,
		ToolCallsCount:   m.ToolCallsCount,
		EstimatedCostUSD: m.EstimatedCostUSD,
	}
	if m.TotalDurationMs > 0 {
		total := float64(m.TotalDurationMs)
		p.LLMPercent = float64(m.LLMDurationMs) / total * 100
		p.ToolPercent = float64(m.ToolDurationMs) / total * 100
		p.OtherPercent = float64(m.OtherDurationMs) / total * 100
	}
	return p, nil
}

func (s *TraceStore) querySummaries(ctx context.Context, query string, args ...any) ([]*TraceSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trace index: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []*TraceSummary
	for rows.Next() {
		t := &TraceSummary{}
		if err := rows.Scan(&t.TraceID, &t.ConversationID, &t.SessionID, &t.StartTime,
			&t.DurationMs, &t.Status, &t.TotalTokens, &t.ToolCalls, &t.Filename); err != nil {
			return nil, fmt.Errorf("scan trace row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
