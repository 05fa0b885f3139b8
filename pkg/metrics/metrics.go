// Package metrics aggregates per-conversation token counts, tool statistics,
// and estimated cost. One collector is created per conversation turn and
// finalized once at turn end; the finalized AgentMetrics document is what the
// trace/metrics store persists.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// ToolCallStats aggregates calls to a single tool within one conversation.
type ToolCallStats struct {
	CallCount       int64   `json:"call_count"`
	SuccessCount    int64   `json:"success_count"`
	ErrorCount      int64   `json:"error_count"`
	TotalDurationMs int64   `json:"total_duration_ms"`
	AvgDurationMs   float64 `json:"avg_duration_ms"`
	SuccessRate     float64 `json:"success_rate"`
}

// ModelTokens is the per-model token breakdown.
type ModelTokens struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Calls  int64 `json:"calls"`
}

// MetadataEntry is a free-form structured event (memory flushes, errors)
// recorded alongside the aggregates rather than as first-class fields.
type MetadataEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Kind       string         `json:"kind"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// AgentMetrics is the per-conversation aggregate. It is mutated incrementally
// by the collector during the turn, then finalized exactly once.
type AgentMetrics struct {
	ConversationID string    `json:"conversation_id"`
	SessionID      string    `json:"session_id"`
	StartTime      time.Time `json:"start_time"`

	InputTokens   int64                   `json:"input_tokens"`
	OutputTokens  int64                   `json:"output_tokens"`
	TotalTokens   int64                   `json:"total_tokens"`
	TokensByModel map[string]*ModelTokens `json:"tokens_by_model,omitempty"`

	TotalDurationMs int64 `json:"total_duration_ms"`
	LLMDurationMs   int64 `json:"llm_duration_ms"`
	ToolDurationMs  int64 `json:"tool_duration_ms"`
	OtherDurationMs int64 `json:"other_duration_ms"`

	ToolCalls      map[string]*ToolCallStats `json:"tool_calls,omitempty"`
	ToolCallsCount int64                     `json:"tool_calls_count"`
	ToolErrors     int64                     `json:"tool_errors"`

	EstimatedCostUSD float64         `json:"estimated_cost_usd"`
	ModelsUsed       []string        `json:"models_used,omitempty"`
	Metadata         []MetadataEntry `json:"metadata,omitempty"`
}

// Collector accumulates AgentMetrics for one conversation turn. A disabled
// collector accepts every call as a no-op.
type Collector struct {
	mu        sync.Mutex
	enabled   bool
	finalized bool
	start     time.Time
	m         *AgentMetrics
	prices    PriceTable
}

// NewCollector creates a collector scoped to a conversation and session.
// A nil price table uses the default static pricing.
func NewCollector(conversationID, sessionID string, enabled bool, prices PriceTable) *Collector {
	if prices == nil {
		prices = DefaultPrices
	}
	now := time.Now()
	return &Collector{
		enabled: enabled,
		start:   now,
		prices:  prices,
		m: &AgentMetrics{
			ConversationID: conversationID,
			SessionID:      sessionID,
			StartTime:      now,
			TokensByModel:  make(map[string]*ModelTokens),
			ToolCalls:      make(map[string]*ToolCallStats),
		},
	}
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c.enabled
}

// RecordLLMCall accumulates token totals and the per-model breakdown. Cached
// calls count toward the model's call count but not toward billed tokens.
func (c *Collector) RecordLLMCall(model string, inputTokens, outputTokens, durationMs int64, cached bool) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	mt, ok := c.m.TokensByModel[model]
	if !ok {
		mt = &ModelTokens{}
		c.m.TokensByModel[model] = mt
	}
	mt.Calls++
	c.m.LLMDurationMs += durationMs

	if cached {
		return
	}
	mt.Input += inputTokens
	mt.Output += outputTokens
	c.m.InputTokens += inputTokens
	c.m.OutputTokens += outputTokens
	c.m.TotalTokens += inputTokens + outputTokens
}

// RecordToolCall increments the tool's stats and the conversation totals.
func (c *Collector) RecordToolCall(toolName string, durationMs int64, success bool, inputTokens, outputTokens int64) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.m.ToolCalls[toolName]
	if !ok {
		stats = &ToolCallStats{}
		c.m.ToolCalls[toolName] = stats
	}
	stats.CallCount++
	stats.TotalDurationMs += durationMs
	if success {
		stats.SuccessCount++
	} else {
		stats.ErrorCount++
		c.m.ToolErrors++
	}

	c.m.ToolCallsCount++
	c.m.ToolDurationMs += durationMs
	c.m.InputTokens += inputTokens
	c.m.OutputTokens += outputTokens
	c.m.TotalTokens += inputTokens + outputTokens
}

// RecordMemoryFlush appends a memory-flush event to the free-form metadata.
func (c *Collector) RecordMemoryFlush(attrs map[string]any) {
	c.appendMetadata("memory_flush", attrs)
}

// RecordError appends an error event to the free-form metadata.
func (c *Collector) RecordError(attrs map[string]any) {
	c.appendMetadata("error", attrs)
}

func (c *Collector) appendMetadata(kind string, attrs map[string]any) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.Metadata = append(c.m.Metadata, MetadataEntry{
		Timestamp:  time.Now(),
		Kind:       kind,
		Attributes: attrs,
	})
}

// Finalize computes the duration breakdown, derived tool statistics, and
// estimated cost, and returns the aggregate. Repeated calls return the same
// finalized document. Returns nil for a disabled collector.
func (c *Collector) Finalize() *AgentMetrics {
	if !c.enabled {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finalized {
		return c.m
	}
	c.finalized = true

	c.m.TotalDurationMs = time.Since(c.start).Milliseconds()
	other := c.m.TotalDurationMs - c.m.LLMDurationMs - c.m.ToolDurationMs
	if other < 0 {
		other = 0
	}
	c.m.OtherDurationMs = other

	for _, stats := range c.m.ToolCalls {
		if stats.CallCount > 0 {
			stats.AvgDurationMs = float64(stats.TotalDurationMs) / float64(stats.CallCount)
			stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.CallCount)
		}
	}

	models := make([]string, 0, len(c.m.TokensByModel))
	var cost float64
	for model, mt := range c.m.TokensByModel {
		models = append(models, model)
		price := c.prices.Lookup(model)
		cost += float64(mt.Input)/1e6*price.InputPerMillion +
			float64(mt.Output)/1e6*price.OutputPerMillion
	}
	sort.Strings(models)
	c.m.ModelsUsed = models
	c.m.EstimatedCostUSD = cost

	return c.m
}
