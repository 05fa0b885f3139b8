package trace

import "time"

// SpanType classifies what a span measures.
type SpanType string

const (
	SpanAgentInvoke     SpanType = "agent_invoke"
	SpanLLMCall         SpanType = "llm_call"
	SpanToolCall        SpanType = "tool_call"
	SpanMemoryFlush     SpanType = "memory_flush"
	SpanSkillActivation SpanType = "skill_activation"
	SpanError           SpanType = "error"
	SpanCustom          SpanType = "custom"
)

// SpanStatus is the terminal state of a span.
type SpanStatus string

const (
	StatusSuccess   SpanStatus = "success"
	StatusError     SpanStatus = "error"
	StatusCancelled SpanStatus = "cancelled"
	StatusUnknown   SpanStatus = "unknown"
)

// Event is a timestamped annotation on a span.
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Span is a timed unit of work. A span is open while EndTime is nil; once
// ended, DurationMs = EndTime - StartTime. Children's time ranges are not
// required to nest (best-effort clock). A span is owned by the tracer that
// created it and must only be mutated through that tracer.
type Span struct {
	TraceID      string     `json:"trace_id"`
	SpanID       string     `json:"span_id"`
	ParentSpanID string     `json:"parent_span_id,omitempty"`
	Name         string     `json:"name"`
	Type         SpanType   `json:"span_type"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
	Status       SpanStatus `json:"status"`
	Events       []Event    `json:"events,omitempty"`
	Children     []*Span    `json:"children,omitempty"`
}

// Open reports whether the span has not ended yet.
func (s *Span) Open() bool {
	return s != nil && s.EndTime == nil
}
