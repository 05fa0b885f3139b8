// Package trace builds a tree of timed spans for a single conversation turn.
//
// One tracer is created per turn. Spans form a stack: creating a span pushes
// it, ending the top span pops it, and ending a non-top span leaves the stack
// untouched (callers are responsible for well-nested open/close order). All
// mutation goes through the tracer's mutex, but the tracer provides no
// cross-goroutine ordering guarantee beyond that.
package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/conduit/pkg/metrics"
)

// Trace is the finalized record of a conversation turn: the span tree plus
// the turn's aggregate metrics. Immutable once built.
type Trace struct {
	TraceID        string                `json:"trace_id"`
	ConversationID string                `json:"conversation_id"`
	SessionID      string                `json:"session_id"`
	RootSpan       *Span                 `json:"root_span"`
	Metrics        *metrics.AgentMetrics `json:"metrics,omitempty"`
}

// Tracer records spans for one conversation turn. A disabled tracer turns
// every call into a no-op returning nil; that is the sampling/opt-out
// mechanism, with no overhead beyond the boolean check.
type Tracer struct {
	mu             sync.Mutex
	enabled        bool
	traceID        string
	conversationID string
	sessionID      string
	root           *Span
	stack          []*Span
}

// NewTracer creates a tracer scoped to a conversation and session.
func NewTracer(conversationID, sessionID string, enabled bool) *Tracer {
	return &Tracer{
		enabled:        enabled,
		traceID:        uuid.NewString(),
		conversationID: conversationID,
		sessionID:      sessionID,
	}
}

// Enabled reports whether the tracer records spans.
func (t *Tracer) Enabled() bool {
	return t.enabled
}

// TraceID returns the turn's trace identifier.
func (t *Tracer) TraceID() string {
	return t.traceID
}

// StartRootSpan opens the root span and pushes it onto the span stack.
// Returns nil on a disabled tracer.
func (t *Tracer) StartRootSpan(name string, typ SpanType) *Span {
	if !t.enabled {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	span := t.newSpan(name, typ, "")
	t.root = span
	t.stack = []*Span{span}
	return span
}

// StartSpan opens a child span. A nil parent defaults to the top of the span
// stack, or to the root when every open span has ended; with no root yet, the
// new span becomes the root. The span is linked
// as a child of its parent and pushed onto the stack.
func (t *Tracer) StartSpan(name string, typ SpanType, parent *Span) *Span {
	if !t.enabled {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.root == nil {
		span := t.newSpan(name, typ, "")
		t.root = span
		t.stack = []*Span{span}
		return span
	}

	if parent == nil {
		if len(t.stack) > 0 {
			parent = t.stack[len(t.stack)-1]
		} else {
			// Every open span has ended; attach to the root.
			parent = t.root
		}
	}
	span := t.newSpan(name, typ, parent.SpanID)
	parent.Children = append(parent.Children, span)
	t.stack = append(t.stack, span)
	return span
}

func (t *Tracer) newSpan(name string, typ SpanType, parentID string) *Span {
	return &Span{
		TraceID:      t.traceID,
		SpanID:       uuid.NewString(),
		ParentSpanID: parentID,
		Name:         name,
		Type:         typ,
		StartTime:    time.Now(),
		Status:       StatusUnknown,
	}
}

// EndSpan stamps the end time and duration on span. The stack pops only if
// the ended span is the top; ending a non-top span leaves the stack as-is.
func (t *Tracer) EndSpan(span *Span, status SpanStatus) {
	if !t.enabled || span == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLocked(span, status)
}

// EndActiveSpan ends the span at the top of the stack, if any.
func (t *Tracer) EndActiveSpan(status SpanStatus) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.stack) == 0 {
		return
	}
	t.endLocked(t.stack[len(t.stack)-1], status)
}

func (t *Tracer) endLocked(span *Span, status SpanStatus) {
	if span.EndTime != nil {
		return
	}
	now := time.Now()
	span.EndTime = &now
	span.DurationMs = now.Sub(span.StartTime).Milliseconds()
	span.Status = status

	if n := len(t.stack); n > 0 && t.stack[n-1] == span {
		t.stack = t.stack[:n-1]
	}
}

// ActiveSpan returns the span at the top of the stack, or nil.
func (t *Tracer) ActiveSpan() *Span {
	if !t.enabled {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.stack) == 0 {
		return nil
	}
	return t.stack[len(t.stack)-1]
}

// AddEvent appends a timestamped event to span, or to the current span when
// span is nil.
func (t *Tracer) AddEvent(name string, attrs map[string]any, span *Span) {
	if !t.enabled {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if span == nil {
		if len(t.stack) == 0 {
			return
		}
		span = t.stack[len(t.stack)-1]
	}
	span.Events = append(span.Events, Event{
		Timestamp:  time.Now(),
		Name:       name,
		Attributes: attrs,
	})
}

// GetTrace returns the trace with the given aggregate metrics attached, or
// nil until a root span exists.
func (t *Tracer) GetTrace(m *metrics.AgentMetrics) *Trace {
	if !t.enabled {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == nil {
		return nil
	}
	return &Trace{
		TraceID:        t.traceID,
		ConversationID: t.conversationID,
		SessionID:      t.sessionID,
		RootSpan:       t.root,
		Metrics:        m,
	}
}
