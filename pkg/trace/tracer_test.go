package trace

import (
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/conduit/pkg/metrics"
)

func TestSpanLifecycle(t *testing.T) {
	t.Run("root span opens and ends", func(t *testing.T) {
		tr := NewTracer("conv-1", "sess-1", true)
		root := tr.StartRootSpan("turn", SpanAgentInvoke)
		if root == nil {
			t.Fatal("expected root span")
		}
		if !root.Open() {
			t.Error("new span must be open")
		}

		time.Sleep(10 * time.Millisecond)
		tr.EndSpan(root, StatusSuccess)

		if root.Open() {
			t.Error("ended span must not be open")
		}
		if root.Status != StatusSuccess {
			t.Errorf("status wrong: %s", root.Status)
		}
		if root.DurationMs < 5 {
			t.Errorf("duration not stamped: %d", root.DurationMs)
		}
		want := root.EndTime.Sub(root.StartTime).Milliseconds()
		if root.DurationMs != want {
			t.Errorf("duration %d != end-start %d", root.DurationMs, want)
		}
	})

	t.Run("ending twice is a no-op", func(t *testing.T) {
		tr := NewTracer("conv-1", "sess-1", true)
		root := tr.StartRootSpan("turn", SpanAgentInvoke)
		tr.EndSpan(root, StatusSuccess)
		end := *root.EndTime
		tr.EndSpan(root, StatusError)
		if root.Status != StatusSuccess || !root.EndTime.Equal(end) {
			t.Error("second end must not overwrite the first")
		}
	})
}

func TestSpanStack(t *testing.T) {
	t.Run("nil parent defaults to top of stack", func(t *testing.T) {
		tr := NewTracer("conv-1", "sess-1", true)
		root := tr.StartRootSpan("turn", SpanAgentInvoke)
		llm := tr.StartSpan("llm", SpanLLMCall, nil)
		tool := tr.StartSpan("tool", SpanToolCall, nil)

		if llm.ParentSpanID != root.SpanID {
			t.Error("llm span must parent to root")
		}
		if tool.ParentSpanID != llm.SpanID {
			t.Error("tool span must parent to llm span")
		}
		if len(root.Children) != 1 || len(llm.Children) != 1 {
			t.Error("children must link in call order")
		}
	})

	t.Run("explicit parent wins", func(t *testing.T) {
		tr := NewTracer("conv-1", "sess-1", true)
		root := tr.StartRootSpan("turn", SpanAgentInvoke)
		tr.StartSpan("llm", SpanLLMCall, nil)
		side := tr.StartSpan("side", SpanCustom, root)
		if side.ParentSpanID != root.SpanID {
			t.Error("explicit parent ignored")
		}
	})

	t.Run("ending the top span pops the stack", func(t *testing.T) {
		tr := NewTracer("conv-1", "sess-1", true)
		root := tr.StartRootSpan("turn", SpanAgentInvoke)
		child := tr.StartSpan("child", SpanToolCall, nil)

		tr.EndSpan(child, StatusSuccess)
		if tr.ActiveSpan() != root {
			t.Error("expected root back on top after child ends")
		}
	})

	t.Run("ending a non-top span leaves the stack as-is", func(t *testing.T) {
		tr := NewTracer("conv-1", "sess-1", true)
		tr.StartRootSpan("turn", SpanAgentInvoke)
		mid := tr.StartSpan("mid", SpanCustom, nil)
		top := tr.StartSpan("top", SpanToolCall, nil)

		tr.EndSpan(mid, StatusError)
		if tr.ActiveSpan() != top {
			t.Error("ending a non-top span must not pop the stack")
		}
	})

	t.Run("end active span", func(t *testing.T) {
		tr := NewTracer("conv-1", "sess-1", true)
		tr.StartRootSpan("turn", SpanAgentInvoke)
		child := tr.StartSpan("child", SpanToolCall, nil)
		tr.EndActiveSpan(StatusCancelled)
		if child.Status != StatusCancelled {
			t.Error("active span not ended")
		}
	})

	t.Run("nil parent after root ended attaches to root", func(t *testing.T) {
		tr := NewTracer("conv-1", "sess-1", true)
		root := tr.StartRootSpan("turn", SpanAgentInvoke)
		tr.EndSpan(root, StatusSuccess)

		late := tr.StartSpan("tool", SpanToolCall, nil)
		if late == nil {
			t.Fatal("span must still start after the root has ended")
		}
		if late.ParentSpanID != root.SpanID {
			t.Error("span started after root ended must parent to root")
		}
		if len(root.Children) != 1 || root.Children[0] != late {
			t.Error("late span must link under the root")
		}
	})

	t.Run("first span becomes root when none exists", func(t *testing.T) {
		tr := NewTracer("conv-1", "sess-1", true)
		s := tr.StartSpan("implicit", SpanCustom, nil)
		if s.ParentSpanID != "" {
			t.Error("implicit root must have no parent")
		}
		if tr.GetTrace(nil).RootSpan != s {
			t.Error("implicit root must anchor the trace")
		}
	})
}

func TestSpanTreeIntegrity(t *testing.T) {
	tr := NewTracer("conv-1", "sess-1", true)
	tr.StartRootSpan("turn", SpanAgentInvoke)
	for i := 0; i < 3; i++ {
		tr.StartSpan("llm", SpanLLMCall, nil)
		tr.StartSpan("tool", SpanToolCall, nil)
		tr.EndActiveSpan(StatusSuccess)
		tr.EndActiveSpan(StatusSuccess)
	}
	tr.EndActiveSpan(StatusSuccess)

	tree := tr.GetTrace(nil)
	ids := map[string]bool{tree.RootSpan.SpanID: true}
	var walk func(s *Span)
	var bad int
	walk = func(s *Span) {
		for _, c := range s.Children {
			if !ids[c.ParentSpanID] {
				bad++
			}
			ids[c.SpanID] = true
			walk(c)
		}
	}
	walk(tree.RootSpan)
	if bad != 0 {
		t.Errorf("%d spans with dangling parent ids", bad)
	}
}

func TestEvents(t *testing.T) {
	tr := NewTracer("conv-1", "sess-1", true)
	tr.StartRootSpan("turn", SpanAgentInvoke)
	span := tr.StartSpan("tool", SpanToolCall, nil)

	tr.AddEvent("cache_hit", map[string]any{"key": "abc"}, nil)
	tr.AddEvent("retry", nil, span)

	if len(span.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(span.Events))
	}
	if span.Events[0].Name != "cache_hit" {
		t.Errorf("event order wrong: %+v", span.Events)
	}
}

func TestGetTrace(t *testing.T) {
	t.Run("nil until a root exists", func(t *testing.T) {
		tr := NewTracer("conv-1", "sess-1", true)
		if tr.GetTrace(nil) != nil {
			t.Error("expected nil trace before root span")
		}
	})

	t.Run("carries ids and metrics", func(t *testing.T) {
		tr := NewTracer("conv-1", "sess-1", true)
		tr.StartRootSpan("turn", SpanAgentInvoke)
		c := metrics.NewCollector("conv-1", "sess-1", true, nil)
		c.RecordToolCall("query_database", 5, true, 0, 0)

		got := tr.GetTrace(c.Finalize())
		if got.ConversationID != "conv-1" || got.SessionID != "sess-1" {
			t.Errorf("trace ids wrong: %+v", got)
		}
		if got.Metrics == nil || got.Metrics.ToolCallsCount != 1 {
			t.Error("metrics not attached")
		}
	})
}

func TestDisabledTracer(t *testing.T) {
	tr := NewTracer("conv-1", "sess-1", false)
	if tr.StartRootSpan("turn", SpanAgentInvoke) != nil {
		t.Error("disabled tracer must return nil spans")
	}
	if tr.StartSpan("x", SpanCustom, nil) != nil {
		t.Error("disabled tracer must return nil spans")
	}
	tr.AddEvent("noop", nil, nil)
	tr.EndActiveSpan(StatusSuccess)
	if tr.GetTrace(nil) != nil {
		t.Error("disabled tracer must have no trace")
	}
}

func TestRenderFlow(t *testing.T) {
	tr := NewTracer("conv-1", "sess-1", true)
	tr.StartRootSpan("turn", SpanAgentInvoke)
	tr.StartSpan("query_database", SpanToolCall, nil)
	tr.EndActiveSpan(StatusSuccess)
	tr.EndActiveSpan(StatusSuccess)

	out := RenderFlow(tr.GetTrace(nil))
	if !strings.HasPrefix(out, "flowchart TD") {
		t.Errorf("unexpected rendering: %q", out)
	}
	if !strings.Contains(out, "query_database") {
		t.Error("tool span missing from flow")
	}
	if !strings.Contains(out, "n0 --> n1") {
		t.Errorf("parent edge missing:\n%s", out)
	}

	if RenderFlow(nil) != "" {
		t.Error("nil trace must render empty")
	}
}
