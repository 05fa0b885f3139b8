package exec

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/haasonsaas/conduit/internal/store"
	"github.com/haasonsaas/conduit/pkg/trace"
)

func TestRecorderFinishTurnPersists(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	st, err := store.New(store.Options{Dir: t.TempDir(), DB: db, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}

	calls := 0
	e, _ := newTestExecutor(t, queryTool(&calls))
	rec := &Recorder{Store: st, Logger: testLogger()}
	ctx := context.Background()

	turn := rec.BeginTurn("conv-1", "sess-1", true, nil)
	turn.Tracer.StartRootSpan("agent_turn", trace.SpanAgentInvoke)
	turn.Collector.RecordLLMCall("claude-sonnet-4", 500, 100, 300, false)
	e.Execute(ctx, request("call-1"), turn)

	tr := rec.FinishTurn(ctx, turn, trace.StatusSuccess)
	if tr == nil {
		t.Fatal("FinishTurn returned nil for a turn with a root span")
	}
	if tr.RootSpan.EndTime == nil {
		t.Error("root span should be closed")
	}
	if tr.Metrics == nil || tr.Metrics.ToolCallsCount != 1 {
		t.Errorf("trace metrics = %+v, want 1 tool call", tr.Metrics)
	}

	loaded, err := st.LoadTrace(ctx, "conv-1")
	if err != nil || loaded == nil {
		t.Fatalf("LoadTrace = (%v, %v), want persisted trace", loaded, err)
	}
	m, err := st.GetMetrics(ctx, "conv-1")
	if err != nil || m == nil {
		t.Fatalf("GetMetrics = (%v, %v), want persisted metrics", m, err)
	}
	if m.TotalTokens != 600 {
		t.Errorf("TotalTokens = %d, want 600", m.TotalTokens)
	}
}

func TestRecorderAbandonedTurnLeavesNoRecord(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	st, err := store.New(store.Options{Dir: t.TempDir(), DB: db, Logger: testLogger()})
	if err != nil {
		t.Fatal(err)
	}

	rec := &Recorder{Store: st, Logger: testLogger()}
	turn := rec.BeginTurn("conv-x", "sess-x", true, nil)
	// no root span was ever opened
	if tr := rec.FinishTurn(context.Background(), turn, trace.StatusCancelled); tr != nil {
		t.Errorf("FinishTurn = %+v, want nil without a root span", tr)
	}
	loaded, err := st.LoadTrace(context.Background(), "conv-x")
	if err != nil || loaded != nil {
		t.Errorf("LoadTrace = (%v, %v), want no record", loaded, err)
	}
}

func TestRecorderDisabledTurn(t *testing.T) {
	rec := &Recorder{Logger: testLogger()}
	turn := rec.BeginTurn("conv-d", "sess-d", false, nil)
	if turn.Tracer.StartRootSpan("agent_turn", trace.SpanAgentInvoke) != nil {
		t.Error("disabled tracer should return nil spans")
	}
	if tr := rec.FinishTurn(context.Background(), turn, trace.StatusSuccess); tr != nil {
		t.Errorf("disabled turn produced a trace: %+v", tr)
	}
}
