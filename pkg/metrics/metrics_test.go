package metrics

import (
	"math"
	"testing"
)

func TestRecordLLMCall(t *testing.T) {
	t.Run("accumulates tokens and per-model breakdown", func(t *testing.T) {
		c := NewCollector("conv-1", "sess-1", true, nil)
		c.RecordLLMCall("claude-sonnet-4", 100, 50, 1200, false)
		c.RecordLLMCall("claude-sonnet-4", 200, 80, 800, false)
		c.RecordLLMCall("gpt-4o", 10, 5, 300, false)

		m := c.Finalize()
		if m.InputTokens != 310 || m.OutputTokens != 135 {
			t.Errorf("token totals wrong: %d/%d", m.InputTokens, m.OutputTokens)
		}
		if m.TotalTokens != 445 {
			t.Errorf("total tokens wrong: %d", m.TotalTokens)
		}
		sonnet := m.TokensByModel["claude-sonnet-4"]
		if sonnet.Input != 300 || sonnet.Output != 130 || sonnet.Calls != 2 {
			t.Errorf("per-model breakdown wrong: %+v", sonnet)
		}
		if m.LLMDurationMs != 2300 {
			t.Errorf("llm duration wrong: %d", m.LLMDurationMs)
		}
		if len(m.ModelsUsed) != 2 {
			t.Errorf("models used wrong: %v", m.ModelsUsed)
		}
	})

	t.Run("cached calls count calls but not billed tokens", func(t *testing.T) {
		c := NewCollector("conv-1", "sess-1", true, nil)
		c.RecordLLMCall("claude-sonnet-4", 100, 50, 10, true)
		m := c.Finalize()
		if m.TotalTokens != 0 {
			t.Errorf("cached call must not bill tokens, got %d", m.TotalTokens)
		}
		if m.TokensByModel["claude-sonnet-4"].Calls != 1 {
			t.Error("cached call must still count as a call")
		}
	})
}

func TestRecordToolCall(t *testing.T) {
	c := NewCollector("conv-1", "sess-1", true, nil)
	c.RecordToolCall("query_database", 100, true, 0, 20)
	c.RecordToolCall("query_database", 300, false, 0, 0)
	c.RecordToolCall("web_search", 50, true, 0, 10)

	m := c.Finalize()
	if m.ToolCallsCount != 3 || m.ToolErrors != 1 {
		t.Errorf("conversation counters wrong: calls=%d errors=%d", m.ToolCallsCount, m.ToolErrors)
	}
	if m.ToolDurationMs != 450 {
		t.Errorf("tool duration wrong: %d", m.ToolDurationMs)
	}

	db := m.ToolCalls["query_database"]
	if db.CallCount != 2 || db.SuccessCount != 1 || db.ErrorCount != 1 {
		t.Errorf("tool stats wrong: %+v", db)
	}
	if db.AvgDurationMs != 200 {
		t.Errorf("avg duration wrong: %v", db.AvgDurationMs)
	}
	if db.SuccessRate != 0.5 {
		t.Errorf("success rate wrong: %v", db.SuccessRate)
	}
}

func TestEstimatedCost(t *testing.T) {
	t.Run("one million tokens each way at 3/15", func(t *testing.T) {
		c := NewCollector("conv-1", "sess-1", true, nil)
		c.RecordLLMCall("claude-sonnet-4", 1_000_000, 1_000_000, 0, false)
		m := c.Finalize()
		if math.Abs(m.EstimatedCostUSD-18.0) > 1e-9 {
			t.Errorf("expected ~18.0 USD, got %v", m.EstimatedCostUSD)
		}
	})

	t.Run("unknown models use the default price", func(t *testing.T) {
		c := NewCollector("conv-1", "sess-1", true, nil)
		c.RecordLLMCall("mystery-model", 1_000_000, 0, 0, false)
		m := c.Finalize()
		want := DefaultPrices["default"].InputPerMillion
		if math.Abs(m.EstimatedCostUSD-want) > 1e-9 {
			t.Errorf("expected default pricing %v, got %v", want, m.EstimatedCostUSD)
		}
	})

	t.Run("custom price table overrides", func(t *testing.T) {
		prices := PriceTable{"default": {InputPerMillion: 1, OutputPerMillion: 2}}
		c := NewCollector("conv-1", "sess-1", true, prices)
		c.RecordLLMCall("anything", 2_000_000, 500_000, 0, false)
		m := c.Finalize()
		if math.Abs(m.EstimatedCostUSD-3.0) > 1e-9 {
			t.Errorf("expected 3.0 USD, got %v", m.EstimatedCostUSD)
		}
	})
}

func TestFinalize(t *testing.T) {
	t.Run("other duration never goes negative", func(t *testing.T) {
		c := NewCollector("conv-1", "sess-1", true, nil)
		c.RecordLLMCall("claude-sonnet-4", 1, 1, 1<<40, false)
		m := c.Finalize()
		if m.OtherDurationMs != 0 {
			t.Errorf("expected clamped other duration, got %d", m.OtherDurationMs)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		c := NewCollector("conv-1", "sess-1", true, nil)
		c.RecordLLMCall("claude-sonnet-4", 10, 10, 5, false)
		first := c.Finalize()
		second := c.Finalize()
		if first != second {
			t.Error("finalize must return the same document")
		}
	})
}

func TestDisabledCollector(t *testing.T) {
	c := NewCollector("conv-1", "sess-1", false, nil)
	c.RecordLLMCall("claude-sonnet-4", 100, 100, 10, false)
	c.RecordToolCall("query_database", 10, true, 0, 0)
	c.RecordMemoryFlush(map[string]any{"reason": "window"})
	c.RecordError(map[string]any{"kind": "timeout"})

	if m := c.Finalize(); m != nil {
		t.Errorf("disabled collector must finalize to nil, got %+v", m)
	}
}

func TestMetadataEvents(t *testing.T) {
	c := NewCollector("conv-1", "sess-1", true, nil)
	c.RecordMemoryFlush(map[string]any{"messages": 12})
	c.RecordError(map[string]any{"kind": "timeout", "tool": "web_search"})

	m := c.Finalize()
	if len(m.Metadata) != 2 {
		t.Fatalf("expected 2 metadata entries, got %d", len(m.Metadata))
	}
	if m.Metadata[0].Kind != "memory_flush" || m.Metadata[1].Kind != "error" {
		t.Errorf("metadata kinds wrong: %+v", m.Metadata)
	}
}
