package contract

import (
	"fmt"
	"strings"
	"testing"
)

type fakeOffloader struct {
	calls int
	fail  bool
}

func (f *fakeOffloader) Offload(data []byte, toolName, summary string) (string, string, error) {
	f.calls++
	if f.fail {
		return "", "", fmt.Errorf("disk full")
	}
	return "artifact_0123456789abcdef",
		fmt.Sprintf("Stored artifact artifact_0123456789abcdef (%d bytes): %s", len(data), summary),
		nil
}

func TestFromRawDataBrief(t *testing.T) {
	req := validRequest()

	t.Run("prefers success field for maps", func(t *testing.T) {
		res := FromRawData(req, map[string]any{"success": true, "rows": 3}, OutputBrief, nil)
		if res.Observation != "success=true" {
			t.Errorf("unexpected observation: %q", res.Observation)
		}
	})

	t.Run("falls back to count field", func(t *testing.T) {
		res := FromRawData(req, map[string]any{"count": 7}, OutputBrief, nil)
		if res.Observation != "count=7" {
			t.Errorf("unexpected observation: %q", res.Observation)
		}
	})

	t.Run("truncates long scalars to 100 chars", func(t *testing.T) {
		res := FromRawData(req, strings.Repeat("x", 500), OutputBrief, nil)
		if len(res.Observation) != 103 { // 100 + "..."
			t.Errorf("expected truncation to 103 chars, got %d", len(res.Observation))
		}
	})

	t.Run("summarizes lists by count", func(t *testing.T) {
		res := FromRawData(req, []any{1, 2, 3}, OutputBrief, nil)
		if res.Observation != "3 items" {
			t.Errorf("unexpected observation: %q", res.Observation)
		}
	})
}

func TestFromRawDataStandard(t *testing.T) {
	req := validRequest()

	t.Run("caps map rendering at ten pairs", func(t *testing.T) {
		m := map[string]any{}
		for i := 0; i < 15; i++ {
			m[fmt.Sprintf("key%02d", i)] = i
		}
		res := FromRawData(req, m, OutputStandard, nil)
		if !strings.Contains(res.Observation, "5 more fields") {
			t.Errorf("expected overflow marker, got: %q", res.Observation)
		}
		if n := strings.Count(res.Observation, "key"); n != 10 {
			t.Errorf("expected 10 pairs, got %d", n)
		}
	})

	t.Run("truncates long values to 100 chars", func(t *testing.T) {
		res := FromRawData(req, map[string]any{"body": strings.Repeat("y", 400)}, OutputStandard, nil)
		if len(res.Observation) > 120 {
			t.Errorf("value not truncated: %d chars", len(res.Observation))
		}
	})

	t.Run("renders first list item and count", func(t *testing.T) {
		res := FromRawData(req, []any{"alpha", "beta"}, OutputStandard, nil)
		if res.Observation != "2 items, first: alpha" {
			t.Errorf("unexpected observation: %q", res.Observation)
		}
	})

	t.Run("truncates other payloads to 1000 chars", func(t *testing.T) {
		res := FromRawData(req, strings.Repeat("z", 3000), OutputStandard, nil)
		if len(res.Observation) != 1003 {
			t.Errorf("expected 1003 chars, got %d", len(res.Observation))
		}
	})
}

func TestFromRawDataFull(t *testing.T) {
	req := validRequest()

	t.Run("inlines small payloads", func(t *testing.T) {
		off := &fakeOffloader{}
		res := FromRawData(req, map[string]any{"rows": []any{1.0, 2.0}}, OutputFull, off)
		if off.calls != 0 {
			t.Error("small payload must not be offloaded")
		}
		if res.ArtifactID != "" {
			t.Error("no artifact expected")
		}
		if !strings.Contains(res.Observation, "rows") {
			t.Errorf("expected inlined payload, got: %q", res.Observation)
		}
	})

	t.Run("offloads payloads at the threshold", func(t *testing.T) {
		off := &fakeOffloader{}
		big := strings.Repeat("a", InlineThresholdBytes)
		res := FromRawData(req, big, OutputFull, off)
		if off.calls != 1 {
			t.Fatalf("expected one offload, got %d", off.calls)
		}
		if res.ArtifactID == "" {
			t.Error("expected artifact id")
		}
		if strings.Contains(res.Observation, big[:200]) {
			t.Error("observation must not inline the offloaded payload")
		}
	})

	t.Run("falls back to inlining when offload fails", func(t *testing.T) {
		off := &fakeOffloader{fail: true}
		big := strings.Repeat("b", InlineThresholdBytes)
		res := FromRawData(req, big, OutputFull, off)
		if res.ArtifactID != "" {
			t.Error("failed offload must not set artifact id")
		}
		if !res.Success {
			t.Error("offload failure must not fail the result")
		}
	})

	t.Run("inlines without a configured offloader", func(t *testing.T) {
		big := strings.Repeat("c", InlineThresholdBytes)
		res := FromRawData(req, big, OutputFull, nil)
		if res.Observation != big {
			t.Error("expected full inline payload")
		}
	})
}

func TestFromRawDataMetadata(t *testing.T) {
	req := validRequest()

	t.Run("computes size and hash at every level", func(t *testing.T) {
		for _, level := range []OutputLevel{OutputBrief, OutputStandard, OutputFull} {
			res := FromRawData(req, "hello", level, nil)
			if res.DataSizeBytes != 5 {
				t.Errorf("%s: expected size 5, got %d", level, res.DataSizeBytes)
			}
			if len(res.DataHash) != 64 {
				t.Errorf("%s: expected sha256 hex hash, got %q", level, res.DataHash)
			}
		}
	})

	t.Run("identical payloads hash identically", func(t *testing.T) {
		a := FromRawData(req, map[string]any{"x": 1}, OutputBrief, nil)
		b := FromRawData(req, map[string]any{"x": 1}, OutputFull, nil)
		if a.DataHash != b.DataHash {
			t.Error("hash must depend only on payload")
		}
	})

	t.Run("stamps expiry from cache policy", func(t *testing.T) {
		res := FromRawData(req, "ok", OutputBrief, nil)
		if res.ExpiresAt.IsZero() {
			t.Error("ttl_short result must carry an expiry")
		}
		reqNC := validRequest()
		reqNC.CachePolicy = PolicyCacheable
		res = FromRawData(reqNC, "ok", OutputBrief, nil)
		if !res.ExpiresAt.IsZero() {
			t.Error("cacheable result must never expire")
		}
	})
}

func TestNewErrorResult(t *testing.T) {
	req := validRequest()
	res := NewErrorResult(req, ErrTimeout, "tool execution timed out after 30s")
	if res.Success {
		t.Error("error result must not be successful")
	}
	if res.ErrorType != "timeout" {
		t.Errorf("unexpected error type: %q", res.ErrorType)
	}
	if !strings.HasPrefix(res.Observation, "Error: ") {
		t.Errorf("observation must read as an error: %q", res.Observation)
	}
}
