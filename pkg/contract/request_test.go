package contract

import (
	"strings"
	"testing"
)

func validRequest() *ToolInvocationRequest {
	return &ToolInvocationRequest{
		ToolCallID:      "toolu_01",
		ToolName:        "query_database",
		ToolVersion:     "1.0",
		Parameters:      map[string]any{"sql": "SELECT 1"},
		TimeoutMs:       30000,
		CachePolicy:     PolicyTTLShort,
		CallerID:        "user-1",
		PermissionLevel: "read",
	}
}

func TestRequestValidate(t *testing.T) {
	t.Run("accepts well-formed request", func(t *testing.T) {
		if err := validRequest().Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("rejects empty tool_call_id", func(t *testing.T) {
		req := validRequest()
		req.ToolCallID = "  "
		err := req.Validate()
		if err == nil {
			t.Fatal("expected validation error")
		}
		if KindOf(err) != ErrValidation {
			t.Errorf("expected validation kind, got %v", KindOf(err))
		}
	})

	t.Run("rejects empty tool_name", func(t *testing.T) {
		req := validRequest()
		req.ToolName = ""
		if req.Validate() == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("rejects timeout below minimum", func(t *testing.T) {
		req := validRequest()
		req.TimeoutMs = 99
		if req.Validate() == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("rejects timeout above maximum", func(t *testing.T) {
		req := validRequest()
		req.TimeoutMs = 600001
		if req.Validate() == nil {
			t.Fatal("expected validation error")
		}
	})

	t.Run("accepts timeout boundaries", func(t *testing.T) {
		for _, ms := range []int64{100, 600000} {
			req := validRequest()
			req.TimeoutMs = ms
			if err := req.Validate(); err != nil {
				t.Errorf("timeout %d: unexpected error: %v", ms, err)
			}
		}
	})

	t.Run("rejects unknown cache policy", func(t *testing.T) {
		req := validRequest()
		req.CachePolicy = "forever"
		if req.Validate() == nil {
			t.Fatal("expected validation error")
		}
	})
}

func TestIdempotencyKey(t *testing.T) {
	t.Run("excludes tool_call_id", func(t *testing.T) {
		a := validRequest()
		b := validRequest()
		b.ToolCallID = "toolu_02"
		if a.IdempotencyKey() != b.IdempotencyKey() {
			t.Error("requests differing only in tool_call_id must share a key")
		}
	})

	t.Run("is insensitive to parameter insertion order", func(t *testing.T) {
		a := IdempotencyKey("t", "1", map[string]any{"a": 1, "b": 2}, "c", "p")
		b := IdempotencyKey("t", "1", map[string]any{"b": 2, "a": 1}, "c", "p")
		if a != b {
			t.Error("parameter order must not change the key")
		}
	})

	t.Run("differs by caller", func(t *testing.T) {
		a := validRequest()
		b := validRequest()
		b.CallerID = "user-2"
		if a.IdempotencyKey() == b.IdempotencyKey() {
			t.Error("different callers must derive different keys")
		}
	})

	t.Run("differs by permission level", func(t *testing.T) {
		a := validRequest()
		b := validRequest()
		b.PermissionLevel = "admin"
		if a.IdempotencyKey() == b.IdempotencyKey() {
			t.Error("different permission levels must derive different keys")
		}
	})

	t.Run("differs by tool version", func(t *testing.T) {
		a := validRequest()
		b := validRequest()
		b.ToolVersion = "2.0"
		if a.IdempotencyKey() == b.IdempotencyKey() {
			t.Error("different versions must derive different keys")
		}
	})

	t.Run("is a 128-bit hex digest", func(t *testing.T) {
		key := validRequest().IdempotencyKey()
		if len(key) != 32 {
			t.Errorf("expected 32 hex chars, got %d", len(key))
		}
		if strings.ToLower(key) != key {
			t.Error("expected lowercase hex")
		}
	})
}

func TestCachePolicy(t *testing.T) {
	cases := []struct {
		policy    CachePolicy
		ttlSec    int64
		cacheable bool
	}{
		{PolicyNoCache, 0, false},
		{PolicyCacheable, 0, true},
		{PolicyTTLShort, 300, true},
		{PolicyTTLMedium, 3600, true},
		{PolicyTTLLong, 86400, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.policy), func(t *testing.T) {
			if got := int64(tc.policy.TTL().Seconds()); got != tc.ttlSec {
				t.Errorf("TTL: expected %ds, got %ds", tc.ttlSec, got)
			}
			if tc.policy.Cacheable() != tc.cacheable {
				t.Errorf("Cacheable: expected %v", tc.cacheable)
			}
		})
	}

	t.Run("empty policy defaults to no_cache", func(t *testing.T) {
		req := validRequest()
		req.CachePolicy = ""
		if req.Policy() != PolicyNoCache {
			t.Errorf("expected no_cache, got %s", req.Policy())
		}
	})
}
