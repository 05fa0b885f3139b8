package contract

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Timeout bounds for a single tool invocation in milliseconds.
const (
	MinTimeoutMs = 100
	MaxTimeoutMs = 600000
)

// ToolInvocationRequest identifies a single tool call. It is built once per
// call by the agent loop, is immutable, and is discarded after the call
// completes. A retry builds a fresh request that derives the same
// idempotency key.
//
// ToolCallID must originate from the LLM's structured tool-call event. It is
// never generated locally and is excluded from the idempotency key, because a
// fresh one arrives on every round and would defeat cross-round reuse.
type ToolInvocationRequest struct {
	ToolCallID      string         `json:"tool_call_id"`
	ToolName        string         `json:"tool_name"`
	ToolVersion     string         `json:"tool_version"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	TimeoutMs       int64          `json:"timeout_ms"`
	MaxRetries      int            `json:"max_retries"`
	CachePolicy     CachePolicy    `json:"cache_policy"`
	CallerID        string         `json:"caller_id"`
	PermissionLevel string         `json:"permission_level"`
}

// Validate rejects malformed requests before any execution. Validation
// failures are never cached.
func (r *ToolInvocationRequest) Validate() error {
	if strings.TrimSpace(r.ToolCallID) == "" {
		return NewError(ErrValidation, "tool_call_id is required")
	}
	if strings.TrimSpace(r.ToolName) == "" {
		return NewError(ErrValidation, "tool_name is required")
	}
	if r.TimeoutMs < MinTimeoutMs || r.TimeoutMs > MaxTimeoutMs {
		return NewError(ErrValidation, "timeout_ms %d out of range [%d, %d]",
			r.TimeoutMs, MinTimeoutMs, MaxTimeoutMs)
	}
	if r.CachePolicy != "" && !r.CachePolicy.Valid() {
		return NewError(ErrValidation, "unknown cache policy %q", r.CachePolicy)
	}
	return nil
}

// Policy returns the effective cache policy, defaulting to no_cache.
func (r *ToolInvocationRequest) Policy() CachePolicy {
	if r.CachePolicy == "" {
		return PolicyNoCache
	}
	return r.CachePolicy
}

// IdempotencyKey derives the cache key from the call's semantic identity:
// tool, version, canonicalized parameters, caller, and permission level.
// Two requests with different ToolCallIDs but identical other fields derive
// the same key.
func (r *ToolInvocationRequest) IdempotencyKey() string {
	return IdempotencyKey(r.ToolName, r.ToolVersion, r.Parameters, r.CallerID, r.PermissionLevel)
}

// IdempotencyKey hashes the semantic identity of a call. MD5 is sufficient
// here: this is a cache key, not a security boundary.
func IdempotencyKey(toolName, toolVersion string, params map[string]any, callerID, permissionLevel string) string {
	var b strings.Builder
	b.WriteString(toolName)
	b.WriteByte(':')
	b.WriteString(toolVersion)
	b.WriteByte(':')
	b.WriteString(CanonicalParams(params))
	b.WriteByte(':')
	b.WriteString(callerID)
	b.WriteByte(':')
	b.WriteString(permissionLevel)

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// CanonicalParams renders parameters deterministically: keys sorted, values
// JSON-encoded (encoding/json already sorts nested map keys).
func CanonicalParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(params[k])
		if err != nil {
			v = []byte(fmt.Sprintf("%v", params[k]))
		}
		parts = append(parts, k+"="+string(v))
	}
	return strings.Join(parts, "&")
}
