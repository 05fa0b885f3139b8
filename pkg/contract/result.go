package contract

import "time"

// ToolExecutionResult is the single outcome shape for every tool invocation,
// successful or not. Observation is the only field the LLM ever sees; a real
// file path, if any exists behind an artifact, is never part of this struct.
type ToolExecutionResult struct {
	ToolCallID    string      `json:"tool_call_id"`
	ToolName      string      `json:"tool_name"`
	Observation   string      `json:"observation"`
	OutputLevel   OutputLevel `json:"output_level"`
	Success       bool        `json:"success"`
	ErrorType     string      `json:"error_type,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	ArtifactID    string      `json:"artifact_id,omitempty"`
	DataSizeBytes int64       `json:"data_size_bytes"`
	DataHash      string      `json:"data_hash,omitempty"`
	DurationMs    int64       `json:"duration_ms"`
	RetryCount    int         `json:"retry_count"`
	CachePolicy   CachePolicy `json:"cache_policy"`
	CacheHit      bool        `json:"cache_hit,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	ExpiresAt     time.Time   `json:"expires_at,omitempty"`
}

// NewErrorResult builds a failure result. The observation the LLM sees reads
// "Error: <message>" and carries nothing else about the underlying failure.
func NewErrorResult(req *ToolInvocationRequest, kind ErrorKind, message string) *ToolExecutionResult {
	return &ToolExecutionResult{
		ToolCallID:   req.ToolCallID,
		ToolName:     req.ToolName,
		Observation:  "Error: " + message,
		OutputLevel:  OutputBrief,
		Success:      false,
		ErrorType:    string(kind),
		ErrorMessage: message,
		CachePolicy:  req.Policy(),
		CreatedAt:    time.Now(),
	}
}

// WithCacheHit returns a copy of the result annotated as served from cache.
// The stored entry itself is never mutated.
func (r *ToolExecutionResult) WithCacheHit(toolCallID string) *ToolExecutionResult {
	out := *r
	out.CacheHit = true
	if toolCallID != "" {
		out.ToolCallID = toolCallID
	}
	return &out
}

// Expired reports whether the result's retention window has passed.
func (r *ToolExecutionResult) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
