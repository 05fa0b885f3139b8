// Package exec runs the full tool invocation pipeline: request validation,
// registry lookup, idempotency cache, timeout isolation, result shaping, and
// the tracing/metrics hooks around each call.
package exec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/conduit/pkg/cache"
	"github.com/haasonsaas/conduit/pkg/contract"
	"github.com/haasonsaas/conduit/pkg/isolate"
	"github.com/haasonsaas/conduit/pkg/metrics"
	"github.com/haasonsaas/conduit/pkg/registry"
	"github.com/haasonsaas/conduit/pkg/trace"
)

// ProcessMetrics counts tool executions process-wide. Satisfied by
// internal/observability.Metrics.
type ProcessMetrics interface {
	RecordToolExecution(toolName, status string, durationSeconds float64)
	RecordToolError(toolName, errorType string)
}

// Executor ties the registry, cache, and isolator into one invocation path.
// One Executor serves the whole process; per-turn state (tracer, collector)
// arrives with each call.
type Executor struct {
	registry  *registry.Registry
	cache     *cache.IdempotencyCache
	offloader contract.Offloader
	logger    *slog.Logger
	metrics   ProcessMetrics
}

// Options configures an Executor. Registry is required; everything else is
// optional.
type Options struct {
	Registry  *registry.Registry
	Cache     *cache.IdempotencyCache
	Offloader contract.Offloader
	Logger    *slog.Logger
	Metrics   ProcessMetrics
}

func New(opts Options) (*Executor, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Executor{
		registry:  opts.Registry,
		cache:     opts.Cache,
		offloader: opts.Offloader,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// Turn carries the per-conversation-turn observers. Either field may be nil;
// a nil or disabled tracer/collector costs one branch per call.
type Turn struct {
	Tracer    *trace.Tracer
	Collector *metrics.Collector
}

// Execute runs one tool invocation end to end. It never returns a nil result
// and never panics: every failure mode becomes an error result whose
// observation reads "Error: <message>".
func (e *Executor) Execute(ctx context.Context, req *contract.ToolInvocationRequest, turn Turn) *contract.ToolExecutionResult {
	start := time.Now()

	span := e.startSpan(req, turn)
	result := e.execute(ctx, req, turn)
	e.finish(req, turn, span, result, time.Since(start))
	return result
}

func (e *Executor) execute(ctx context.Context, req *contract.ToolInvocationRequest, turn Turn) *contract.ToolExecutionResult {
	if req == nil {
		return contract.NewErrorResult(&contract.ToolInvocationRequest{},
			contract.ErrValidation, "request is nil")
	}
	if req.ToolName == "" {
		return contract.NewErrorResult(req, contract.ErrValidation, "tool_name is required")
	}

	def, err := e.registry.Get(req.ToolName)
	if err != nil {
		return contract.NewErrorResult(req, contract.KindOf(err), errText(err))
	}
	applyDefaults(req, def)

	if err := req.Validate(); err != nil {
		return contract.NewErrorResult(req, contract.KindOf(err), errText(err))
	}
	if err := def.ValidateParams(req.Parameters); err != nil {
		return contract.NewErrorResult(req, contract.KindOf(err), errText(err))
	}

	compute := func() *contract.ToolExecutionResult {
		fn := func(ctx context.Context) (any, error) {
			return def.Handler(ctx, req.Parameters)
		}
		return isolate.SafeExecute(ctx, req, fn, def.DefaultLevel, e.offloader, e.logger)
	}
	if e.cache == nil {
		return compute()
	}
	return e.cache.GetOrCompute(req, compute)
}

func (e *Executor) startSpan(req *contract.ToolInvocationRequest, turn Turn) *trace.Span {
	if turn.Tracer == nil || req == nil {
		return nil
	}
	span := turn.Tracer.StartSpan(req.ToolName, trace.SpanToolCall, nil)
	if span != nil {
		turn.Tracer.AddEvent("tool_invoked", map[string]any{
			"tool_call_id": req.ToolCallID,
			"cache_policy": string(req.Policy()),
		}, span)
	}
	return span
}

func (e *Executor) finish(req *contract.ToolInvocationRequest, turn Turn, span *trace.Span, result *contract.ToolExecutionResult, elapsed time.Duration) {
	status := trace.StatusSuccess
	promStatus := "success"
	if !result.Success {
		status = trace.StatusError
		promStatus = "error"
	}

	if turn.Tracer != nil && span != nil {
		if result.CacheHit {
			turn.Tracer.AddEvent("cache_hit", map[string]any{
				"tool_call_id": result.ToolCallID,
			}, span)
		}
		if !result.Success {
			turn.Tracer.AddEvent("error", map[string]any{
				"error_type":    result.ErrorType,
				"error_message": result.ErrorMessage,
			}, span)
		}
		turn.Tracer.EndSpan(span, status)
	}

	if turn.Collector != nil {
		turn.Collector.RecordToolCall(result.ToolName, elapsed.Milliseconds(), result.Success, 0, 0)
	}

	if e.metrics != nil {
		e.metrics.RecordToolExecution(result.ToolName, promStatus, elapsed.Seconds())
		if !result.Success {
			e.metrics.RecordToolError(result.ToolName, result.ErrorType)
		}
	}

	toolName := ""
	if req != nil {
		toolName = req.ToolName
	}
	e.logger.Info("tool call complete",
		"tool", toolName,
		"success", result.Success,
		"cache_hit", result.CacheHit,
		"duration_ms", elapsed.Milliseconds())
}

// applyDefaults fills unset request fields from the tool definition.
func applyDefaults(req *contract.ToolInvocationRequest, def *registry.Definition) {
	if req.ToolVersion == "" {
		req.ToolVersion = def.Version
	}
	if req.CachePolicy == "" {
		req.CachePolicy = def.DefaultPolicy
	}
	if req.TimeoutMs == 0 && def.Timeout > 0 {
		req.TimeoutMs = def.Timeout.Milliseconds()
	}
}

func errText(err error) string {
	var cerr *contract.Error
	if errors.As(err, &cerr) {
		return cerr.Message
	}
	return err.Error()
}
