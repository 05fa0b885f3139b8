// Package isolate runs arbitrary tool functions under a wall-clock deadline.
//
// The deadline is cooperative: a timed-out worker goroutine is abandoned, not
// killed, because the underlying call may not be safely interruptible. Callers
// must accept that a timed-out call's side effects may still occur after they
// have moved on. Tool functions that honor their context get preemptive
// cancellation for free.
package isolate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/haasonsaas/conduit/pkg/contract"
)

// Fn is a tool function under isolation. It receives a context whose deadline
// matches the invocation timeout.
type Fn func(ctx context.Context) (any, error)

type outcome struct {
	raw any
	err error
}

// ExecuteWithTimeout runs fn on its own goroutine and waits up to timeout.
// If the worker finishes first its result or error is propagated; a panic in
// fn is recovered into a tool error. If the deadline elapses first, a timeout
// error is returned and the worker is abandoned: should it finish later, the
// late result is logged and discarded, never re-surfaced to the caller.
func ExecuteWithTimeout(ctx context.Context, fn Fn, timeout time.Duration, logger *slog.Logger) (any, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so an abandoned worker can complete without leaking.
	resultCh := make(chan outcome, 1)

	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out = outcome{err: contract.NewError(contract.ErrTool, "tool panicked: %v", r)}
			}
			resultCh <- out
		}()
		out.raw, out.err = fn(ctx)
	}()

	select {
	case <-ctx.Done():
		// Drain the abandoned worker so its late result is observed,
		// logged, and discarded instead of vanishing.
		go func() {
			out := <-resultCh
			logger.Warn("tool completed after timeout, result discarded",
				"error", out.err)
		}()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, contract.NewError(contract.ErrTimeout,
				"tool execution timed out after %s", timeout)
		}
		return nil, contract.NewError(contract.ErrTool, "tool execution canceled")
	case out := <-resultCh:
		return out.raw, out.err
	}
}

// SafeExecute never fails past its return value: every path, including
// timeout, tool error, and panic, terminates in a ToolExecutionResult. Raw
// output is shaped at the requested level; large FULL payloads go through the
// offloader.
func SafeExecute(ctx context.Context, req *contract.ToolInvocationRequest, fn Fn, level contract.OutputLevel, off contract.Offloader, logger *slog.Logger) *contract.ToolExecutionResult {
	start := time.Now()
	raw, err := ExecuteWithTimeout(ctx, fn, time.Duration(req.TimeoutMs)*time.Millisecond, logger)

	var res *contract.ToolExecutionResult
	if err != nil {
		res = contract.NewErrorResult(req, contract.KindOf(err), errMessage(err))
	} else {
		res = contract.FromRawData(req, raw, level, off)
	}
	res.DurationMs = time.Since(start).Milliseconds()
	return res
}

// errMessage strips the kind prefix from classified errors so the LLM-facing
// observation reads "Error: <message>" without the taxonomy label.
func errMessage(err error) string {
	var ce *contract.Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}
