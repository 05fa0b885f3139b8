package isolate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/conduit/pkg/contract"
)

// syncBuffer guards a log buffer written by the worker drain goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func sleeper(d time.Duration, value any) Fn {
	return func(ctx context.Context) (any, error) {
		select {
		case <-time.After(d):
			return value, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestExecuteWithTimeout(t *testing.T) {
	t.Run("returns the result when fn beats the deadline", func(t *testing.T) {
		raw, err := ExecuteWithTimeout(context.Background(), sleeper(50*time.Millisecond, "ok"), 100*time.Millisecond, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if raw != "ok" {
			t.Errorf("unexpected result: %v", raw)
		}
	})

	t.Run("times out when fn exceeds the deadline", func(t *testing.T) {
		start := time.Now()
		_, err := ExecuteWithTimeout(context.Background(), sleeper(400*time.Millisecond, "late"), 100*time.Millisecond, nil)
		elapsed := time.Since(start)

		if contract.KindOf(err) != contract.ErrTimeout {
			t.Fatalf("expected timeout, got %v", err)
		}
		if elapsed > 300*time.Millisecond {
			t.Errorf("timeout returned too late: %v", elapsed)
		}
	})

	t.Run("propagates fn errors", func(t *testing.T) {
		_, err := ExecuteWithTimeout(context.Background(), func(ctx context.Context) (any, error) {
			return nil, fmt.Errorf("boom")
		}, time.Second, nil)
		if err == nil || err.Error() != "boom" {
			t.Errorf("expected fn error, got %v", err)
		}
	})

	t.Run("recovers panics into tool errors", func(t *testing.T) {
		_, err := ExecuteWithTimeout(context.Background(), func(ctx context.Context) (any, error) {
			panic("bad pointer")
		}, time.Second, nil)
		if contract.KindOf(err) != contract.ErrTool {
			t.Fatalf("expected tool error, got %v", err)
		}
	})

	t.Run("logs the late result of an abandoned worker", func(t *testing.T) {
		var buf syncBuffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		_, err := ExecuteWithTimeout(context.Background(), func(ctx context.Context) (any, error) {
			time.Sleep(150 * time.Millisecond)
			return "late", nil
		}, 50*time.Millisecond, logger)
		if contract.KindOf(err) != contract.ErrTimeout {
			t.Fatalf("expected timeout, got %v", err)
		}

		deadline := time.Now().Add(time.Second)
		for !strings.Contains(buf.String(), "result discarded") {
			if time.Now().After(deadline) {
				t.Fatalf("late result never logged; log output: %q", buf.String())
			}
			time.Sleep(10 * time.Millisecond)
		}
	})

	t.Run("distinguishes cancellation from timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		_, err := ExecuteWithTimeout(ctx, sleeper(time.Second, nil), 5*time.Second, nil)
		if contract.KindOf(err) == contract.ErrTimeout {
			t.Error("cancellation must not report as a timeout")
		}
		if err == nil {
			t.Error("expected an error")
		}
	})
}

func isolateRequest(timeoutMs int64) *contract.ToolInvocationRequest {
	return &contract.ToolInvocationRequest{
		ToolCallID: "toolu_01",
		ToolName:   "slow_tool",
		TimeoutMs:  timeoutMs,
	}
}

func TestSafeExecute(t *testing.T) {
	t.Run("shapes successful output", func(t *testing.T) {
		res := SafeExecute(context.Background(), isolateRequest(1000), func(ctx context.Context) (any, error) {
			return map[string]any{"success": true}, nil
		}, contract.OutputBrief, nil, nil)
		if !res.Success {
			t.Fatalf("expected success, got %+v", res)
		}
		if res.Observation != "success=true" {
			t.Errorf("unexpected observation: %q", res.Observation)
		}
		if res.DurationMs < 0 {
			t.Error("duration must be stamped")
		}
	})

	t.Run("converts timeout into an error result", func(t *testing.T) {
		res := SafeExecute(context.Background(), isolateRequest(100), sleeper(2*time.Second, nil), contract.OutputBrief, nil, nil)
		if res.Success {
			t.Fatal("expected failure")
		}
		if res.ErrorType != "timeout" {
			t.Errorf("expected timeout error type, got %q", res.ErrorType)
		}
		if res.Observation == "" || res.Observation[:7] != "Error: " {
			t.Errorf("observation must read as an error: %q", res.Observation)
		}
	})

	t.Run("converts tool errors without the taxonomy prefix", func(t *testing.T) {
		res := SafeExecute(context.Background(), isolateRequest(1000), func(ctx context.Context) (any, error) {
			return nil, errors.New("connection refused")
		}, contract.OutputBrief, nil, nil)
		if res.Observation != "Error: connection refused" {
			t.Errorf("unexpected observation: %q", res.Observation)
		}
		if res.ErrorType != "tool" {
			t.Errorf("expected tool error type, got %q", res.ErrorType)
		}
	})

	t.Run("never panics", func(t *testing.T) {
		res := SafeExecute(context.Background(), isolateRequest(1000), func(ctx context.Context) (any, error) {
			panic("kaboom")
		}, contract.OutputBrief, nil, nil)
		if res.Success {
			t.Fatal("expected failure")
		}
	})
}
