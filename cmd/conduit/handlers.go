// handlers.go contains the command implementations behind the cobra
// definitions in commands.go.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/haasonsaas/conduit/internal/config"
	"github.com/haasonsaas/conduit/internal/server"
	"github.com/haasonsaas/conduit/pkg/trace"
)

func runServe(ctx context.Context, configPath string, debug bool) error {
	a, err := buildApp(ctx, configPath, debug)
	if err != nil {
		return err
	}
	defer a.close()

	j, err := a.newJanitor()
	if err != nil {
		return err
	}
	if a.cfg.Janitor.Enabled {
		j.Start()
		defer j.Stop()
	}

	srv := server.New(server.Options{
		Store:    a.store,
		Logger:   a.logger.Slog(),
		Registry: a.registry,
	})
	if err := srv.Start(a.cfg.Server.Host, a.cfg.Server.HTTPPort); err != nil {
		return err
	}
	defer srv.Stop(nil)

	// hot-reload only touches logging; structural changes need a restart
	if _, err := os.Stat(configPath); err == nil {
		watcher, err := config.NewWatcher(configPath, a.logger.Slog(), func(cfg *config.Config) {
			a.logger.Info(ctx, "config change detected; logging settings will apply on restart")
		})
		if err == nil {
			if err := watcher.Start(ctx); err == nil {
				defer watcher.Stop()
			}
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	a.logger.Info(context.Background(), "shutting down")
	return nil
}

func runTracesList(ctx context.Context, configPath, sessionID string, limit int) error {
	a, err := buildApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	var rows []string
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TRACE ID\tCONVERSATION\tSESSION\tSTART\tDURATION\tSTATUS\tTOKENS")

	if sessionID != "" {
		list, err := a.store.BySession(ctx, sessionID)
		if err != nil {
			return err
		}
		for _, t := range list {
			rows = append(rows, formatTraceRow(t.TraceID, t.ConversationID, t.SessionID,
				t.StartTime.Format("2006-01-02 15:04:05"), t.DurationMs, t.Status, t.TotalTokens))
		}
	} else {
		list, err := a.store.Recent(ctx, limit)
		if err != nil {
			return err
		}
		for _, t := range list {
			rows = append(rows, formatTraceRow(t.TraceID, t.ConversationID, t.SessionID,
				t.StartTime.Format("2006-01-02 15:04:05"), t.DurationMs, t.Status, t.TotalTokens))
		}
	}
	for _, row := range rows {
		fmt.Fprintln(w, row)
	}
	return w.Flush()
}

func formatTraceRow(traceID, conversationID, sessionID, start string, durationMs int64, status string, tokens int64) string {
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%dms\t%s\t%d",
		traceID, conversationID, sessionID, start, durationMs, status, tokens)
}

func runTracesShow(ctx context.Context, configPath, conversationID string, flow bool) error {
	a, err := buildApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	tr, err := a.store.LoadTrace(ctx, conversationID)
	if err != nil {
		return err
	}
	if tr == nil {
		return fmt.Errorf("no trace recorded for conversation %s", conversationID)
	}

	if flow {
		fmt.Println(trace.RenderFlow(tr))
		return nil
	}
	out, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runMetrics(ctx context.Context, configPath, conversationID string, performance bool) error {
	a, err := buildApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	var payload any
	if performance {
		summary, err := a.store.GetPerformanceSummary(ctx, conversationID)
		if err != nil {
			return err
		}
		if summary == nil {
			return fmt.Errorf("no metrics recorded for conversation %s", conversationID)
		}
		payload = summary
	} else {
		m, err := a.store.GetMetrics(ctx, conversationID)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("no metrics recorded for conversation %s", conversationID)
		}
		payload = m
	}

	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runConversations(ctx context.Context, configPath, sessionID string, limit int) error {
	a, err := buildApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	conversations, err := a.store.ListConversations(ctx, sessionID, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONVERSATION\tSESSION\tSTART\tTRACES\tDURATION\tTOKENS\tTOOL CALLS")
	for _, c := range conversations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%dms\t%d\t%d\n",
			c.ConversationID, c.SessionID, c.StartTime.Format("2006-01-02 15:04:05"),
			c.TraceCount, c.TotalDurationMs, c.TotalTokens, c.ToolCalls)
	}
	return w.Flush()
}

func runCleanup(ctx context.Context, configPath string) error {
	a, err := buildApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	j, err := a.newJanitor()
	if err != nil {
		return err
	}
	j.RunOnce(ctx)
	fmt.Println("cleanup complete")
	return nil
}
