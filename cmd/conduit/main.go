// Package main provides the CLI entry point for the conduit tool execution
// and observability service.
//
// # Basic Usage
//
// Start the read API server:
//
//	conduit serve --config conduit.yaml
//
// Inspect recorded traces:
//
//	conduit traces list
//	conduit traces show <conversation-id> --flow
//
// Query conversation metrics:
//
//	conduit metrics <conversation-id>
//
// Run a retention sweep:
//
//	conduit cleanup
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "conduit",
		Short: "Conduit - tool execution and observability service",
		Long: `Conduit runs LLM tool invocations with bounded execution time, idempotent
result reuse, size-bounded observations, and a queryable record of every
conversation turn.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildTracesCmd(),
		buildMetricsCmd(),
		buildConversationsCmd(),
		buildCleanupCmd(),
	)
	return rootCmd
}
