// commands.go contains the cobra command definitions and flag wiring. Each
// builder creates one command and delegates to its handler.
package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigName = "conduit.yaml"

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the conduit read API server",
		Long: `Start the read API server for traces, metrics, and performance summaries.

The server will:
1. Load configuration from the specified file (or conduit.yaml)
2. Open the artifact and trace/metrics databases
3. Start the retention janitor on its configured schedule
4. Serve the read API and prometheus metrics over HTTP

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  conduit serve

  # Start with custom config
  conduit serve --config /etc/conduit/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName,
		"Path to configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")
	return cmd
}

func buildTracesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "traces",
		Short: "Inspect recorded execution traces",
	}
	cmd.AddCommand(buildTracesListCmd(), buildTracesShowCmd())
	return cmd
}

func buildTracesListCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent traces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracesList(cmd.Context(), configPath, sessionID, limit)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().StringVar(&sessionID, "session", "", "Only traces for this session")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of traces to list")
	return cmd
}

func buildTracesShowCmd() *cobra.Command {
	var (
		configPath string
		flow       bool
	)

	cmd := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Print a conversation's trace document",
		Args:  cobra.ExactArgs(1),
		Example: `  # Full span tree as JSON
  conduit traces show conv-42

  # Mermaid flowchart of the span tree
  conduit traces show conv-42 --flow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracesShow(cmd.Context(), configPath, args[0], flow)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().BoolVar(&flow, "flow", false, "Render as a mermaid flowchart instead of JSON")
	return cmd
}

func buildMetricsCmd() *cobra.Command {
	var (
		configPath  string
		performance bool
	)

	cmd := &cobra.Command{
		Use:   "metrics <conversation-id>",
		Short: "Print a conversation's metrics snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMetrics(cmd.Context(), configPath, args[0], performance)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().BoolVar(&performance, "performance", false, "Print the duration breakdown instead of raw metrics")
	return cmd
}

func buildConversationsCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "List recorded conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversations(cmd.Context(), configPath, sessionID, limit)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	cmd.Flags().StringVar(&sessionID, "session", "", "Only conversations for this session")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of conversations to list")
	return cmd
}

func buildCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run one retention sweep over artifacts, traces, and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigName, "Path to configuration file")
	return cmd
}
