package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "traceview",
		Short: "Traceview - aggregate and serve agent trace streams",
		Long: `Traceview consumes streamed agent trace events, classifies them into
collaborator step trees, and maintains conversation transcripts.

It can serve the aggregated view over HTTP, replay recorded event streams
in the terminal, and list persisted chat sessions.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newReplayCommand())
	cmd.AddCommand(newSessionsCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
