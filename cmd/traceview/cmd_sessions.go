package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/panoptic/traceview/internal/history"
	"github.com/panoptic/traceview/internal/projectconfig"
)

func newSessionsCommand() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List persisted chat sessions",
		Long: `List persisted chat sessions from the configured storage backend,
newest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := projectconfig.Load(".")
			if err != nil {
				return err
			}
			if dataDir != "" {
				cfg.Storage.Dir = dataDir
			}
			store, err := buildStore(cfg)
			if err != nil {
				return err
			}
			return runSessions(cmd, store, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Transcript directory for the file backend")
	return cmd
}

func runSessions(cmd *cobra.Command, store history.Store, out io.Writer) error {
	infos, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "no stored sessions") //nolint:errcheck
		return nil
	}

	const colID = 36
	const colCount = 10
	const colUpdated = 20
	totalWidth := colID + colCount + colUpdated + 4

	fmt.Fprintf(out, "%s\n", strings.Repeat("═", totalWidth))   //nolint:errcheck
	fmt.Fprintf(out, " SESSIONS\n")                             //nolint:errcheck
	fmt.Fprintf(out, "%s\n\n", strings.Repeat("═", totalWidth)) //nolint:errcheck

	fmt.Fprintf(out, "%s  %s  %s\n", //nolint:errcheck
		padRight("Session", colID),
		padRight("Messages", colCount),
		"Updated")
	fmt.Fprintf(out, "%s\n", strings.Repeat("─", totalWidth)) //nolint:errcheck

	for _, info := range infos {
		updated := "—"
		if !info.UpdatedAt.IsZero() {
			updated = info.UpdatedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(out, "%s  %s  %s\n", //nolint:errcheck
			padRight(truncateLine(info.ID, colID), colID),
			padRight(fmt.Sprintf("%d", info.MessageCount), colCount),
			updated)
	}
	return nil
}
