package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/panoptic/traceview/internal/conversation"
	"github.com/panoptic/traceview/internal/stream"
)

func newReplayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [events-file]",
		Short: "Replay a recorded event stream and print the aggregated view",
		Long: `Replay a recorded event stream and print the aggregated view.

The file holds one JSON event per line (the same shape the ingest endpoint
accepts): user messages, assistant text chunks, thinking updates, trace
envelopes, and done/error markers. The command runs them through the
aggregator and prints the transcript with each turn's collaborator step
trees.

With no argument, an interactive picker lists the .json and .jsonl files in
the current directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				picked, err := pickEventsFile()
				if err != nil {
					return err
				}
				path = picked
			}
			return runReplay(path, cmd.OutOrStdout())
		},
	}
	return cmd
}

// pickEventsFile prompts for one of the event files in the current directory.
func pickEventsFile() (string, error) {
	var candidates []string
	for _, pattern := range []string{"*.jsonl", "*.json"} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		candidates = append(candidates, matches...)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no .json or .jsonl event files in the current directory (pass a file path)")
	}
	sort.Strings(candidates)

	options := make([]huh.Option[string], 0, len(candidates))
	for _, c := range candidates {
		options = append(options, huh.NewOption(c, c))
	}

	var picked string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Event stream to replay").
			Options(options...).
			Value(&picked),
	))
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		form = form.WithAccessible(true)
	}
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("picking events file: %w", err)
	}
	return picked, nil
}

func runReplay(path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening events file: %w", err)
	}
	defer f.Close()

	store := conversation.New(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), nil)
	consumer := stream.NewConsumer(store, nil)

	lineNo := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev stream.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
		consumer.Apply(ev)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading events file: %w", err)
	}

	printTranscript(out, store)
	return nil
}

func printTranscript(w io.Writer, store *conversation.Store) {
	width := terminalWidth()

	for _, m := range store.Messages() {
		fmt.Fprintf(w, "\n[%s] %s\n", m.Type, m.Content) //nolint:errcheck
		if thinking := store.ThinkingHistory(m.ID); len(thinking) > 0 {
			for _, th := range thinking {
				fmt.Fprintf(w, "    · %s\n", th) //nolint:errcheck
			}
		}
		for _, g := range store.TracesForMessage(m) {
			fmt.Fprintf(w, "  %s\n", truncateLine(g.Title, width-2)) //nolint:errcheck
			for _, s := range g.Steps {
				fmt.Fprintf(w, "    %s\n", truncateLine(s.Title, width-4)) //nolint:errcheck
				for _, sub := range s.SubSteps {
					fmt.Fprintf(w, "      %s\n", truncateLine(sub.Title, width-6)) //nolint:errcheck
				}
			}
		}
	}

	printGroupSummary(w, store)
}

// printGroupSummary renders a fixed-width table of every trace group.
func printGroupSummary(w io.Writer, store *conversation.Store) {
	groups := store.TraceGroups()
	if len(groups) == 0 {
		return
	}

	const colCollaborator = 24
	const colSteps = 6
	totalWidth := colCollaborator + colSteps + 40 + 4

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("═", totalWidth)) //nolint:errcheck
	fmt.Fprintf(w, " TRACE GROUPS\n")                         //nolint:errcheck
	fmt.Fprintf(w, "%s\n\n", strings.Repeat("═", totalWidth)) //nolint:errcheck
	fmt.Fprintf(w, "%s  %s  %s\n", //nolint:errcheck
		padRight("Collaborator", colCollaborator),
		padRight("Steps", colSteps),
		"Title")
	fmt.Fprintf(w, "%s\n", strings.Repeat("─", totalWidth)) //nolint:errcheck

	for _, g := range groups {
		fmt.Fprintf(w, "%s  %s  %s\n", //nolint:errcheck
			padRight(truncateLine(g.DisplayName(), colCollaborator), colCollaborator),
			padRight(fmt.Sprintf("%d", g.StepCount()), colSteps),
			g.Title)
	}
	fmt.Fprintf(w, "\n") //nolint:errcheck
}

func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		return w
	}
	return 100
}

// truncateLine shortens s to the given display width, ending with "…" if cut.
func truncateLine(s string, width int) string {
	if width < 2 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width-1, "") + "…"
}

// padRight pads s with spaces so its terminal display width reaches width.
func padRight(s string, width int) string {
	sw := runewidth.StringWidth(s)
	if sw >= width {
		return s
	}
	return s + strings.Repeat(" ", width-sw)
}
