package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const replayEvents = `{"kind": "user", "text": "how many orders shipped?"}
{"kind": "thinking", "text": "need the shipping table"}
{"kind": "trace", "trace": {"collaboratorName": "SQLAgent", "trace": {"orchestrationTrace": {"rationale": {"text": "counting orders"}}}}}
{"kind": "trace", "trace": {"collaboratorName": "SQLAgent", "trace": {"orchestrationTrace": {"modelInvocationInput": {"text": "{\"sql\": true}"}}}}}
{"kind": "text", "text": "1,204 orders shipped."}
{"kind": "done"}
`

func writeEvents(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunReplay(t *testing.T) {
	path := writeEvents(t, replayEvents)

	var out bytes.Buffer
	if err := runReplay(path, &out); err != nil {
		t.Fatal(err)
	}

	got := out.String()
	for _, want := range []string{
		"[user] how many orders shipped?",
		"1,204 orders shipped.",
		"· need the shipping table",
		"SQLAgent",
		"TRACE GROUPS",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunReplaySkipsBlankLines(t *testing.T) {
	path := writeEvents(t, "\n"+replayEvents+"\n\n")

	var out bytes.Buffer
	if err := runReplay(path, &out); err != nil {
		t.Fatal(err)
	}
}

func TestRunReplayBadLine(t *testing.T) {
	path := writeEvents(t, `{"kind": "user", "text": "ok"}`+"\nnot json\n")

	var out bytes.Buffer
	err := runReplay(path, &out)
	if err == nil {
		t.Fatal("expected error for malformed line")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error should name the line: %v", err)
	}
}

func TestRunReplayMissingFile(t *testing.T) {
	if err := runReplay("/nope/events.jsonl", &bytes.Buffer{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestTruncateLine(t *testing.T) {
	if got := truncateLine("short", 20); got != "short" {
		t.Errorf("truncateLine(short) = %q", got)
	}
	got := truncateLine("a long line that should be cut", 10)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("expected ellipsis, got %q", got)
	}
}

func TestPadRight(t *testing.T) {
	if got := padRight("ab", 5); got != "ab   " {
		t.Errorf("padRight = %q", got)
	}
	if got := padRight("abcdef", 3); got != "abcdef" {
		t.Errorf("padRight should not truncate: %q", got)
	}
}
