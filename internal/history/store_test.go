package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/panoptic/traceview/internal/conversation"
)

func sampleMessages() []conversation.Message {
	return []conversation.Message{
		{ID: "100", Type: conversation.TypeUser, Content: "what were last week's totals?", Timestamp: 100},
		{ID: "thinking-150", Type: conversation.TypeThinking, Content: "checking the sales table", Timestamp: 150},
		{ID: "assistant-200", Type: conversation.TypeAssistant, Content: "Totals were $1,234.", Timestamp: 200},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	ctx := context.Background()

	want := sampleMessages()
	if err := fs.Put(ctx, "sess-1", want); err != nil {
		t.Fatal(err)
	}

	got, err := fs.Get(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestFileStoreMissingSession(t *testing.T) {
	fs := NewFileStore(t.TempDir())

	_, err := fs.Get(context.Background(), "nope")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestFileStoreAppend(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	ctx := context.Background()

	// Append creates the session.
	first := conversation.Message{ID: "1", Type: conversation.TypeUser, Content: "hi", Timestamp: 1}
	if err := fs.Append(ctx, "sess-1", first); err != nil {
		t.Fatal(err)
	}
	second := conversation.Message{ID: "assistant-2", Type: conversation.TypeAssistant, Content: "hello", Timestamp: 2}
	if err := fs.Append(ctx, "sess-1", second); err != nil {
		t.Fatal(err)
	}

	got, err := fs.Get(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0] != first || got[1] != second {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	ctx := context.Background()

	if err := fs.Put(ctx, "sess-1", sampleMessages()); err != nil {
		t.Fatal(err)
	}
	if err := fs.Put(ctx, "sess-1", nil); err != nil {
		t.Fatal(err)
	}

	got, err := fs.Get(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty transcript, got %d messages", len(got))
	}
}

func TestFileStoreList(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	ctx := context.Background()

	if err := fs.Put(ctx, "older", sampleMessages()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := fs.Put(ctx, "newer", sampleMessages()[:1]); err != nil {
		t.Fatal(err)
	}

	infos, err := fs.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
	if infos[0].ID != "newer" {
		t.Errorf("expected newest first, got %q", infos[0].ID)
	}
	if infos[0].MessageCount != 1 || infos[1].MessageCount != 3 {
		t.Errorf("unexpected message counts: %+v", infos)
	}
}

func TestFileStoreListEmptyDir(t *testing.T) {
	fs := NewFileStore(t.TempDir() + "/does-not-exist")

	infos, err := fs.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected no sessions, got %d", len(infos))
	}
}

func TestFileStoreSanitizesIDs(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	ctx := context.Background()

	id := "user@example.com:session/7"
	if err := fs.Put(ctx, id, sampleMessages()); err != nil {
		t.Fatal(err)
	}
	got, err := fs.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
}
