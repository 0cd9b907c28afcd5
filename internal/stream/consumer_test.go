package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/panoptic/traceview/internal/conversation"
	"github.com/panoptic/traceview/internal/trace"
)

func runConsumer(t *testing.T, store *conversation.Store) (*Consumer, chan error) {
	t.Helper()
	c := NewConsumer(store, nil)
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()
	return c, errCh
}

func waitErr(t *testing.T, errCh chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
		return nil
	}
}

func TestConsumerAppliesTextAndThinking(t *testing.T) {
	store := conversation.New("s1", nil)
	store.AddUserMessage("run the numbers")

	c, errCh := runConsumer(t, store)
	c.Events() <- Event{Kind: EventThinking, Text: "querying the warehouse"}
	c.Events() <- Event{Kind: EventText, Text: "The total is "}
	c.Events() <- Event{Kind: EventText, Text: "$42."}
	c.Events() <- Event{Kind: EventDone}
	require.NoError(t, waitErr(t, errCh))

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, conversation.TypeAssistant, msgs[1].Type)
	require.Equal(t, "The total is $42.", msgs[1].Content)
	require.Equal(t, []string{"querying the warehouse"}, store.ThinkingHistory(msgs[1].ID))
}

func TestConsumerAppliesTraces(t *testing.T) {
	store := conversation.New("s1", nil)
	store.AddUserMessage("hi")

	c, errCh := runConsumer(t, store)
	c.Events() <- Event{Kind: EventTrace, Trace: trace.Envelope{
		"collaboratorName": "SQLAgent",
		"trace": map[string]any{
			"orchestrationTrace": map[string]any{
				"rationale": map[string]any{"text": "need a query"},
			},
		},
	}}
	c.Events() <- Event{Kind: EventDone}
	require.NoError(t, waitErr(t, errCh))

	groups := store.TraceGroups()
	require.Len(t, groups, 1)
	require.Equal(t, "SQLAgent", groups[0].Collaborator)
}

func TestConsumerTerminalError(t *testing.T) {
	store := conversation.New("s1", nil)
	store.AddUserMessage("hi")

	c, errCh := runConsumer(t, store)
	c.Events() <- Event{Kind: EventText, Text: "partial answ"}
	c.Events() <- Event{Kind: EventError, Message: "model timed out"}
	require.NoError(t, waitErr(t, errCh))

	msgs := store.Messages()
	last := msgs[len(msgs)-1]
	require.Equal(t, "Error: model timed out", last.Content)
	// The partial assistant message was replaced, not kept.
	for _, m := range msgs[:len(msgs)-1] {
		require.NotContains(t, m.Content, "partial answ")
	}
}

func TestConsumerClosedChannelFinishesTurn(t *testing.T) {
	store := conversation.New("s1", nil)
	store.AddUserMessage("hi")

	c, errCh := runConsumer(t, store)
	c.Events() <- Event{Kind: EventText, Text: "done."}
	close(c.Events())
	require.NoError(t, waitErr(t, errCh))

	msgs := store.Messages()
	require.Equal(t, "done.", msgs[len(msgs)-1].Content)
}

func TestConsumerContextCancel(t *testing.T) {
	store := conversation.New("s1", nil)
	c := NewConsumer(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	cancel()

	require.ErrorIs(t, waitErr(t, errCh), context.Canceled)
}

func TestConsumerUpdateSignalCoalesces(t *testing.T) {
	store := conversation.New("s1", nil)
	store.AddUserMessage("hi")

	c, errCh := runConsumer(t, store)
	for i := 0; i < 10; i++ {
		c.Events() <- Event{Kind: EventText, Text: "x"}
	}
	c.Events() <- Event{Kind: EventDone}
	require.NoError(t, waitErr(t, errCh))

	select {
	case <-c.Updates():
	default:
		t.Fatal("expected at least one pending update signal")
	}
}
