package conversation

import (
	"testing"
	"time"

	"github.com/panoptic/traceview/internal/trace"
	"github.com/stretchr/testify/require"
)

// scriptedClock returns successive times from the given epoch-ms values,
// repeating the last one when exhausted.
func scriptedClock(ms ...int64) func() time.Time {
	i := 0
	return func() time.Time {
		t := time.UnixMilli(ms[i])
		if i < len(ms)-1 {
			i++
		}
		return t
	}
}

func rationaleEnvelope(text string) trace.Envelope {
	return trace.Envelope{
		"trace": map[string]any{
			"orchestrationTrace": map[string]any{
				"rationale": map[string]any{"text": text},
			},
		},
	}
}

func TestTraceWindowing(t *testing.T) {
	s := New("session-1", nil)
	s.SetClock(scriptedClock(100, 150, 180, 200, 300))

	first := s.AddUserMessage("show me the orders")         // t=100
	s.AddTrace(rationaleEnvelope("planning"))               // t=150
	s.AddTrace(trace.Envelope{"collaboratorName": "Other"}) // t=180
	second := s.AddUserMessage("and the totals")            // t=200
	third := s.AddUserMessage("anything else?")             // t=300

	require.Len(t, s.TracesForMessage(first), 2)
	require.Empty(t, s.TracesForMessage(second))
	require.Empty(t, s.TracesForMessage(third))
}

func TestTraceWindowingAssistantDelegates(t *testing.T) {
	s := New("session-1", nil)
	s.SetClock(scriptedClock(100, 150, 170, 200))

	s.AddUserMessage("question")              // t=100
	s.AddTrace(rationaleEnvelope("thinking")) // t=150
	reply := s.AppendAssistantChunk("answer") // t=170
	s.AddUserMessage("followup")              // t=200

	groups := s.TracesForMessage(reply)
	require.Len(t, groups, 1)
	require.Equal(t, "SupervisorAgent", groups[0].Collaborator)
}

func TestThinkingDedup(t *testing.T) {
	s := New("session-1", nil)

	s.AddThinkingUpdate("checking schema")
	s.AddThinkingUpdate("checking schema")
	s.AddThinkingUpdate("running query")
	s.AddThinkingUpdate("checking schema")
	s.AddThinkingUpdate("   ")

	require.Equal(t, []string{"checking schema", "running query"}, s.CurrentThinking())
}

func TestAssistantAdoptsThinkingHistory(t *testing.T) {
	s := New("session-1", nil)

	s.AddUserMessage("question")
	s.AddThinkingUpdate("step one")
	s.AddThinkingUpdate("step two")

	reply := s.AppendAssistantChunk("The answer")
	require.Equal(t, []string{"step one", "step two"}, s.ThinkingHistory(reply.ID))

	// A new user message resets the active history.
	s.AddUserMessage("next question")
	require.Empty(t, s.CurrentThinking())
}

func TestAppendAssistantChunkAccumulates(t *testing.T) {
	s := New("session-1", nil)

	s.AddUserMessage("question")
	s.AppendAssistantChunk("Hello")
	m := s.AppendAssistantChunk(", world")
	require.Equal(t, "Hello, world", m.Content)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, TypeAssistant, msgs[1].Type)

	// After the turn finishes, the next chunk starts a fresh message.
	s.FinishTurn()
	s.AppendAssistantChunk("Another")
	require.Len(t, s.Messages(), 3)
}

func TestSetErrorReplacesOptimisticMessage(t *testing.T) {
	s := New("session-1", nil)

	s.AddUserMessage("question")
	s.AppendAssistantChunk("partial")
	m := s.SetError("stream reset")

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "Error: stream reset", msgs[1].Content)
	require.Equal(t, TypeAssistant, m.Type)
}

func TestHydrationContinuesTurn(t *testing.T) {
	history := []Message{
		{ID: "100", Type: TypeUser, Content: "old question", Timestamp: 100},
		{ID: "assistant-120", Type: TypeAssistant, Content: "old answer", Timestamp: 120},
	}
	s := New("session-1", history)
	s.SetClock(scriptedClock(150))

	g := s.AddTrace(rationaleEnvelope("late trace"))
	require.Equal(t, "100", g.TurnID)
	require.Equal(t, "old question", s.LastUserQuestion())
}

func TestGuardrailGroupsPerEvent(t *testing.T) {
	s := New("session-1", nil)
	s.SetClock(scriptedClock(100, 110, 120))

	s.AddUserMessage("question")
	for range 2 {
		s.AddTrace(trace.Envelope{
			"trace": map[string]any{"guardrailTrace": map[string]any{"action": "NONE"}},
		})
	}
	require.Len(t, s.TraceGroups(), 2)
}
