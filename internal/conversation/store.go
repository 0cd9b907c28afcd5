// Package conversation holds the per-session transcript: user, assistant and
// thinking messages plus the trace groups accumulated during each turn.
package conversation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/panoptic/traceview/internal/trace"
)

// Type discriminates transcript entries.
type Type string

const (
	TypeUser      Type = "user"
	TypeAssistant Type = "assistant"
	TypeThinking  Type = "thinking"
)

// Message is one transcript entry. Timestamp is epoch milliseconds; message
// ordering and trace association both key off it.
type Message struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Store owns all mutable state for one conversation session. Every mutation
// goes through its lock, so appends from a streaming consumer are serialized
// the same way the UI's single update queue serialized them. Nothing is ever
// deleted within a session; a new chat is a new Store.
type Store struct {
	mu        sync.Mutex
	clock     func() time.Time
	sessionID string

	messages []Message
	agg      *trace.Aggregator

	// thinking keeps the interim thought history adopted by each assistant
	// message, for later inspection.
	thinking       map[string][]string
	activeThinking []string

	currentAssistantID string
	lastUserID         string
	lastUserQuestion   string
}

// New creates a session store, optionally hydrated from persisted history.
func New(sessionID string, history []Message) *Store {
	s := &Store{
		clock:     time.Now,
		sessionID: sessionID,
		agg:       trace.NewAggregator(),
		thinking:  make(map[string][]string),
	}
	for _, m := range history {
		s.messages = append(s.messages, m)
		if m.Type == TypeUser {
			s.lastUserID = m.ID
			s.lastUserQuestion = m.Content
		}
	}
	return s
}

// SetClock replaces the wall clock, for tests.
func (s *Store) SetClock(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = fn
	s.agg.Clock = fn
}

// SessionID returns the session this store belongs to.
func (s *Store) SessionID() string { return s.sessionID }

// AddUserMessage appends a user message and starts a new turn: the active
// thinking history and in-progress assistant message are reset, and
// subsequent traces attach to this message's window.
func (s *Store) AddUserMessage(content string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.clock().UnixMilli()
	m := Message{
		ID:        strconv.FormatInt(ts, 10),
		Type:      TypeUser,
		Content:   content,
		Timestamp: ts,
	}
	s.messages = append(s.messages, m)
	s.lastUserID = m.ID
	s.lastUserQuestion = content
	s.activeThinking = nil
	s.currentAssistantID = ""
	return m
}

// AddThinkingUpdate records an interim thought for the current turn. Updates
// identical to any earlier entry in the turn are dropped.
func (s *Store) AddThinkingUpdate(content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, prior := range s.activeThinking {
		if prior == content {
			return
		}
	}
	s.activeThinking = append(s.activeThinking, content)
}

// CurrentThinking returns the thinking history of the turn in progress.
func (s *Store) CurrentThinking() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.activeThinking...)
}

// AppendAssistantChunk appends streamed completion text. The first chunk of a
// turn creates the assistant message and adopts the turn's thinking history;
// later chunks extend the same message.
func (s *Store) AppendAssistantChunk(delta string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentAssistantID != "" {
		for i := range s.messages {
			if s.messages[i].ID == s.currentAssistantID {
				s.messages[i].Content += delta
				return s.messages[i]
			}
		}
	}

	ts := s.clock().UnixMilli()
	m := Message{
		ID:        fmt.Sprintf("assistant-%d", ts),
		Type:      TypeAssistant,
		Content:   delta,
		Timestamp: ts,
	}
	if len(s.activeThinking) > 0 {
		s.thinking[m.ID] = append([]string(nil), s.activeThinking...)
	}
	s.messages = append(s.messages, m)
	s.currentAssistantID = m.ID
	return m
}

// FinishTurn closes the in-progress assistant message; the next chunk starts
// a new one.
func (s *Store) FinishTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentAssistantID = ""
}

// SetError replaces the last (optimistic) message with a terminal assistant
// error message.
func (s *Store) SetError(msg string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.messages); n > 0 {
		s.messages = s.messages[:n-1]
	}
	ts := s.clock().UnixMilli()
	m := Message{
		ID:        fmt.Sprintf("error-%d", ts),
		Type:      TypeAssistant,
		Content:   fmt.Sprintf("Error: %s", msg),
		Timestamp: ts,
	}
	s.messages = append(s.messages, m)
	s.currentAssistantID = ""
	return m
}

// ThinkingHistory returns the thought history adopted by the given assistant
// message, or nil.
func (s *Store) ThinkingHistory(messageID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.thinking[messageID]...)
}

// LastUserQuestion returns the content of the most recent user message.
func (s *Store) LastUserQuestion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUserQuestion
}

// AddTrace classifies and aggregates one streamed trace envelope under the
// current turn.
func (s *Store) AddTrace(raw trace.Envelope) *trace.Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := s.lastUserID
	if turn == "" {
		turn = "unknown"
	}
	return s.agg.Ingest(turn, raw)
}

// Messages returns a snapshot of the transcript.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// TraceGroups returns all trace groups in creation order.
func (s *Store) TraceGroups() []*trace.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*trace.Group(nil), s.agg.Groups()...)
}

// TracesForMessage returns the trace groups belonging to a message's turn.
// For a user message that is every group started strictly between it and the
// next user message; an assistant message delegates to its nearest preceding
// user message. Thinking messages have no traces.
func (s *Store) TracesForMessage(m Message) []*trace.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracesForMessageLocked(m)
}

func (s *Store) tracesForMessageLocked(m Message) []*trace.Group {
	switch m.Type {
	case TypeUser:
		end := int64(math.MaxInt64)
		for _, other := range s.messages {
			if other.Type == TypeUser && other.Timestamp > m.Timestamp {
				end = other.Timestamp
				break
			}
		}
		var groups []*trace.Group
		for _, g := range s.agg.Groups() {
			start := g.StartTime.UnixMilli()
			if start > m.Timestamp && start < end {
				groups = append(groups, g)
			}
		}
		return groups

	case TypeAssistant:
		for i := len(s.messages) - 1; i >= 0; i-- {
			other := s.messages[i]
			if other.Type == TypeUser && other.Timestamp < m.Timestamp {
				return s.tracesForMessageLocked(other)
			}
		}
	}
	return nil
}
