package webserver

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/panoptic/traceview/internal/conversation"
	"github.com/panoptic/traceview/internal/history"
	"github.com/panoptic/traceview/internal/stream"
)

// session is one live conversation: its store plus the consumer that applies
// incoming stream events to it.
type session struct {
	store    *conversation.Store
	consumer *stream.Consumer
}

// SessionManager owns the live sessions. A session is created on first touch,
// hydrated from whatever transcript the history store has for its ID.
type SessionManager struct {
	mu       sync.Mutex
	history  history.Store
	logger   *slog.Logger
	sessions map[string]*session
}

// NewSessionManager creates a SessionManager backed by the given store.
func NewSessionManager(h history.Store, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		history:  h,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

// Get returns the live session for id, creating and hydrating it if needed.
// A failed history fetch is treated as no stored history: the session opens
// with an empty transcript rather than blocking the conversation.
func (m *SessionManager) Get(ctx context.Context, id string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}

	msgs, err := m.history.Get(ctx, id)
	if err != nil && !errors.Is(err, history.ErrSessionNotFound) {
		m.logger.Error("hydrating session", "session", id, "error", err)
		msgs = nil
	}

	store := conversation.New(id, msgs)
	s := &session{
		store:    store,
		consumer: stream.NewConsumer(store, m.logger),
	}
	m.sessions[id] = s
	return s
}

// Persist writes a session's current transcript through to the history store.
func (m *SessionManager) Persist(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.history.Put(ctx, id, s.store.Messages())
}
