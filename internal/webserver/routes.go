package webserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/panoptic/traceview/internal/history"
	"github.com/panoptic/traceview/internal/stream"
)

// registerRoutes sets up all API routes on the given mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionDetail)
	mux.HandleFunc("GET /api/sessions/{id}/traces", s.handleSessionTraces)
	mux.HandleFunc("POST /api/sessions/{id}/messages", s.handlePostMessage)
	mux.HandleFunc("POST /api/sessions/{id}/events", s.handleIngestEvents)
	mux.HandleFunc("POST /api/sessions/{id}/events/stream", s.handleStreamEvents)
	mux.HandleFunc("GET /api/sessions/{id}/updates", s.handleSessionUpdates)

	history.RegisterRoutes(mux, s.cfg.History)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: Version})
}

// handleListSessions returns summaries of all persisted sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos, err := s.cfg.History.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if infos == nil {
		infos = []history.SessionInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleSessionDetail returns the full transcript of a session, each message
// carrying its display node, adopted thinking history, and the trace groups
// of its turn.
func (s *Server) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	detail := SessionDetail{ID: r.PathValue("id"), Messages: []MessageView{}}
	for _, m := range sess.store.Messages() {
		view := MessageView{
			Message:  m,
			Display:  s.cfg.Renderer.Render(m.Content),
			Thinking: sess.store.ThinkingHistory(m.ID),
		}
		if traces := sess.store.TracesForMessage(m); len(traces) > 0 {
			view.Traces = traces
		}
		detail.Messages = append(detail.Messages, view)
	}
	detail.TraceGroups = sess.store.TraceGroups()
	writeJSON(w, http.StatusOK, detail)
}

// handleSessionTraces returns every trace group of a session in creation
// order.
func (s *Server) handleSessionTraces(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.store.TraceGroups())
}

// handlePostMessage appends a user message, opening a new turn.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decoding request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "message content is required")
		return
	}

	m := sess.store.AddUserMessage(req.Content)
	if err := s.sessions.Persist(r.Context(), r.PathValue("id")); err != nil {
		s.logger.Error("persisting session", "session", r.PathValue("id"), "error", err)
	}
	writeJSON(w, http.StatusOK, m)
}

// handleIngestEvents applies a batch of stream events to a session. The
// transcript is persisted after the batch; a terminal event (done or error)
// is reported back, and later events in the same batch are still applied.
func (s *Server) handleIngestEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var events []stream.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, http.StatusBadRequest, "decoding events: "+err.Error())
		return
	}

	resp := IngestResponse{}
	for _, ev := range events {
		if sess.consumer.Apply(ev) {
			resp.Terminal = true
		}
		resp.Applied++
	}

	if err := s.sessions.Persist(r.Context(), r.PathValue("id")); err != nil {
		s.logger.Error("persisting session", "session", r.PathValue("id"), "error", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// maxStreamLine bounds one newline-delimited event.
const maxStreamLine = 16 * 1024 * 1024

// handleStreamEvents consumes newline-delimited stream events from the
// request body as they arrive. The session's consumer loop owns all store
// writes for the duration of the stream; the handler only decodes and feeds.
// Events applied before a decode error are kept, matching how a live stream
// that dies mid-turn leaves its partial transcript behind.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	resp := IngestResponse{}
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		return sess.consumer.Run(ctx)
	})
	g.Go(func() error {
		sc := bufio.NewScanner(r.Body)
		sc.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
		line := 0
		for sc.Scan() {
			line++
			raw := bytes.TrimSpace(sc.Bytes())
			if len(raw) == 0 {
				continue
			}
			var ev stream.Event
			if err := json.Unmarshal(raw, &ev); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			select {
			case sess.consumer.Events() <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
			resp.Applied++
			if ev.Kind == stream.EventDone || ev.Kind == stream.EventError {
				resp.Terminal = true
				return nil
			}
		}
		if err := sc.Err(); err != nil {
			return err
		}
		// The body ended without a terminal event. Close out the turn so the
		// consumer loop returns.
		select {
		case sess.consumer.Events() <- stream.Event{Kind: stream.EventDone}:
		case <-ctx.Done():
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		writeError(w, http.StatusBadRequest, "decoding events: "+err.Error())
		return
	}

	if err := s.sessions.Persist(r.Context(), r.PathValue("id")); err != nil {
		s.logger.Error("persisting session", "session", r.PathValue("id"), "error", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSessionUpdates streams one server-sent event per applied update until
// the client disconnects. The signal is coalescing, so a slow client sees at
// least one event for any burst of updates.
func (s *Server) handleSessionUpdates(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.consumer.Updates():
			fmt.Fprintf(w, "event: update\ndata: {\"session\": %q}\n\n", r.PathValue("id")) //nolint:errcheck
			flusher.Flush()
		}
	}
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return nil, false
	}
	return s.sessions.Get(r.Context(), id), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
