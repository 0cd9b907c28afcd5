package history

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/panoptic/traceview/internal/conversation"
	"github.com/panoptic/traceview/internal/validation"
)

// ItemsResponse is the GET /api/chat-history/{id} body.
type ItemsResponse struct {
	Items []conversation.Message `json:"items"`
}

// StoredResponse acknowledges a successful POST.
type StoredResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Handlers holds the HTTP handler methods for the chat-history API.
type Handlers struct {
	store Store
}

// NewHandlers creates a new Handlers with the given store.
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// HandleGet returns the stored transcript for a session. An unknown session
// returns an empty item list, not an error: clients treat any failed fetch as
// an empty history, so a 404 here buys nothing.
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	msgs, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			writeJSON(w, http.StatusOK, ItemsResponse{Items: []conversation.Message{}})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if r.URL.Query().Get("desc") == "true" {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit >= 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}
	writeJSON(w, http.StatusOK, ItemsResponse{Items: msgs})
}

// HandlePost stores transcript data for a session. An array body replaces the
// whole transcript; a single object is appended. Every item must pass schema
// validation or the request is rejected.
func (h *Handlers) HandlePost(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body: "+err.Error())
		return
	}

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		writeError(w, http.StatusBadRequest, "request body is required")
		return
	}

	switch trimmed[0] {
	case '[':
		var msgs []conversation.Message
		if errs := h.decodeItems(body, &msgs); len(errs) > 0 {
			writeError(w, http.StatusBadRequest, strings.Join(errs, "; "))
			return
		}
		if err := h.store.Put(r.Context(), id, msgs); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, StoredResponse{Message: "transcript stored", Count: len(msgs)})
	case '{':
		if errs := validation.ValidateMessageBytes(body); len(errs) > 0 {
			writeError(w, http.StatusBadRequest, strings.Join(errs, "; "))
			return
		}
		var msg conversation.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "decoding message: "+err.Error())
			return
		}
		if err := h.store.Append(r.Context(), id, msg); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, StoredResponse{Message: "message stored", Count: 1})
	default:
		writeError(w, http.StatusBadRequest, "request body must be a message or an array of messages")
	}
}

// decodeItems validates each element of a JSON array against the message
// schema, then unmarshals the array.
func (h *Handlers) decodeItems(body []byte, out *[]conversation.Message) []string {
	var rawItems []json.RawMessage
	if err := json.Unmarshal(body, &rawItems); err != nil {
		return []string{"decoding array: " + err.Error()}
	}
	var errs []string
	for i, raw := range rawItems {
		for _, e := range validation.ValidateMessageBytes(raw) {
			errs = append(errs, "item "+strconv.Itoa(i)+": "+e)
		}
	}
	if len(errs) > 0 {
		return errs
	}
	if err := json.Unmarshal(body, out); err != nil {
		return []string{"decoding array: " + err.Error()}
	}
	return nil
}

// RegisterRoutes registers chat-history routes on the given mux.
func RegisterRoutes(mux *http.ServeMux, store Store) {
	h := NewHandlers(store)
	mux.HandleFunc("GET /api/chat-history/{id}", h.HandleGet)
	mux.HandleFunc("POST /api/chat-history/{id}", h.HandlePost)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg, Code: code})
}
