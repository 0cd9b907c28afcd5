package webserver

import (
	"github.com/panoptic/traceview/internal/conversation"
	"github.com/panoptic/traceview/internal/render"
	"github.com/panoptic/traceview/internal/trace"
)

// Version is set at build time or defaults to dev.
var Version = "0.1.0-dev"

// HealthResponse is the GET /api/health body.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// MessageView is a transcript message with its display node and the trace
// groups belonging to its turn.
type MessageView struct {
	conversation.Message
	Display  render.Node    `json:"display"`
	Thinking []string       `json:"thinking,omitempty"`
	Traces   []*trace.Group `json:"traces,omitempty"`
}

// SessionDetail is the GET /api/sessions/{id} body.
type SessionDetail struct {
	ID          string         `json:"id"`
	Messages    []MessageView  `json:"messages"`
	TraceGroups []*trace.Group `json:"traceGroups"`
}

// PostMessageRequest is the POST /api/sessions/{id}/messages body.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// IngestResponse is the POST /api/sessions/{id}/events body.
type IngestResponse struct {
	Applied  int  `json:"applied"`
	Terminal bool `json:"terminal"`
}
