// Package stream consumes a live agent response stream and applies it to a
// conversation store. One goroutine owns all store writes for a stream, so
// readers only ever observe complete updates.
package stream

import (
	"context"
	"log/slog"

	"github.com/panoptic/traceview/internal/conversation"
	"github.com/panoptic/traceview/internal/trace"
)

// EventKind discriminates stream events.
type EventKind int

const (
	// EventUser is a user message opening a new turn.
	EventUser EventKind = iota
	// EventText is a chunk of the assistant's answer.
	EventText
	// EventThinking is an intermediate reasoning update.
	EventThinking
	// EventTrace is a raw trace envelope.
	EventTrace
	// EventDone marks a completed turn.
	EventDone
	// EventError marks a failed turn. The stream ends after it.
	EventError
)

// Event is one item from an agent response stream.
type Event struct {
	Kind    EventKind
	Text    string
	Trace   trace.Envelope
	Message string
}

// Consumer feeds stream events into a conversation store.
type Consumer struct {
	store  *conversation.Store
	logger *slog.Logger

	events  chan Event
	updates chan struct{}
}

// NewConsumer creates a consumer writing into store. Callers send events via
// Events and run the loop with Run.
func NewConsumer(store *conversation.Store, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		store:   store,
		logger:  logger,
		events:  make(chan Event, 64),
		updates: make(chan struct{}, 1),
	}
}

// Events is the channel producers send stream events on. Close it to end the
// stream without a terminal event.
func (c *Consumer) Events() chan<- Event {
	return c.events
}

// Updates signals after each applied event. The channel is coalescing: a slow
// reader sees at least one signal for any burst of updates.
func (c *Consumer) Updates() <-chan struct{} {
	return c.updates
}

// Run applies events to the store until the stream ends, a terminal event
// arrives, or ctx is cancelled. It is the only writer to the store for the
// duration of the stream.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.events:
			if !ok {
				c.store.FinishTurn()
				c.signal()
				return nil
			}
			if terminal := c.Apply(ev); terminal {
				return nil
			}
		}
	}
}

// Apply writes one event to the store and reports whether it ended the
// stream. Synchronous feeders (HTTP ingest, replay) call it directly instead
// of going through Run.
func (c *Consumer) Apply(ev Event) bool {
	switch ev.Kind {
	case EventUser:
		c.store.AddUserMessage(ev.Text)
	case EventText:
		c.store.AppendAssistantChunk(ev.Text)
	case EventThinking:
		c.store.AddThinkingUpdate(ev.Text)
	case EventTrace:
		c.store.AddTrace(ev.Trace)
	case EventDone:
		c.store.FinishTurn()
		c.signal()
		return true
	case EventError:
		msg := ev.Message
		if msg == "" {
			msg = "stream failed with unknown error"
		}
		c.logger.Error("stream error", "message", msg)
		c.store.SetError(msg)
		c.signal()
		return true
	default:
		c.logger.Warn("ignoring unknown stream event", "kind", int(ev.Kind))
		return false
	}
	c.signal()
	return false
}

func (c *Consumer) signal() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}
