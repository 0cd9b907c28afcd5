package stream

import (
	"encoding/json"
	"fmt"

	"github.com/panoptic/traceview/internal/trace"
)

// kindNames maps EventKind values to their wire names.
var kindNames = map[EventKind]string{
	EventUser:     "user",
	EventText:     "text",
	EventThinking: "thinking",
	EventTrace:    "trace",
	EventDone:     "done",
	EventError:    "error",
}

var kindValues = func() map[string]EventKind {
	m := make(map[string]EventKind, len(kindNames))
	for k, v := range kindNames {
		m[v] = k
	}
	return m
}()

// eventJSON is the wire form of an Event. The same shape is used by the
// ingest endpoint and by recorded replay files.
type eventJSON struct {
	Kind    string         `json:"kind"`
	Text    string         `json:"text,omitempty"`
	Trace   trace.Envelope `json:"trace,omitempty"`
	Message string         `json:"message,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	name, ok := kindNames[e.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind %d", int(e.Kind))
	}
	return json.Marshal(eventJSON{
		Kind:    name,
		Text:    e.Text,
		Trace:   e.Trace,
		Message: e.Message,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, ok := kindValues[raw.Kind]
	if !ok {
		return fmt.Errorf("unknown event kind %q", raw.Kind)
	}
	*e = Event{
		Kind:    kind,
		Text:    raw.Text,
		Trace:   raw.Trace,
		Message: raw.Message,
	}
	return nil
}
