package stream

import (
	"encoding/json"
	"fmt"

	"ai-docchat-be/pkg/rag/state"
)

// Kind names an event on the wire.
type Kind string

const (
	KindUpdates Kind = "updates"
	KindPartial Kind = "messages/partial"
	KindError   Kind = "error"
	// KindDone closes a successful turn once its state is saved.
	KindDone Kind = "done"
)

func (k Kind) Known() bool {
	switch k {
	case KindUpdates, KindPartial, KindError, KindDone:
		return true
	}
	return false
}

// Event is one frame of a turn's stream. Data is the kind-specific payload.
type Event struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Updates builds an "updates" event keyed by the stage that produced patch.
func Updates(stage string, patch state.Patch) (Event, error) {
	return newEvent(KindUpdates, map[string]state.Patch{stage: patch})
}

// Partial builds a "messages/partial" event carrying the whole in-flight message list.
func Partial(messages []state.Message) (Event, error) {
	return newEvent(KindPartial, messages)
}

func Error(message string) Event {
	ev, err := newEvent(KindError, ErrorPayload{Message: message})
	if err != nil {
		// a struct with one string field always marshals
		panic(err)
	}
	return ev
}

func Done() Event {
	return Event{Event: KindDone, Data: json.RawMessage(`{}`)}
}

func newEvent(kind Kind, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Event{Event: kind, Data: data}, nil
}

// DecodeUpdates reads the stage-keyed patches of an "updates" event.
func (e Event) DecodeUpdates() (map[string]state.Patch, error) {
	if e.Event != KindUpdates {
		return nil, fmt.Errorf("event is %q, not updates", e.Event)
	}
	var out map[string]state.Patch
	if err := json.Unmarshal(e.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodePartial reads the message list of a "messages/partial" event.
func (e Event) DecodePartial() ([]state.Message, error) {
	if e.Event != KindPartial {
		return nil, fmt.Errorf("event is %q, not messages/partial", e.Event)
	}
	var out []state.Message
	if err := json.Unmarshal(e.Data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ErrorMessage returns the message of an error event, or "" when absent.
func (e Event) ErrorMessage() string {
	var p ErrorPayload
	if err := json.Unmarshal(e.Data, &p); err == nil {
		return p.Message
	}
	var s string
	if err := json.Unmarshal(e.Data, &s); err == nil {
		return s
	}
	return ""
}
