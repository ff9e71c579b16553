package events

import "time"

// Event type codes. Published on subject "events.<type>".
const (
	TypeTurnStarted         = "turn.started"
	TypeTurnCompleted       = "turn.completed"
	TypeTurnFailed          = "turn.failed"
	TypeTurnCancelled       = "turn.cancelled"
	TypeIngestCompleted     = "ingest.completed"
	TypeConversationDeleted = "conversation.deleted"
)

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g. "turn.completed").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is the only Event implementation; the constructors below fill it.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// String returns a payload field, or "" when missing or not a string.
func (e BaseEvent) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

func newEvent(eventType, threadID string, data map[string]interface{}) BaseEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["thread_id"] = threadID
	return BaseEvent{Type: eventType, Data: data, OccurredAt: time.Now().UTC()}
}

func TurnStarted(threadID, query string) BaseEvent {
	return newEvent(TypeTurnStarted, threadID, map[string]interface{}{"query": query})
}

// TurnCompleted carries the first query so a consumer can title an untitled conversation.
func TurnCompleted(threadID, query, route string, sources int) BaseEvent {
	return newEvent(TypeTurnCompleted, threadID, map[string]interface{}{
		"query":   query,
		"route":   route,
		"sources": sources,
	})
}

func TurnFailed(threadID, reason string) BaseEvent {
	return newEvent(TypeTurnFailed, threadID, map[string]interface{}{"error": reason})
}

func TurnCancelled(threadID string) BaseEvent {
	return newEvent(TypeTurnCancelled, threadID, nil)
}

func IngestCompleted(threadID, source string, documents, chunks int) BaseEvent {
	return newEvent(TypeIngestCompleted, threadID, map[string]interface{}{
		"source":    source,
		"documents": documents,
		"chunks":    chunks,
	})
}

func ConversationDeleted(threadID string) BaseEvent {
	return newEvent(TypeConversationDeleted, threadID, nil)
}
