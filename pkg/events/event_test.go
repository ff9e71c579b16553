package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name  string
		event BaseEvent
		want  string
	}{
		{"started", TurnStarted("t1", "hi"), TypeTurnStarted},
		{"completed", TurnCompleted("t1", "hi", "direct", 0), TypeTurnCompleted},
		{"failed", TurnFailed("t1", "boom"), TypeTurnFailed},
		{"cancelled", TurnCancelled("t1"), TypeTurnCancelled},
		{"ingest", IngestCompleted("t1", "a.pdf", 2, 5), TypeIngestCompleted},
		{"deleted", ConversationDeleted("t1"), TypeConversationDeleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.EventType())
			assert.Equal(t, "t1", tt.event.String("thread_id"))
			assert.False(t, tt.event.Timestamp().IsZero())
		})
	}
}

func TestString_MissingOrWrongType(t *testing.T) {
	e := TurnCompleted("t1", "q", "retrieve", 3)
	assert.Equal(t, "", e.String("nope"))
	assert.Equal(t, "", e.String("sources"))
	assert.Equal(t, "q", e.String("query"))
}
