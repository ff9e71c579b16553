package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ai-docchat-be/pkg/rag/state"
)

// SchemaVersion is written into every encoded checkpoint.
const SchemaVersion = 1

var ErrCorrupt = errors.New("checkpoint: corrupt or unsupported payload")

// Store persists the turn state of a thread between turns.
type Store interface {
	// Load returns (nil, nil) when the thread has no checkpoint.
	Load(ctx context.Context, threadID string) (*state.TurnState, error)
	Save(ctx context.Context, threadID string, s *state.TurnState) error
	Delete(ctx context.Context, threadID string) error
}

type envelope struct {
	Version int             `json:"v"`
	State   json.RawMessage `json:"state"`
}

func Encode(s *state.TurnState) ([]byte, error) {
	if s == nil {
		s = state.New()
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return json.Marshal(envelope{Version: SchemaVersion, State: raw})
}

// Decode rejects payloads from a newer schema and anything that is not an envelope.
func Decode(data []byte) (*state.TurnState, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if env.Version < 1 || env.Version > SchemaVersion {
		return nil, fmt.Errorf("%w: version %d", ErrCorrupt, env.Version)
	}
	if len(env.State) == 0 {
		return nil, fmt.Errorf("%w: missing state", ErrCorrupt)
	}

	s := state.New()
	if err := json.Unmarshal(env.State, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if s.Messages == nil {
		s.Messages = []state.Message{}
	}
	if s.Documents == nil {
		s.Documents = state.New().Documents
	}
	return s, nil
}
