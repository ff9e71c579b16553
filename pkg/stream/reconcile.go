package stream

import (
	"strings"

	"ai-docchat-be/pkg/document"
	"ai-docchat-be/pkg/rag/state"
)

// FailureMessage replaces the assistant reply of a turn that ended in an error event.
const FailureMessage = "Sorry, something went wrong while generating the answer. Please try again."

// Stages whose "updates" carry the authoritative assistant message.
const (
	stageRetrieve = "RetrieveDocuments"
	stageGenerate = "GenerateResponse"
	stageDirect   = "DirectAnswer"
)

// Entry is one rendered conversation line.
type Entry struct {
	Role    string              `json:"role" yaml:"role"`
	Content string              `json:"content" yaml:"content"`
	Sources []document.Document `json:"sources,omitempty" yaml:"sources,omitempty"`
	// Pending marks the in-flight assistant entry until a final update, error or done arrives.
	Pending bool `json:"pending,omitempty" yaml:"pending,omitempty"`
}

// DisplayState is an immutable snapshot of what the client shows. Every Apply
// returns a new value and never modifies its input.
type DisplayState struct {
	Messages      []Entry             `json:"messages" yaml:"messages"`
	LastRetrieved []document.Document `json:"-" yaml:"-"`
	Failed        bool                `json:"failed,omitempty" yaml:"failed,omitempty"`
	Done          bool                `json:"done,omitempty" yaml:"done,omitempty"`
}

// Submit appends the user's entry and the pending assistant entry synchronously,
// before any event of the turn arrives.
func Submit(s DisplayState, query string) DisplayState {
	out := s.clone()
	out.LastRetrieved = nil
	out.Failed = false
	out.Done = false
	out.Messages = append(out.Messages,
		Entry{Role: state.RoleHuman, Content: query},
		Entry{Role: state.RoleAI, Pending: true},
	)
	return out
}

// Apply folds one event into the display state.
func Apply(s DisplayState, ev Event) DisplayState {
	switch ev.Event {
	case KindUpdates:
		patches, err := ev.DecodeUpdates()
		if err != nil {
			return s
		}
		out := s.clone()
		if p, ok := patches[stageRetrieve]; ok {
			out.LastRetrieved = document.Collection(p.Documents).Clone()
		}
		for _, stage := range []string{stageGenerate, stageDirect} {
			p, ok := patches[stage]
			if !ok {
				continue
			}
			if msg, ok := lastAssistant(p.Messages); ok {
				out.setTrailing(msg.Content, out.LastRetrieved, false)
			}
		}
		return out

	case KindPartial:
		msgs, err := ev.DecodePartial()
		if err != nil || len(msgs) == 0 {
			return s
		}
		last := msgs[len(msgs)-1]
		if last.Role != state.RoleAI || last.Content == "" || strings.HasPrefix(last.Content, "{") {
			return s
		}
		out := s.clone()
		out.setTrailing(last.Content, out.LastRetrieved, true)
		return out

	case KindError:
		out := s.clone()
		out.setTrailing(FailureMessage, nil, false)
		out.Failed = true
		return out

	case KindDone:
		out := s.clone()
		if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == state.RoleAI {
			out.Messages[n-1].Pending = false
		}
		out.Done = true
		return out
	}
	return s
}

// Replay submits query and folds events in order.
func Replay(query string, events []Event) DisplayState {
	s := Submit(DisplayState{}, query)
	for _, ev := range events {
		s = Apply(s, ev)
	}
	return s
}

// Trailing returns the current assistant entry, if one exists.
func (s DisplayState) Trailing() (Entry, bool) {
	if n := len(s.Messages); n > 0 && s.Messages[n-1].Role == state.RoleAI {
		return s.Messages[n-1], true
	}
	return Entry{}, false
}

// setTrailing overwrites the in-flight assistant entry, creating it only when the
// conversation does not end with one.
func (s *DisplayState) setTrailing(content string, sources []document.Document, pending bool) {
	entry := Entry{
		Role:    state.RoleAI,
		Content: content,
		Sources: document.Collection(sources).Clone(),
		Pending: pending,
	}
	if n := len(s.Messages); n > 0 && s.Messages[n-1].Role == state.RoleAI {
		s.Messages[n-1] = entry
		return
	}
	s.Messages = append(s.Messages, entry)
}

func (s DisplayState) clone() DisplayState {
	out := s
	out.Messages = make([]Entry, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}

func lastAssistant(msgs []state.Message) (state.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == state.RoleAI {
			return msgs[i], true
		}
	}
	return state.Message{}, false
}
