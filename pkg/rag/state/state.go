package state

import (
	"ai-docchat-be/pkg/document"
)

const (
	RoleHuman = "human"
	RoleAI    = "ai"
)

// Route is the classifier's verdict for a turn.
type Route string

const (
	RouteRetrieve Route = "retrieve"
	RouteDirect   Route = "direct"
)

// Valid reports whether r is one of the two known routes.
func (r Route) Valid() bool {
	return r == RouteRetrieve || r == RouteDirect
}

// Message is one conversation entry. Sources is only set on assistant messages
// produced after retrieval.
type Message struct {
	ID      string              `json:"id"`
	Role    string              `json:"role"`
	Content string              `json:"content"`
	Sources []document.Document `json:"sources,omitempty"`
}

// TurnState is the per-thread conversation state carried through the graph and checkpointed.
type TurnState struct {
	Messages  []Message           `json:"messages"`
	Query     string              `json:"query"`
	Route     Route               `json:"route,omitempty"`
	Documents document.Collection `json:"documents"`
}

// New returns an empty state with non-nil slices.
func New() *TurnState {
	return &TurnState{Messages: []Message{}, Documents: document.Collection{}}
}

// Clone returns a deep copy; mutating the copy never affects s.
func (s *TurnState) Clone() *TurnState {
	if s == nil {
		return New()
	}
	out := &TurnState{
		Query:     s.Query,
		Route:     s.Route,
		Messages:  make([]Message, len(s.Messages)),
		Documents: s.Documents.Clone(),
	}
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	if out.Documents == nil {
		out.Documents = document.Collection{}
	}
	return out
}

func (m Message) Clone() Message {
	out := m
	if m.Sources != nil {
		out.Sources = document.Collection(m.Sources).Clone()
	}
	return out
}

// LastMessage returns the final message, if any.
func (s *TurnState) LastMessage() (Message, bool) {
	if s == nil || len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Patch is the partial state a stage publishes when it completes.
type Patch struct {
	Messages  []Message           `json:"messages,omitempty"`
	Documents []document.Document `json:"documents,omitempty"`
	Route     Route               `json:"route,omitempty"`
}
