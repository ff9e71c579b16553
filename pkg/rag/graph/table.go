package graph

import (
	"errors"
	"fmt"

	"ai-docchat-be/pkg/rag/state"
)

// Node is a graph state. Stage nodes double as the keys of "updates" events.
type Node string

const (
	Start             Node = "START"
	ClassifyQuery     Node = "ClassifyQuery"
	RetrieveDocuments Node = "RetrieveDocuments"
	GenerateResponse  Node = "GenerateResponse"
	DirectAnswer      Node = "DirectAnswer"
	End               Node = "END"
)

var ErrNoTransition = errors.New("graph: no transition")

// Condition guards a transition. A nil Condition always matches.
type Condition func(s *state.TurnState) bool

type Transition struct {
	From Node
	When Condition
	To   Node
}

func routeIs(r state.Route) Condition {
	return func(s *state.TurnState) bool { return s.Route == r }
}

// Transitions is the turn state machine. The first matching row wins.
var Transitions = []Transition{
	{From: Start, To: ClassifyQuery},
	{From: ClassifyQuery, When: routeIs(state.RouteRetrieve), To: RetrieveDocuments},
	{From: ClassifyQuery, When: routeIs(state.RouteDirect), To: DirectAnswer},
	{From: RetrieveDocuments, To: GenerateResponse},
	{From: GenerateResponse, To: End},
	{From: DirectAnswer, To: End},
}

// Next evaluates table from the given node.
func Next(table []Transition, from Node, s *state.TurnState) (Node, error) {
	for _, t := range table {
		if t.From != from {
			continue
		}
		if t.When == nil || t.When(s) {
			return t.To, nil
		}
	}
	return "", fmt.Errorf("%w from %s (route %q)", ErrNoTransition, from, s.Route)
}
