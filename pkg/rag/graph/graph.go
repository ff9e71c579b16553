package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-docchat-be/pkg/document"
	"ai-docchat-be/pkg/llm"
	"ai-docchat-be/pkg/rag/classifier"
	"ai-docchat-be/pkg/rag/prompt"
	"ai-docchat-be/pkg/rag/state"
	"ai-docchat-be/pkg/retrieval"
	"ai-docchat-be/pkg/stream"

	"github.com/google/uuid"
)

const module = "RAG_GRAPH"

var (
	// ErrGeneration marks a completion failure. The turn is failed and an error event was emitted.
	ErrGeneration = errors.New("graph: generation failed")
	ErrStepLimit  = errors.New("graph: step limit exceeded")
)

// Logger is the logging contract the graph needs; internal/pkg/logger.ILogger satisfies it.
type Logger interface {
	Info(module, message string, details map[string]interface{})
	Warn(module, message string, details map[string]interface{})
	Error(module, message string, details map[string]interface{})
}

// Observer receives per-stage measurements.
type Observer interface {
	StageCompleted(stage Node, elapsed time.Duration, err error)
	ClassifierFallback(reason string)
	DocumentsRetrieved(n int)
}

type Config struct {
	// TopK is used when the turn input does not set K.
	TopK int
	// MaxSteps bounds the interpreter loop.
	MaxSteps int
	// RefuseWithoutDocuments answers with a fixed refusal, without calling the
	// model, when the retrieve path has no documents at all.
	RefuseWithoutDocuments bool
	// ResetDocumentsPerTurn clears the document collection when a turn starts.
	ResetDocumentsPerTurn bool
}

type Deps struct {
	Classifier  *classifier.Classifier
	Completion  llm.LLMProvider
	Prompts     *prompt.Builder
	Logger      Logger
	Observer    Observer
	Transitions []Transition
	NewID       func() string
}

// Input is everything one turn needs besides the graph's own wiring.
type Input struct {
	ThreadID string
	// Prior is the checkpointed state; nil starts an empty conversation. It is never modified.
	Prior *state.TurnState
	Query string
	// Retriever is already scoped to the thread. Nil behaves like an empty index.
	Retriever retrieval.Retriever
	K         int
	// LLMOptions apply to every completion call of the turn (e.g. a per-request model).
	LLMOptions []llm.Option
}

type stageFunc func(ctx context.Context, r *run) error

type Graph struct {
	cfg         Config
	transitions []Transition
	stages      map[Node]stageFunc
	classifier  *classifier.Classifier
	completion  llm.LLMProvider
	prompts     *prompt.Builder
	reducer     document.Reducer
	logger      Logger
	observer    Observer
	newID       func() string
}

// run is the mutable context of a single turn.
type run struct {
	in        Input
	state     *state.TurnState
	emit      stream.Emitter
	retrieved []document.Document
}

func New(cfg Config, deps Deps) *Graph {
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultK
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 16
	}

	g := &Graph{
		cfg:         cfg,
		transitions: deps.Transitions,
		classifier:  deps.Classifier,
		completion:  deps.Completion,
		prompts:     deps.Prompts,
		logger:      deps.Logger,
		observer:    deps.Observer,
		newID:       deps.NewID,
	}
	if g.transitions == nil {
		g.transitions = Transitions
	}
	if g.prompts == nil {
		g.prompts = prompt.NewBuilder(0)
	}
	if g.classifier == nil {
		g.classifier = classifier.New(deps.Completion, g.prompts)
	}
	if g.logger == nil {
		g.logger = nopLogger{}
	}
	if g.observer == nil {
		g.observer = nopObserver{}
	}
	if g.newID == nil {
		g.newID = uuid.NewString
	}
	g.reducer = document.Reducer{NewID: g.newID}

	g.stages = map[Node]stageFunc{
		ClassifyQuery:     g.classifyQuery,
		RetrieveDocuments: g.retrieveDocuments,
		GenerateResponse:  g.generateResponse,
		DirectAnswer:      g.directAnswer,
	}
	return g
}

// Run executes one turn. It returns the final state on success.
//
// On a completion failure it emits an error event and returns the state holding the
// new user message but no assistant message, with an error wrapping ErrGeneration.
// On cancellation it returns ctx.Err() and emits nothing further.
func (g *Graph) Run(ctx context.Context, in Input, emit stream.Emitter) (*state.TurnState, error) {
	s := in.Prior.Clone()
	if g.cfg.ResetDocumentsPerTurn {
		s.Documents, _ = g.reducer.Reduce(s.Documents, document.ClearCommand{})
	}
	s.Query = in.Query
	s.Route = ""
	s.Messages = append(s.Messages, state.Message{ID: g.newID(), Role: state.RoleHuman, Content: in.Query})

	r := &run{in: in, state: s, emit: emit}

	node := Start
	for step := 0; ; step++ {
		if step >= g.cfg.MaxSteps {
			return s, g.fail(ctx, r, fmt.Errorf("%w after %d steps", ErrStepLimit, step))
		}

		next, err := Next(g.transitions, node, s)
		if err != nil {
			return s, g.fail(ctx, r, err)
		}
		if next == End {
			return s, nil
		}

		stage, ok := g.stages[next]
		if !ok {
			return s, g.fail(ctx, r, fmt.Errorf("graph: no stage registered for %s", next))
		}

		started := time.Now()
		err = stage(ctx, r)
		g.observer.StageCompleted(next, time.Since(started), err)

		if ctx.Err() != nil {
			g.logger.Info(module, "Turn cancelled", map[string]interface{}{
				"thread_id": in.ThreadID,
				"stage":     string(next),
			})
			return s, fmt.Errorf("turn cancelled in %s: %w", next, ctx.Err())
		}
		if err != nil {
			return s, g.fail(ctx, r, fmt.Errorf("%s: %w", next, err))
		}
		node = next
	}
}

// fail reports a fatal turn error to the client. Cancellation never reaches here.
func (g *Graph) fail(ctx context.Context, r *run, err error) error {
	g.logger.Error(module, "Turn failed", map[string]interface{}{
		"thread_id": r.in.ThreadID,
		"error":     err.Error(),
	})
	if emitErr := r.emit.Emit(ctx, stream.Error(err.Error())); emitErr != nil {
		return errors.Join(err, emitErr)
	}
	return err
}

func (g *Graph) emitUpdate(ctx context.Context, r *run, node Node, patch state.Patch) error {
	ev, err := stream.Updates(string(node), patch)
	if err != nil {
		return err
	}
	return r.emit.Emit(ctx, ev)
}

type nopLogger struct{}

func (nopLogger) Info(string, string, map[string]interface{}) {}
func (nopLogger) Warn(string, string, map[string]interface{}) {}
func (nopLogger) Error(string, string, map[string]interface{}) {}

type nopObserver struct{}

func (nopObserver) StageCompleted(Node, time.Duration, error) {}
func (nopObserver) ClassifierFallback(string) {}
func (nopObserver) DocumentsRetrieved(int) {}
