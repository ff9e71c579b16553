package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ai-docchat-be/internal/dto"
	"ai-docchat-be/internal/metrics"
	"ai-docchat-be/internal/pkg/logger"
	"ai-docchat-be/internal/pkg/serverutils"
	"ai-docchat-be/internal/tracer"
	"ai-docchat-be/pkg/checkpoint"
	"ai-docchat-be/pkg/events"
	"ai-docchat-be/pkg/llm"
	"ai-docchat-be/pkg/llm/factory"
	"ai-docchat-be/pkg/rag/graph"
	"ai-docchat-be/pkg/rag/state"
	"ai-docchat-be/pkg/retrieval"
	"ai-docchat-be/pkg/stream"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const chatModule = "CHAT_SERVICE"

var ErrTurnCancelled = errors.New("turn cancelled")

// EventPublisher is satisfied by the NATS publisher.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// ThreadNotifier pushes lifecycle events to WebSocket watchers of a thread.
type ThreadNotifier interface {
	Publish(event events.Event)
}

// ActivityRecorder bumps a conversation after a turn. It is called directly when no
// event bus is available.
type ActivityRecorder interface {
	RecordTurn(ctx context.Context, threadID, query string) error
}

// GraphFactory builds the turn graph for a completion provider ("openai", "ollama").
type GraphFactory func(provider string) (*graph.Graph, error)

// RetrieverFactory scopes retrieval to a thread and optional metadata filters.
type RetrieverFactory func(threadID string, filter map[string]interface{}) retrieval.Retriever

type ChatServiceConfig struct {
	InstanceID      string
	DefaultProvider string
	EventBuffer     int
}

type ChatDeps struct {
	Checkpoints checkpoint.Store
	Graphs      GraphFactory
	Retrievers  RetrieverFactory
	Publisher   EventPublisher
	Notifier    ThreadNotifier
	Activity    ActivityRecorder
	Redis       *redis.Client
	Logger      logger.ILogger
}

type IChatService interface {
	StartTurn(ctx context.Context, req *dto.ChatRequest) (*Turn, error)
	// Cancel stops the thread's running turn; false when none runs on this instance.
	Cancel(ctx context.Context, threadID string) bool
	// ListenForCancels applies cancellations requested by other instances until ctx ends.
	ListenForCancels(ctx context.Context)
}

// Turn is one running question/answer exchange.
type Turn struct {
	ID       string
	ThreadID string

	events <-chan stream.Event
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Events yields the turn's stream in order and is closed when the turn ends.
func (t *Turn) Events() <-chan stream.Event { return t.events }

func (t *Turn) Cancel() { t.cancel() }

func (t *Turn) Done() <-chan struct{} { return t.done }

// Err is the turn's outcome; only meaningful after Done is closed.
func (t *Turn) Err() error { return t.err }

type chatService struct {
	cfg      ChatServiceConfig
	deps     ChatDeps
	registry *turnRegistry
	logger   logger.ILogger

	mu     sync.Mutex
	graphs map[string]*graph.Graph
}

func NewChatService(cfg ChatServiceConfig, deps ChatDeps) IChatService {
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 16
	}
	return &chatService{
		cfg:      cfg,
		deps:     deps,
		registry: newTurnRegistry(deps.Redis, cfg.InstanceID, deps.Logger),
		logger:   deps.Logger,
		graphs:   make(map[string]*graph.Graph),
	}
}

func (s *chatService) StartTurn(ctx context.Context, req *dto.ChatRequest) (*Turn, error) {
	conf := req.Configurable()

	g, opts, err := s.graphFor(conf.QueryModel)
	if err != nil {
		return nil, err
	}

	// the turn outlives the request that started it; only Cancel or a newer turn stops it
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	emitter := stream.NewChannelEmitter(s.cfg.EventBuffer)
	turn := &Turn{
		ID:       uuid.NewString(),
		ThreadID: req.ThreadId,
		events:   emitter.Events(),
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if prev := s.registry.register(ctx, turn); prev != nil {
		// a superseded turn never saves, but it may be mid-save when cancelled
		select {
		case <-prev.done:
		case <-ctx.Done():
			s.abort(turn, emitter)
			return nil, ctx.Err()
		}
	}

	prior, err := s.deps.Checkpoints.Load(ctx, req.ThreadId)
	if err != nil {
		if !errors.Is(err, checkpoint.ErrCorrupt) {
			s.abort(turn, emitter)
			return nil, serverutils.Internal("Failed to load conversation state", err)
		}
		s.logger.Warn(chatModule, "Discarding unreadable checkpoint", map[string]interface{}{
			"thread_id": req.ThreadId,
			"error":     err.Error(),
		})
		prior = nil
	}

	var retriever retrieval.Retriever
	if s.deps.Retrievers != nil {
		retriever = s.deps.Retrievers(req.ThreadId, conf.FilterKwargs)
	}

	in := graph.Input{
		ThreadID:   req.ThreadId,
		Prior:      prior,
		Query:      req.Message,
		Retriever:  retriever,
		K:          conf.K,
		LLMOptions: opts,
	}

	go s.run(runCtx, turn, g, in, emitter)
	return turn, nil
}

func (s *chatService) Cancel(ctx context.Context, threadID string) bool {
	return s.registry.cancel(ctx, threadID)
}

func (s *chatService) ListenForCancels(ctx context.Context) {
	s.registry.listen(ctx)
}

func (s *chatService) abort(turn *Turn, emitter *stream.ChannelEmitter) {
	turn.cancel()
	turn.err = ErrTurnCancelled
	emitter.Close()
	s.registry.release(turn)
	close(turn.done)
}

// run drives one turn and applies the save policy: a successful turn is saved before
// "done" is emitted, a generation failure keeps the question without an answer, and a
// cancelled turn is never saved.
func (s *chatService) run(ctx context.Context, turn *Turn, g *graph.Graph, in graph.Input, emitter *stream.ChannelEmitter) {
	defer close(turn.done)
	defer s.registry.release(turn)
	defer emitter.Close()
	defer turn.cancel()

	s.publish(ctx, events.TurnStarted(turn.ThreadID, in.Query))

	ctx, span := tracer.StartTurn(ctx, turn.ThreadID, turn.ID)
	final, err := g.Run(ctx, in, emitter)
	route := ""
	if final != nil {
		route = string(final.Route)
	}
	defer func() { span.End(route, spanOutcome(ctx, turn.err), turn.err) }()

	switch {
	case ctx.Err() != nil:
		s.cancelled(ctx, turn, route)

	case err == nil:
		if saveErr := s.deps.Checkpoints.Save(ctx, turn.ThreadID, final); saveErr != nil {
			if ctx.Err() != nil {
				s.cancelled(ctx, turn, route)
				return
			}
			turn.err = fmt.Errorf("save checkpoint: %w", saveErr)
			s.logger.Error(chatModule, "Failed to save checkpoint", map[string]interface{}{
				"thread_id": turn.ThreadID,
				"error":     saveErr.Error(),
			})
			_ = emitter.Emit(ctx, stream.Error("Failed to save the conversation"))
			s.failed(ctx, turn, route, turn.err)
			return
		}
		if emitErr := emitter.Emit(ctx, stream.Done()); emitErr != nil {
			s.logger.Warn(chatModule, "Client left before done", map[string]interface{}{
				"thread_id": turn.ThreadID,
				"error":     emitErr.Error(),
			})
		}

		metrics.TurnFinished(route, metrics.OutcomeSuccess)
		s.logger.Info(chatModule, "Turn completed", map[string]interface{}{
			"thread_id": turn.ThreadID,
			"turn_id":   turn.ID,
			"route":     route,
		})
		if !s.publish(ctx, events.TurnCompleted(turn.ThreadID, in.Query, route, sourceCount(final))) {
			s.recordActivity(ctx, turn.ThreadID, in.Query)
		}

	case errors.Is(err, graph.ErrGeneration):
		turn.err = err
		if saveErr := s.deps.Checkpoints.Save(ctx, turn.ThreadID, final); saveErr != nil {
			s.logger.Error(chatModule, "Failed to save checkpoint after generation failure", map[string]interface{}{
				"thread_id": turn.ThreadID,
				"error":     saveErr.Error(),
			})
		}
		s.failed(ctx, turn, route, err)
		s.recordActivity(ctx, turn.ThreadID, in.Query)

	default:
		turn.err = err
		s.failed(ctx, turn, route, err)
	}
}

func (s *chatService) cancelled(ctx context.Context, turn *Turn, route string) {
	turn.err = ErrTurnCancelled
	metrics.TurnFinished(route, metrics.OutcomeCancelled)
	s.logger.Info(chatModule, "Turn cancelled", map[string]interface{}{
		"thread_id": turn.ThreadID,
		"turn_id":   turn.ID,
	})
	s.publish(ctx, events.TurnCancelled(turn.ThreadID))
}

func (s *chatService) failed(ctx context.Context, turn *Turn, route string, err error) {
	metrics.TurnFinished(route, metrics.OutcomeFailed)
	s.publish(ctx, events.TurnFailed(turn.ThreadID, err.Error()))
}

// publish notifies WebSocket watchers and the event bus. It reports whether the bus took it.
func (s *chatService) publish(ctx context.Context, ev events.Event) bool {
	if s.deps.Notifier != nil {
		s.deps.Notifier.Publish(ev)
	}
	if s.deps.Publisher == nil {
		return false
	}
	if err := s.deps.Publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn(chatModule, "Failed to publish event", map[string]interface{}{
			"event": ev.EventType(),
			"error": err.Error(),
		})
		return false
	}
	return true
}

func (s *chatService) recordActivity(ctx context.Context, threadID, query string) {
	if s.deps.Activity == nil {
		return
	}
	if err := s.deps.Activity.RecordTurn(context.WithoutCancel(ctx), threadID, query); err != nil {
		s.logger.Warn(chatModule, "Failed to record conversation activity", map[string]interface{}{
			"thread_id": threadID,
			"error":     err.Error(),
		})
	}
}

// graphFor resolves an optional "provider/model" override. Graphs are built once per provider;
// the model travels as a per-call option.
func (s *chatService) graphFor(queryModel string) (*graph.Graph, []llm.Option, error) {
	provider := s.cfg.DefaultProvider
	var opts []llm.Option
	if queryModel != "" {
		p, model, err := factory.ParseModelName(queryModel)
		if err != nil {
			return nil, nil, serverutils.BadRequest(err.Error())
		}
		provider = p
		opts = append(opts, llm.WithModel(model))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.graphs[provider]; ok {
		return g, opts, nil
	}
	g, err := s.deps.Graphs(provider)
	if err != nil {
		s.logger.Warn(chatModule, "Cannot build graph for provider", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		return nil, nil, serverutils.BadRequest(fmt.Sprintf("Unsupported query model %q", queryModel))
	}
	s.graphs[provider] = g
	return g, opts, nil
}

func spanOutcome(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return metrics.OutcomeCancelled
	case err != nil:
		return metrics.OutcomeFailed
	}
	return metrics.OutcomeSuccess
}

func sourceCount(s *state.TurnState) int {
	msg, ok := s.LastMessage()
	if !ok {
		return 0
	}
	return len(msg.Sources)
}
