package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ai-docchat-be/internal/constant"
	"ai-docchat-be/pkg/document"
	"ai-docchat-be/pkg/llm"
	"ai-docchat-be/pkg/rag/state"
	"ai-docchat-be/pkg/stream"
)

// emitError marks a failure to deliver an event, as opposed to a provider failure.
type emitError struct{ err error }

func (e emitError) Error() string { return "emit: " + e.err.Error() }
func (e emitError) Unwrap() error { return e.err }

// classifyQuery writes the route. It never fails: the classifier falls back to retrieve.
func (g *Graph) classifyQuery(ctx context.Context, r *run) error {
	res := g.classifier.Classify(ctx, r.state.Query, r.state.Messages, r.in.LLMOptions...)
	if res.Fallback {
		g.observer.ClassifierFallback(res.Reason)
		g.logger.Warn(module, "Classifier fallback", map[string]interface{}{
			"thread_id": r.in.ThreadID,
			"route":     string(res.Route),
			"reason":    res.Reason,
		})
	}
	r.state.Route = res.Route
	return g.emitUpdate(ctx, r, ClassifyQuery, state.Patch{Route: res.Route})
}

// retrieveDocuments merges this turn's hits into the collection. A retriever error
// degrades to whatever documents came back (usually none).
func (g *Graph) retrieveDocuments(ctx context.Context, r *run) error {
	var hits []document.Document
	if r.in.Retriever != nil {
		k := r.in.K
		if k <= 0 {
			k = g.cfg.TopK
		}
		docs, err := r.in.Retriever.Search(ctx, r.state.Query, k)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.Warn(module, "Retrieval failed, continuing without new documents", map[string]interface{}{
				"thread_id": r.in.ThreadID,
				"error":     err.Error(),
				"partial":   len(docs),
			})
		}
		hits = docs
	}

	onDrop := func(index int, reason string) {
		g.logger.Warn(module, "Dropped retrieved element", map[string]interface{}{
			"thread_id": r.in.ThreadID,
			"index":     index,
			"reason":    reason,
		})
	}
	reducer := g.reducer
	reducer.OnDrop = onDrop

	// normalise once so the ids in the event, the sources and the collection agree
	turnDocs, err := reducer.Reduce(nil, document.Batch(hits...))
	if err != nil {
		return err
	}
	merged, err := reducer.Reduce(r.state.Documents, document.Batch(turnDocs...))
	if err != nil {
		return err
	}
	r.state.Documents = merged
	r.retrieved = turnDocs

	g.observer.DocumentsRetrieved(len(turnDocs))
	g.logger.Info(module, "Documents retrieved", map[string]interface{}{
		"thread_id":  r.in.ThreadID,
		"retrieved":  len(turnDocs),
		"collection": len(merged),
	})

	return g.emitUpdate(ctx, r, RetrieveDocuments, state.Patch{Documents: turnDocs})
}

func (g *Graph) generateResponse(ctx context.Context, r *run) error {
	if g.cfg.RefuseWithoutDocuments && len(r.state.Documents) == 0 {
		g.logger.Info(module, "No documents available, refusing", map[string]interface{}{
			"thread_id": r.in.ThreadID,
		})
		msg := state.Message{ID: g.newID(), Role: state.RoleAI, Content: constant.NoDocumentsRefusal}
		r.state.Messages = append(r.state.Messages, msg)
		return g.emitUpdate(ctx, r, GenerateResponse, state.Patch{Messages: []state.Message{msg}})
	}

	prompt := g.prompts.Grounded(r.state.Messages, r.state.Query, r.state.Documents)
	return g.answer(ctx, r, GenerateResponse, prompt, r.retrieved)
}

func (g *Graph) directAnswer(ctx context.Context, r *run) error {
	return g.answer(ctx, r, DirectAnswer, g.prompts.Direct(r.state.Query), nil)
}

// answer streams one assistant message. Each delta republishes a snapshot of the same
// placeholder message; the message is appended to state only once the stream completes.
func (g *Graph) answer(ctx context.Context, r *run, node Node, prompt []llm.Message, sources []document.Document) error {
	if g.completion == nil {
		return fmt.Errorf("%w: no completion provider", ErrGeneration)
	}

	id := g.newID()
	var sb strings.Builder
	onChunk := func(delta string) error {
		sb.WriteString(delta)
		snapshot := make([]state.Message, len(r.state.Messages), len(r.state.Messages)+1)
		copy(snapshot, r.state.Messages)
		snapshot = append(snapshot, state.Message{ID: id, Role: state.RoleAI, Content: sb.String()})

		ev, err := stream.Partial(snapshot)
		if err != nil {
			return emitError{err}
		}
		if err := r.emit.Emit(ctx, ev); err != nil {
			return emitError{err}
		}
		return nil
	}

	full, err := g.completion.ChatStream(ctx, prompt, onChunk, r.in.LLMOptions...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var ee emitError
		if errors.As(err, &ee) {
			return ee
		}
		return fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	msg := state.Message{ID: id, Role: state.RoleAI, Content: full}
	if len(sources) > 0 {
		msg.Sources = document.Collection(sources).Clone()
	}
	r.state.Messages = append(r.state.Messages, msg)
	return g.emitUpdate(ctx, r, node, state.Patch{Messages: []state.Message{msg}})
}
