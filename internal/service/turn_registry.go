package service

import (
	"context"
	"encoding/json"
	"sync"

	"ai-docchat-be/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// CancelChannel carries cancellation requests between instances.
const CancelChannel = "docchat:cancel"

type cancelMessage struct {
	Origin   string `json:"origin"`
	ThreadID string `json:"thread_id"`
	// TurnID is the turn that superseded the running one; empty for an explicit cancel.
	TurnID string `json:"turn_id,omitempty"`
}

// turnRegistry tracks the running turn of each thread on this instance.
type turnRegistry struct {
	mu    sync.Mutex
	turns map[string]*Turn

	rdb      *redis.Client
	instance string
	logger   logger.ILogger
}

func newTurnRegistry(rdb *redis.Client, instanceID string, log logger.ILogger) *turnRegistry {
	return &turnRegistry{
		turns:    make(map[string]*Turn),
		rdb:      rdb,
		instance: instanceID,
		logger:   log,
	}
}

// register makes t the running turn of its thread and returns the turn it displaced.
// The displaced turn is cancelled; other instances are asked to do the same.
func (r *turnRegistry) register(ctx context.Context, t *Turn) *Turn {
	r.mu.Lock()
	prev := r.turns[t.ThreadID]
	r.turns[t.ThreadID] = t
	r.mu.Unlock()

	if prev != nil {
		prev.cancel()
		r.logger.Info("TURN_REGISTRY", "Superseded running turn", map[string]interface{}{
			"thread_id": t.ThreadID,
			"turn_id":   prev.ID,
		})
	}
	r.broadcast(ctx, cancelMessage{ThreadID: t.ThreadID, TurnID: t.ID})
	return prev
}

// release forgets t unless a newer turn already took its place.
func (r *turnRegistry) release(t *Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.turns[t.ThreadID] == t {
		delete(r.turns, t.ThreadID)
	}
}

// cancelLocal stops the thread's running turn on this instance, if any, unless it is keep.
func (r *turnRegistry) cancelLocal(threadID, keep string) bool {
	r.mu.Lock()
	t := r.turns[threadID]
	r.mu.Unlock()

	if t == nil || (keep != "" && t.ID == keep) {
		return false
	}
	t.cancel()
	return true
}

// cancel stops the thread's turn here and on every other instance.
func (r *turnRegistry) cancel(ctx context.Context, threadID string) bool {
	found := r.cancelLocal(threadID, "")
	r.broadcast(ctx, cancelMessage{ThreadID: threadID})
	return found
}

func (r *turnRegistry) broadcast(ctx context.Context, msg cancelMessage) {
	if r.rdb == nil {
		return
	}
	msg.Origin = r.instance
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := r.rdb.Publish(context.WithoutCancel(ctx), CancelChannel, payload).Err(); err != nil {
		r.logger.Warn("TURN_REGISTRY", "Failed to broadcast cancel", map[string]interface{}{
			"thread_id": msg.ThreadID,
			"error":     err.Error(),
		})
	}
}

// listen applies cancellations from other instances until ctx ends.
func (r *turnRegistry) listen(ctx context.Context) {
	if r.rdb == nil {
		return
	}
	pubsub := r.rdb.Subscribe(ctx, CancelChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload cancelMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				r.logger.Warn("TURN_REGISTRY", "Malformed cancel message", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == r.instance {
				continue
			}
			if r.cancelLocal(payload.ThreadID, payload.TurnID) {
				r.logger.Info("TURN_REGISTRY", "Cancelled turn on remote request", map[string]interface{}{
					"thread_id": payload.ThreadID,
					"origin":    payload.Origin,
				})
			}
		}
	}
}
