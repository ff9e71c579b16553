package stream

import (
	"context"
	"errors"
	"sync"
)

var ErrEmitterClosed = errors.New("stream: emitter closed")

// Emitter delivers a turn's events in the order Emit is called.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev Event) error

func (f EmitterFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// ChannelEmitter hands events to a single reader goroutine. Emit blocks while the
// buffer is full, so a slow reader applies backpressure to the graph.
type ChannelEmitter struct {
	ch     chan Event
	mu     sync.RWMutex
	closed bool
}

func NewChannelEmitter(buffer int) *ChannelEmitter {
	return &ChannelEmitter{ch: make(chan Event, buffer)}
}

func (e *ChannelEmitter) Emit(ctx context.Context, ev Event) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrEmitterClosed
	}
	select {
	case e.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events is closed after Close.
func (e *ChannelEmitter) Events() <-chan Event {
	return e.ch
}

// Close must be called by the producer once it is done emitting. Safe to call twice.
func (e *ChannelEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// Tee forwards each event to every emitter in turn and stops at the first error.
func Tee(emitters ...Emitter) Emitter {
	return EmitterFunc(func(ctx context.Context, ev Event) error {
		for _, em := range emitters {
			if em == nil {
				continue
			}
			if err := em.Emit(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds lists the recorded event kinds in order.
func (r *Recorder) Kinds() []Kind {
	events := r.Events()
	kinds := make([]Kind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Event
	}
	return kinds
}
