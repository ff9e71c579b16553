package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"ai-docchat-be/internal/pkg/logger"
	"ai-docchat-be/pkg/events"

	"github.com/redis/go-redis/v9"
)

// ClusterChannel carries thread events between instances.
const ClusterChannel = "docchat:thread_events"

// ThreadEvent is the frame pushed to WebSocket subscribers of a thread.
type ThreadEvent struct {
	Type       string                 `json:"type"`
	ThreadID   string                 `json:"thread_id"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

type clusterMessage struct {
	Origin   string          `json:"origin"`
	ThreadID string          `json:"thread_id"`
	Message  json.RawMessage `json:"message"`
}

type Hub struct {
	// Registered clients map: thread id -> connections watching it
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// Redis connection for cross-instance fan-out; nil on a single instance
	rdb      *redis.Client
	instance string

	logger logger.ILogger

	// canceller stops a thread's running turn on behalf of a watcher
	canceller func(ctx context.Context, threadID string) bool
}

func NewHub(rdb *redis.Client, instanceID string, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		instance:   instanceID,
		logger:     log,
	}
}

// SetCanceller wires the watcher cancel command to the chat service.
func (h *Hub) SetCanceller(fn func(ctx context.Context, threadID string) bool) {
	h.canceller = fn
}

func (h *Hub) cancelTurn(ctx context.Context, threadID string) bool {
	if h.canceller == nil {
		return false
	}
	cancelled := h.canceller(ctx, threadID)
	h.logger.Info("Hub", "Cancel requested by watcher", map[string]interface{}{
		"thread_id": threadID,
		"cancelled": cancelled,
	})
	return cancelled
}

// Run serves registrations until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ThreadID] = append(h.clients[client.ThreadID], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"thread_id": client.ThreadID})

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.ThreadID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.ThreadID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.ThreadID]) == 0 {
		delete(h.clients, client.ThreadID)
		h.logger.Info("Hub", "Thread has no more watchers", map[string]interface{}{"thread_id": client.ThreadID})
	}
}

// Publish delivers a lifecycle event to local watchers of its thread and, through
// Redis, to the other instances.
func (h *Hub) Publish(event events.Event) {
	threadID, _ := event.Payload()["thread_id"].(string)
	if threadID == "" {
		return
	}
	data, err := json.Marshal(ThreadEvent{
		Type:       event.EventType(),
		ThreadID:   threadID,
		OccurredAt: event.Timestamp(),
		Data:       event.Payload(),
	})
	if err != nil {
		h.logger.Warn("Hub", "Failed to encode thread event", map[string]interface{}{"error": err.Error()})
		return
	}

	h.deliver(threadID, data)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{Origin: h.instance, ThreadID: threadID, Message: data})
		if err := h.rdb.Publish(context.Background(), ClusterChannel, payload).Err(); err != nil {
			h.logger.Warn("Hub", "Redis publish failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (h *Hub) deliver(threadID string, data []byte) {
	var slow []*Client

	h.mu.RLock()
	for _, client := range h.clients[threadID] {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Hub", "Client Send buffer full, dropping client", map[string]interface{}{"thread_id": threadID})
		go func(c *Client) { h.unregister <- c }(client)
	}
}

// Watchers reports how many local connections follow threadID.
func (h *Hub) Watchers(threadID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[threadID])
}

// subscribeToRedis relays events published by other instances. Every instance
// receives every event and only delivers to the threads it has locally.
func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
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
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.instance {
				continue
			}
			h.deliver(payload.ThreadID, payload.Message)
		}
	}
}
