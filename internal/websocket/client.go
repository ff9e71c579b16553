package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256

	// TypeCancelAck answers a client's cancel command.
	TypeCancelAck = "cancel.ack"
)

// Command is the only frame a watcher may send: {"type":"cancel"} stops the thread's
// running turn. Anything else is ignored.
type Command struct {
	Type string `json:"type"`
}

// Client is one WebSocket connection watching a single thread.
type Client struct {
	Hub      *Hub
	Conn     *websocket.Conn
	ThreadID string
	Send     chan []byte
}

// ServeWs attaches a connection to the hub and blocks until the peer goes away.
func ServeWs(hub *Hub, conn *websocket.Conn, threadID string) {
	client := &Client{Hub: hub, Conn: conn, ThreadID: threadID, Send: make(chan []byte, sendBuffer)}
	hub.register <- client

	go client.writePump()
	client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Hub", "Unexpected websocket close", map[string]interface{}{
					"thread_id": c.ThreadID,
					"error":     err.Error(),
				})
			}
			return
		}
		c.handleCommand(raw)
	}
}

func (c *Client) handleCommand(raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil || cmd.Type != "cancel" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	cancelled := c.Hub.cancelTurn(ctx, c.ThreadID)

	ack, _ := json.Marshal(ThreadEvent{
		Type:       TypeCancelAck,
		ThreadID:   c.ThreadID,
		OccurredAt: time.Now(),
		Data:       map[string]interface{}{"cancelled": cancelled},
	})
	select {
	case c.Send <- ack:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// one JSON frame per message so clients can parse each independently
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
