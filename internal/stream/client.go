package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

// client is one WebSocket connection. Only the write loop writes to conn.
type client struct {
	conn   *websocket.Conn
	ip     string
	events chan Event
	logger *slog.Logger

	lastGeneration uint64
	messagesSent   int64
	bytesSent      int64
}

// sendJSON marshals v and writes it as one text message.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.messagesSent++
	c.bytesSent += int64(len(data))
	return nil
}

// sendPing keeps the connection alive through idle proxies.
func (c *client) sendPing() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// readLoop discards client messages and returns when the peer goes away.
// Pongs extend the read deadline.
func (c *client) readLoop(pongWait time.Duration) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("stream read error", "remote_ip", c.ip, "error", err)
			}
			return
		}
	}
}
