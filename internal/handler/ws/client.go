package ws

import (
	"encoding/json"
	"sync"
	"time"

	models "ShrimpCast/internal/domain/models"
	xlogger "ShrimpCast/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// subscribeCommand narrows the event types a client receives. An empty list
// means every type.
type subscribeCommand struct {
	Command string             `json:"command"`
	Types   []models.EventType `json:"types"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan models.Event

	mu    sync.RWMutex
	types map[models.EventType]bool
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	return &client{hub: h, conn: conn, send: make(chan models.Event, 64)}
}

func (c *client) wants(t models.EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.types) == 0 || c.types[t]
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read error", xlogger.Error(err))
			}
			return
		}
		var cmd subscribeCommand
		if err := json.Unmarshal(msg, &cmd); err != nil || cmd.Command != "subscribe" {
			continue
		}
		types := make(map[models.EventType]bool, len(cmd.Types))
		for _, t := range cmd.Types {
			types[t] = true
		}
		c.mu.Lock()
		c.types = types
		c.mu.Unlock()
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
