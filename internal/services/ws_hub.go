package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"story-offline/internal/notify"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteTimeout = 10 * time.Second

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Title     string `json:"title,omitempty"`
	Message   string `json:"message,omitempty"`
	LocalID   string `json:"local_id,omitempty"`
	StoryID   string `json:"story_id,omitempty"`
	Online    *bool  `json:"online,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections of local UI clients
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*wsConn
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		connections: make(map[string]*wsConn),
	}
}

// Register registers a new WebSocket connection and returns its id
func (h *WSHub) Register(conn *websocket.Conn) string {
	id := uuid.NewString()

	h.mu.Lock()
	h.connections[id] = &wsConn{conn: conn}
	h.mu.Unlock()

	log.Info().Str("conn_id", id).Msg("WebSocket connection registered")
	return id
}

// Unregister closes and removes a connection
func (h *WSHub) Unregister(id string) {
	h.mu.Lock()
	c, exists := h.connections[id]
	delete(h.connections, id)
	h.mu.Unlock()

	if exists {
		c.conn.Close()
		log.Info().Str("conn_id", id).Msg("WebSocket connection unregistered")
	}
}

// Count returns the number of connected clients
func (h *WSHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Send sends a message to one connection
func (h *WSHub) Send(id string, message WSMessage) error {
	h.mu.RLock()
	c, exists := h.connections[id]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("connection %s is not registered", id)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := c.write(data); err != nil {
		h.Unregister(id)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Broadcast sends a message to every connection and returns how many
// received it. Connections that fail are dropped.
func (h *WSHub) Broadcast(message WSMessage) int {
	h.mu.RLock()
	ids := make([]string, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	sent := 0
	for _, id := range ids {
		if err := h.Send(id, message); err != nil {
			log.Debug().Err(err).Str("conn_id", id).Msg("Dropped WebSocket client")
			continue
		}
		sent++
	}
	return sent
}

// Notify implements notify.Notifier by broadcasting to all clients
func (h *WSHub) Notify(ctx context.Context, n notify.Notification) error {
	msg := WSMessage{
		Type:      string(n.Kind),
		Timestamp: n.At.UnixMilli(),
		Title:     n.Title,
		Message:   n.Message,
		LocalID:   n.LocalID,
		StoryID:   n.StoryID,
	}
	switch n.Kind {
	case notify.KindOnline, notify.KindOffline:
		online := n.Kind == notify.KindOnline
		msg.Online = &online
	}

	h.Broadcast(msg)
	return nil
}

// Close drops every connection
func (h *WSHub) Close() {
	h.mu.Lock()
	conns := h.connections
	h.connections = make(map[string]*wsConn)
	h.mu.Unlock()

	for _, c := range conns {
		c.conn.Close()
	}
}
