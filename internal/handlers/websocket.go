package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"story-offline/internal/connectivity"
	"story-offline/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the API only listens locally
	},
}

// WebSocketHandler streams notifications to UI clients
type WebSocketHandler struct {
	hub     *services.WSHub
	monitor *connectivity.Monitor
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, monitor *connectivity.Monitor) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hub,
		monitor: monitor,
	}
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	connID := h.hub.Register(conn)
	defer h.hub.Unregister(connID)

	online := h.monitor.Online()
	status := services.WSMessage{
		Type:      "status",
		Timestamp: time.Now().UnixMilli(),
		Online:    &online,
	}
	if err := h.hub.Send(connID, status); err != nil {
		log.Error().Err(err).Str("conn_id", connID).Msg("Failed to send status message")
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("conn_id", connID).Msg("WebSocket error")
			}
			return
		}

		var msg services.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(connID, "Invalid message format")
			continue
		}

		switch msg.Type {
		case "ping":
			online := h.monitor.Online()
			h.send(connID, services.WSMessage{
				Type:      "pong",
				Timestamp: time.Now().UnixMilli(),
				Online:    &online,
			})
		default:
			h.sendError(connID, "Unknown message type")
		}
	}
}

func (h *WebSocketHandler) send(connID string, msg services.WSMessage) {
	if err := h.hub.Send(connID, msg); err != nil {
		log.Error().Err(err).Str("conn_id", connID).Str("type", msg.Type).Msg("Failed to send WebSocket message")
	}
}

// sendError sends an error message to the WebSocket connection
func (h *WebSocketHandler) sendError(connID, message string) {
	h.send(connID, services.WSMessage{
		Type:    "error",
		Message: message,
	})
}
