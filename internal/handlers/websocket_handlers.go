package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"

	"anonchat/internal/chat"
	ws "anonchat/internal/websocket"
	"anonchat/pkg/logger"
)

type WebSocketHandlers struct {
	hub         *ws.Hub
	coordinator *chat.Coordinator
	upgrader    websocket.Upgrader
}

func NewWebSocketHandlers(hub *ws.Hub, coordinator *chat.Coordinator) *WebSocketHandlers {
	return &WebSocketHandlers{
		hub:         hub,
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket upgrades the connection and starts its pumps. Joining
// a room happens afterwards via the room:join event.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.hub, conn, h.coordinator)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
