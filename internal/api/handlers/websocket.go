package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rugbyfantasy/sixnations-optimizer/internal/services"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering happens in the CORS middleware
		return true
	},
}

type WebSocketHandler struct {
	hub *services.WebSocketHub
}

func NewWebSocketHandler(hub *services.WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
	}
}

// HandleWebSocket upgrades the HTTP connection and registers the client.
// Clients subscribe to the "stats" and "squads" topics to follow sync and
// optimization activity live.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	client := services.NewClient(h.hub, conn, c.ClientIP())

	welcomeMsg := map[string]interface{}{
		"type": "welcome",
		"data": map[string]interface{}{
			"message":   "Connected to the squad optimizer",
			"topics":    []string{services.TopicStats, services.TopicSquads},
			"timestamp": time.Now().UTC(),
		},
	}
	// Register only once the welcome went through. A client that never gets
	// its pumps started must not linger in the hub's count.
	if err := conn.WriteJSON(welcomeMsg); err != nil {
		logrus.Errorf("Failed to send welcome message: %v", err)
		conn.Close()
		return
	}
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
