package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Topics clients can subscribe to. "*" subscribes to everything.
const (
	TopicStats  = "stats"
	TopicSquads = "squads"
)

type WebSocketHub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

type Client struct {
	hub   *WebSocketHub
	conn  *websocket.Conn
	send  chan []byte
	label string // remote address, for logs only

	// topicsMu guards topics: ReadPump mutates it while broadcasts read it.
	topicsMu sync.Mutex
	topics   map[string]bool
}

type WebSocketMessage struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type Subscription struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Topics []string `json:"topics"`
}

func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logrus.Infof("WebSocket client connected: %s", client.label)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.mu.Unlock()
				logrus.Infof("WebSocket client disconnected: %s", client.label)
			} else {
				h.mu.Unlock()
			}
		}
	}
}

// Register adds a new client to the hub
func (h *WebSocketHub) Register(client *Client) {
	h.register <- client
}

func (h *WebSocketHub) BroadcastToTopic(topic string, messageType string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	message := WebSocketMessage{
		Type:      messageType,
		Topic:     topic,
		Data:      jsonData,
		Timestamp: time.Now().UTC(),
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.IsSubscribedTo(topic) {
			select {
			case client.send <- messageBytes:
			default:
				// Skip if client's buffer is full
			}
		}
	}

	return nil
}

// ClientCount reports how many clients are connected, for the health endpoint.
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func NewClient(hub *WebSocketHub, conn *websocket.Conn, label string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		label:  label,
		topics: make(map[string]bool),
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var sub Subscription
		err := c.conn.ReadJSON(&sub)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket error: %v", err)
			}
			break
		}

		// Handle subscription changes
		if sub.Action == "subscribe" {
			c.topicsMu.Lock()
			for _, topic := range sub.Topics {
				c.topics[topic] = true
			}
			c.topicsMu.Unlock()
		} else if sub.Action == "unsubscribe" {
			c.topicsMu.Lock()
			for _, topic := range sub.Topics {
				delete(c.topics, topic)
			}
			c.topicsMu.Unlock()
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) IsSubscribedTo(topic string) bool {
	c.topicsMu.Lock()
	defer c.topicsMu.Unlock()
	return c.topics[topic] || c.topics["*"] // "*" subscribes to all topics
}
