package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"sigflow/internal/logger"
	"sigflow/internal/monitor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams dispatch decisions to connected clients
type WebSocketHandler struct {
	clients map[string]*Client
	mu      sync.RWMutex
	metrics *monitor.MetricsCollector
	log     logger.Logger
}

// Client represents a WebSocket client
type Client struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Handler *WebSocketHandler
}

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Time time.Time   `json:"time"`
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(metrics *monitor.MetricsCollector, log logger.Logger) *WebSocketHandler {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &WebSocketHandler{
		clients: make(map[string]*Client),
		metrics: metrics,
		log:     log,
	}
}

// DecisionStream handles decision feed WebSocket connections
func (h *WebSocketHandler) DecisionStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err.Error())
		return
	}

	client := &Client{
		ID:      generateClientID(),
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Handler: h,
	}

	h.registerClient(client)

	// Queue the connection message before the pumps start so it is
	// the first frame the client sees.
	msg := Message{
		Type: "connected",
		Data: map[string]interface{}{
			"client_id": client.ID,
		},
		Time: time.Now(),
	}
	if data, err := json.Marshal(msg); err == nil {
		client.Send <- data
	}

	go client.writePump()
	go client.readPump()
}

// Broadcast sends a decision to all connected clients. Clients whose
// send buffer is full are disconnected.
func (h *WebSocketHandler) Broadcast(decision interface{}) {
	msg := Message{
		Type: "decision",
		Data: decision,
		Time: time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Failed to marshal decision", "error", err.Error())
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			h.log.Warn("Client send buffer full, closing connection", "client_id", client.ID)
			client.Conn.Close()
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// registerClient registers a new client
func (h *WebSocketHandler) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	count := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.UpdateWebsocketClients(count)
	}
	h.log.Debug("Websocket client connected", "client_id", client.ID, "clients", count)
}

// unregisterClient removes a client. Safe to call more than once for
// the same client.
func (h *WebSocketHandler) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.ID)
	count := len(h.clients)
	h.mu.Unlock()

	close(client.Send)
	if h.metrics != nil {
		h.metrics.UpdateWebsocketClients(count)
	}
	h.log.Debug("Websocket client disconnected", "client_id", client.ID, "clients", count)
}

// writePump pumps messages from the send channel to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so close and pong frames are
// processed. The decision feed is one way; inbound messages are
// discarded.
func (c *Client) readPump() {
	defer func() {
		c.Handler.unregisterClient(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Handler.log.Debug("Websocket read error", "client_id", c.ID, "error", err.Error())
			}
			break
		}
	}
}

// generateClientID generates a unique client ID
func generateClientID() string {
	return fmt.Sprintf("client_%d", time.Now().UnixNano())
}
