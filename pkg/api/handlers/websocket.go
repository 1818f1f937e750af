package handlers

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kubestellar/aks-console/pkg/api/middleware"
)

const (
	// EventSessionReplaced is sent when a session is re-authenticated in place.
	EventSessionReplaced = "session_replaced"
	// EventLoggedOut is sent when a session is cleared.
	EventLoggedOut = "logged_out"

	authTimeout = 5 * time.Second
)

// Message represents a WebSocket message
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Client is one websocket connection bound to a session
type Client struct {
	conn      *websocket.Conn
	sessionID uuid.UUID
	send      chan []byte
}

// Hub fans session events out to the connections of that session.
type Hub struct {
	clients      map[*Client]bool
	sessionIndex map[uuid.UUID][]*Client
	broadcast    chan broadcastMessage
	register     chan *Client
	unregister   chan *Client
	mu           sync.RWMutex
	done         chan struct{}
	closeOnce    sync.Once
	jwtSecret    string
	logger       *zap.Logger
}

type broadcastMessage struct {
	sessionID uuid.UUID
	data      []byte
}

// NewHub creates a new Hub
func NewHub(jwtSecret string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:      make(map[*Client]bool),
		sessionIndex: make(map[uuid.UUID][]*Client),
		broadcast:    make(chan broadcastMessage, 256),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
		jwtSecret:    jwtSecret,
		logger:       logger,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.sessionIndex[client.sessionID] = append(h.sessionIndex[client.sessionID], client)
			h.mu.Unlock()
			count := h.ConnectionCount()
			websocketConnections.Set(float64(count))
			h.logger.Debug("websocket client connected", zap.Stringer("session", client.sessionID), zap.Int("connections", count))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)

				clients := h.sessionIndex[client.sessionID]
				for i, c := range clients {
					if c == client {
						h.sessionIndex[client.sessionID] = append(clients[:i], clients[i+1:]...)
						break
					}
				}
				if len(h.sessionIndex[client.sessionID]) == 0 {
					delete(h.sessionIndex, client.sessionID)
				}
			}
			h.mu.Unlock()
			count := h.ConnectionCount()
			websocketConnections.Set(float64(count))
			h.logger.Debug("websocket client disconnected", zap.Stringer("session", client.sessionID), zap.Int("connections", count))

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.sessionIndex[msg.sessionID] {
				select {
				case client.send <- msg.data:
				default:
					// buffer full, drop
				}
			}
			h.mu.RUnlock()

		case <-h.done:
			return
		}
	}
}

// Close shuts down the hub
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Notify sends a message to every connection of a session.
func (h *Hub) Notify(sessionID uuid.UUID, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("failed to marshal websocket message", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- broadcastMessage{sessionID: sessionID, data: data}:
	case <-h.done:
	}
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) reject(conn *websocket.Conn, reason string) {
	_ = conn.WriteJSON(Message{Type: "error", Data: map[string]string{"message": reason}})
	_ = conn.Close()
}

// HandleConnection authenticates a connection from its first message, then
// relays session events until the peer goes away.
func (h *Hub) HandleConnection(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(authTimeout))

	var authMsg struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	if err := conn.ReadJSON(&authMsg); err != nil {
		h.logger.Info("websocket rejected: no auth message", zap.Error(err))
		h.reject(conn, "authentication required")
		return
	}
	if authMsg.Type != "auth" || authMsg.Token == "" {
		h.reject(conn, "authentication required")
		return
	}
	claims, err := middleware.ValidateJWT(authMsg.Token, h.jwtSecret)
	if err != nil {
		h.logger.Info("websocket rejected: invalid token", zap.Error(err))
		h.reject(conn, "invalid token")
		return
	}

	_ = conn.WriteJSON(Message{Type: "authenticated", Data: map[string]string{"status": "connected"}})
	_ = conn.SetReadDeadline(time.Time{})

	client := &Client{
		conn:      conn,
		sessionID: claims.SessionID,
		send:      make(chan []byte, 16),
	}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	// The writer owns all writes after registration. Closing the connection
	// on hub shutdown also ends the read loop below.
	go func() {
		defer conn.Close()
		for {
			select {
			case msg, ok := <-client.send:
				if !ok {
					return
				}
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.logger.Debug("websocket write error", zap.Error(err))
					return
				}
			case <-h.done:
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
		}
	}()

	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			select {
			case client.send <- []byte(`{"type":"pong"}`):
			default:
			}
		}
	}
}
