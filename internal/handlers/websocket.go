package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/satonic/roomtrade/internal/services"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Time allowed for a refresh requested over the socket
	refreshTimeout = 30 * time.Second
)

// Message types sent only over the socket
const (
	MessageSnapshot = "snapshot"
	MessagePong     = "pong"
	MessageError    = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer and the session token
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketMessage represents a message sent over WebSocket
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client represents a WebSocket client connection bound to one session
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

type sessionMessage struct {
	sessionID string
	data      []byte
}

type clientMessage struct {
	client *Client
	data   []byte
}

// Hub maintains the set of active clients and fans session updates out to
// the clients of that session
type Hub struct {
	// Clients by the session they follow
	sessions map[string]map[*Client]bool

	// Updates published by sessions
	broadcast chan sessionMessage

	// Replies addressed to a single client
	direct chan clientMessage

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	done    chan struct{}
	manager *services.SessionManager
	logger  *zap.Logger
}

// NewHub creates a new hub
func NewHub(manager *services.SessionManager, logger *zap.Logger) *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan sessionMessage, 256),
		direct:     make(chan clientMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		manager:    manager,
		logger:     logger,
	}
}

// Run starts the hub and blocks until ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.sessions {
				for client := range clients {
					close(client.send)
				}
			}
			h.sessions = make(map[string]map[*Client]bool)
			return
		case client := <-h.register:
			if _, ok := h.sessions[client.sessionID]; !ok {
				h.sessions[client.sessionID] = make(map[*Client]bool)
			}
			h.sessions[client.sessionID][client] = true
		case client := <-h.unregister:
			h.remove(client)
		case msg := <-h.direct:
			if h.sessions[msg.client.sessionID][msg.client] {
				h.deliver(msg.client, msg.data)
			}
		case msg := <-h.broadcast:
			for client := range h.sessions[msg.sessionID] {
				h.deliver(client, msg.data)
			}
		}
	}
}

func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.logger.Warn("dropping slow websocket client", zap.String("session_id", client.sessionID))
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.sessions[client.sessionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}
}

// Publish sends a session update to every client of that session
func (h *Hub) Publish(sessionID string, update services.Update) {
	data, err := encodeMessage(update.Type, update.Payload)
	if err != nil {
		h.logger.Error("failed to encode update", zap.String("type", update.Type), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- sessionMessage{sessionID: sessionID, data: data}:
	case <-h.done:
	}
}

func (h *Hub) reply(c *Client, msgType string, payload interface{}) {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		h.logger.Error("failed to encode reply", zap.String("type", msgType), zap.Error(err))
		return
	}
	select {
	case h.direct <- clientMessage{client: c, data: data}:
	case <-h.done:
	}
}

func encodeMessage(msgType string, payload interface{}) ([]byte, error) {
	msg := WebSocketMessage{Type: msgType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}

// readPump pumps requests from the WebSocket connection to the session
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read failed", zap.Error(err))
			}
			break
		}

		var wsMessage WebSocketMessage
		if err := json.Unmarshal(message, &wsMessage); err != nil {
			c.hub.reply(c, MessageError, map[string]string{"message": "invalid message"})
			continue
		}

		session, err := c.hub.manager.Get(c.sessionID)
		if err != nil {
			c.hub.reply(c, MessageError, map[string]string{"message": err.Error()})
			break
		}

		switch wsMessage.Type {
		case "ping":
			c.hub.reply(c, MessagePong, nil)
		case MessageSnapshot:
			c.hub.reply(c, MessageSnapshot, session.Snapshot())
		case "refresh":
			// The session publishes offers_update on success
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			err := session.RefreshOffers(ctx)
			cancel()
			if err != nil {
				c.hub.reply(c, MessageError, map[string]string{"message": err.Error()})
			}
		default:
			c.hub.reply(c, MessageError, map[string]string{"message": "unknown message type " + wsMessage.Type})
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles WebSocket requests from session clients. The current
// state is sent as a snapshot right after the upgrade.
func ServeWs(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFromRequest(hub.manager, w, r)
		if !ok {
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			hub:       hub,
			conn:      conn,
			send:      make(chan []byte, 256),
			sessionID: session.ID,
		}
		select {
		case hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}
		hub.reply(client, MessageSnapshot, session.Snapshot())

		go client.writePump()
		go client.readPump()
	}
}
