package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/soramimi/internal/logging"
	"github.com/FocuswithJustin/soramimi/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Message is the envelope sent to WebSocket clients.
type Message struct {
	Type      string         `json:"type"` // "event" or "error"
	Event     *session.Event `json:"event,omitempty"`
	Error     *APIError      `json:"error,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Client is one WebSocket connection subscribed to a session.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session string
}

// Hub maintains active WebSocket connections and routes session events to
// the clients subscribed to that session.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan session.Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan session.Event, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run handles registration and delivery until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			logging.WebSocketEvent("client_connected", n, "session", client.session)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logging.WebSocketEvent("client_disconnected", n, "session", client.session)

		case ev := <-h.broadcast:
			data, err := encodeMessage(Message{Type: "event", Event: &ev})
			if err != nil {
				logging.Error("failed to marshal session event", "error", err)
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				if client.session != ev.Session {
					continue
				}
				select {
				case client.send <- data:
				default:
					// Client channel full, disconnect
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues ev for delivery. It never blocks; events are dropped
// when the queue is full.
func (h *Hub) Publish(ev session.Event) {
	select {
	case h.broadcast <- ev:
	default:
		logging.Warn("broadcast channel full, dropping event", "session", ev.Session, "revision", ev.Revision)
	}
}

// join registers c unless the hub has stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters c unless the hub has stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encodeMessage(msg Message) ([]byte, error) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return json.Marshal(msg)
}

// reply sends msg to this client only. It drops the message when the
// client is not keeping up.
func (c *Client) reply(msg Message) {
	data, err := encodeMessage(msg)
	if err != nil {
		return
	}
	defer func() {
		// send may already be closed by the hub
		recover()
	}()
	select {
	case c.send <- data:
	default:
	}
}

// handleWebSocket subscribes a connection to the session in the path.
// Text messages from the client are decoded as session.Edit and applied.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     CheckOrigin(s.cfg.AllowedOrigins),
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(s.cfg.MaxMessageSize)

	client := &Client{
		hub:     s.hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		session: sess.ID,
	}
	if !s.hub.join(client) {
		conn.Close()
		return
	}
	s.limiter.Register(client, s.cfg.MaxMessageRate)

	go client.writePump()
	go client.readPump(s)
}

// readPump applies edits sent by the client.
func (c *Client) readPump(s *Server) {
	defer func() {
		s.limiter.Unregister(c)
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("websocket unexpected close", "error", err)
			}
			return
		}

		if !s.limiter.Allow(c) {
			logging.Warn("websocket message rate exceeded", "session", c.session)
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Rate limit exceeded"),
				time.Now().Add(writeWait))
			return
		}

		var edit session.Edit
		if err := json.Unmarshal(data, &edit); err != nil {
			c.reply(Message{Type: "error", Error: &APIError{Code: "INVALID_JSON", Message: err.Error()}})
			continue
		}
		sess, err := s.sessions.Get(c.session)
		if err != nil {
			c.reply(Message{Type: "error", Error: &APIError{Code: "NOT_FOUND", Message: err.Error()}})
			return
		}
		// Successful edits reach every subscriber, this one included,
		// through the hub.
		if _, err := sess.Apply(edit); err != nil {
			_, code := errorStatus(err)
			c.reply(Message{Type: "error", Error: &APIError{Code: code, Message: err.Error()}})
		}
	}
}

// writePump writes queued messages and keeps the connection alive.
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
