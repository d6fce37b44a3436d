package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lox/vrfjack/internal/game"
	"github.com/lox/vrfjack/internal/ledger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	sendBuffer = 256
)

// Hub streams engine events to websocket clients. Clients may pass
// ?account=<id> to receive only that account's events; owner and pool events
// go to everyone.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

type client struct {
	id      string
	account ledger.AccountID
	conn    *websocket.Conn
	send    chan *Message
	done    chan struct{}
	once    sync.Once
	logger  *log.Logger
}

// NewHub creates a hub. checkOrigin may be nil to allow every origin.
func NewHub(logger *log.Logger, checkOrigin func(*http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger.WithPrefix("hub"),
		clients: make(map[string]*client),
	}
}

// OnEvent implements game.EventSubscriber
func (h *Hub) OnEvent(event game.GameEvent) {
	msg, err := NewMessage(event)
	if err != nil {
		h.logger.Error("Failed to encode event", "type", event.EventType(), "error", err)
		return
	}

	var account ledger.AccountID
	if ae, ok := event.(game.AccountEvent); ok {
		account = ae.AccountID()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.account != "" && account != "" && c.account != account {
			continue
		}
		c.deliver(msg)
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	c := &client{
		id:      uuid.NewString(),
		account: ledger.AccountID(r.URL.Query().Get("account")),
		conn:    conn,
		send:    make(chan *Message, sendBuffer),
		done:    make(chan struct{}),
	}
	c.logger = h.logger.With("client", c.id)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("Client connected", "client", c.id, "account", c.account, "total", total)

	go c.writePump()
	go func() {
		c.readPump()
		h.remove(c)
	}()
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	total := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Info("Client disconnected", "client", c.id, "total", total)
}

// deliver queues msg without blocking. Clients that fall behind are dropped.
func (c *client) deliver(msg *Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.logger.Warn("Client send buffer full, closing connection")
		c.close()
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close() // Ignore close errors, the peer may be gone
	})
}

// readPump discards client frames and keeps the read deadline fresh
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("Failed to write message", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
