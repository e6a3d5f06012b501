package web

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// clientBuffer is the per-client send queue. Clients that fall this
	// far behind are dropped rather than allowed to stall the broadcast.
	clientBuffer = 64
)

// wsWriter is the part of *websocket.Conn the hub needs. Tests
// substitute a fake.
type wsWriter interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type client struct {
	w    wsWriter
	send chan []byte
}

// Hub fans one JSON feed out to every connected dashboard client. All
// writes to a connection happen on that client's own write pump.
type Hub struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:     logger.With("component", "web.hub"),
		clients: make(map[*client]struct{}),
	}
}

// BroadcastJSON queues v for every connected client. Clients whose send
// queue is full are disconnected.
func (h *Hub) BroadcastJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Warn("broadcast encode failed", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			close(c.send)
			h.log.Warn("dropped slow client")
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve runs a dashboard connection to completion: replays the backlog,
// then streams broadcasts until the peer goes away. Intended to be called
// from a fiber websocket handler, which blocks for the connection's life.
func (h *Hub) Serve(conn *websocket.Conn, backlog [][]byte) {
	c := h.register(backlog)
	c.w = conn

	go c.writePump()

	// Reads only keep the connection alive and detect disconnects.
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.unregister(c)
}

func (h *Hub) register(backlog [][]byte) *client {
	c := &client{send: make(chan []byte, clientBuffer)}
	for _, data := range backlog {
		if len(c.send) == cap(c.send) {
			break
		}
		c.send <- data
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("client connected", "clients", n)
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("client disconnected", "clients", n)
	c.w.Close()
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.w.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.w.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.w.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
