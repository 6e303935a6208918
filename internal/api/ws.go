package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spullara/ComfyUI-Gallery/internal/event"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsSendQueueSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The gallery is served same-origin by the host application.
		return true
	},
}

// wsMessage is the frame sent to connected clients.
type wsMessage struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsMessage
}

// Hub fans bus events out to connected websocket clients. Slow clients
// are disconnected rather than allowed to stall the broadcast path.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger.With("component", "ws-hub"),
		clients: make(map[*wsClient]struct{}),
	}
}

// SubscribeBus forwards the given bus topics to connected clients.
func (h *Hub) SubscribeBus(bus *event.Bus, topics ...event.Type) {
	for _, topic := range topics {
		bus.Subscribe(topic, func(e event.Event) {
			h.Broadcast(string(e.Type), e.Data)
		})
	}
}

// Broadcast queues a message for every connected client, dropping clients
// whose send queue is full.
func (h *Hub) Broadcast(msgType string, data map[string]any) {
	msg := wsMessage{Type: msgType, Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping slow websocket client")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWS upgrades the request and serves push messages until the client
// disconnects.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan wsMessage, wsSendQueueSize)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

// writeLoop drains the client's send queue onto the wire.
func (h *Hub) writeLoop(c *wsClient) {
	defer c.conn.Close() //nolint:errcheck
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			h.remove(c)
			return
		}
	}
}

// readLoop consumes (and discards) client frames so pings and close frames
// are processed; it returns when the connection drops.
func (h *Hub) readLoop(c *wsClient) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close() //nolint:errcheck
}
