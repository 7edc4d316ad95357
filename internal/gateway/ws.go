package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atlasdesk/switchboard/internal/observability"
	"github.com/atlasdesk/switchboard/internal/turn"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 45 * time.Second
	wsPingInterval = 15 * time.Second
	wsSendBuffer   = 64
)

// Hub fans turn events out to connected admin clients. It implements
// turn.EventSink; Publish never blocks, slow clients get disconnected.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	logger  *observability.Logger
	metrics *observability.Metrics

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub builds an empty hub.
func NewHub(logger *observability.Logger, metrics *observability.Metrics) *Hub {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Hub{
		clients: make(map[*wsClient]bool),
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Publish broadcasts one event to every connected client.
func (h *Hub) Publish(event turn.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Buffer full; the write pump will notice the closed channel.
			go h.drop(c)
		}
	}
}

// ServeHTTP upgrades the connection and runs the client's pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	close(c.send)
	c.conn.Close()
	if h.metrics != nil {
		h.metrics.WSClients.Set(float64(n))
	}
}

// readPump consumes inbound frames only to keep pong handling alive; the
// event stream is one-directional.
func (h *Hub) readPump(c *wsClient) {
	defer h.drop(c)
	c.conn.SetReadLimit(1 << 16)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
