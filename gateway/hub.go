package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/c360/semwidgets/pkg/timestamp"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Message types exchanged over /ws.
const (
	MessageDataUpdate = "data-update"
	MessageSubscribe  = "subscribe"
)

// Message is the envelope pushed to websocket clients.
type Message struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	ComponentID string         `json:"componentId"`
	Data        map[string]any `json:"data"`
	Timestamp   int64          `json:"timestamp"`
}

// clientMessage is what clients may send. A subscribe with an empty list
// restores delivery of every component.
type clientMessage struct {
	Type         string   `json:"type"`
	ComponentIDs []string `json:"componentIds"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	filter map[string]bool

	closeOnce sync.Once
}

func (c *client) wants(componentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.filter) == 0 || c.filter[componentID]
}

func (c *client) subscribe(ids []string) {
	filter := make(map[string]bool, len(ids))
	for _, id := range ids {
		filter[id] = true
	}
	c.mu.Lock()
	c.filter = filter
	c.mu.Unlock()
}

// hub fans data updates out to websocket clients. A client whose buffer is
// full is disconnected rather than slowing other clients.
type hub struct {
	upgrader websocket.Upgrader
	buffer   int
	metrics  *gatewayMetrics
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

func newHub(buffer int, checkOrigin func(*http.Request) bool, m *gatewayMetrics, logger *slog.Logger) *hub {
	return &hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		buffer:  buffer,
		metrics: m,
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.setClients(n)
	h.logger.Debug("websocket client connected", "client_id", c.id, "clients", n)

	go h.writeLoop(c)
	go h.readLoop(c)
}

func (h *hub) readLoop(c *client) {
	defer h.remove(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == MessageSubscribe {
			c.subscribe(msg.ComponentIDs)
		}
	}
}

func (h *hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.metrics.recordPush("error")
				return
			}
			h.metrics.recordPush("sent")
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// remove drops a client once; the send channel is closed so the writer exits.
func (h *hub) remove(c *client) {
	c.closeOnce.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		n := len(h.clients)
		h.mu.Unlock()
		close(c.send)
		_ = c.conn.Close()
		h.metrics.setClients(n)
		h.logger.Debug("websocket client disconnected", "client_id", c.id, "clients", n)
	})
}

// broadcast queues a data update for every interested client.
func (h *hub) broadcast(componentID string, data map[string]any) {
	payload, err := json.Marshal(Message{
		ID:          uuid.NewString(),
		Type:        MessageDataUpdate,
		ComponentID: componentID,
		Data:        data,
		Timestamp:   timestamp.Now(),
	})
	if err != nil {
		h.logger.Warn("data update not serializable", "component_id", componentID, "error", err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(componentID) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.metrics.recordPush("dropped")
		h.logger.Warn("websocket client too slow, disconnecting", "client_id", c.id)
		h.remove(c)
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
}
