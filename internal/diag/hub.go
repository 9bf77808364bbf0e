package diag

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
)

// Hub fans diagnostic records out to websocket listeners. Listeners
// connect with a plain websocket client and receive one JSON frame
// per record: {"type": ..., "message": ...}. A listener that cannot
// keep up is disconnected rather than allowed to block the engine.
type Hub struct {
	mu       sync.Mutex
	clients  map[*hubClient]struct{}
	closed   bool
	upgrader websocket.Upgrader
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub returns an empty hub. Serve it on any mux path and pass it to
// diag.WithHub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and streams records until the
// listener disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &hubClient{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *hubClient) {
	defer h.drop(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	defer h.drop(c)
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) drop(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.once.Do(func() { close(c.send) })
	c.conn.Close()
}

// Broadcast sends a record to every connected listener. Listeners with
// a full buffer are dropped.
func (h *Hub) Broadcast(rec Record) {
	msg, err := json.Marshal(rec)
	if err != nil {
		return
	}
	h.mu.Lock()
	var slow []*hubClient
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()
	for _, c := range slow {
		h.drop(c)
	}
}

// ClientCount returns the number of connected listeners.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every listener and rejects future connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*hubClient]struct{})
	h.mu.Unlock()
	for _, c := range clients {
		c.once.Do(func() { close(c.send) })
		c.conn.Close()
	}
}
