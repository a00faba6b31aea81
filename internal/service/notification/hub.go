package notification

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultSendBuffer   = 16
	defaultWriteTimeout = 5 * time.Second
)

// Hub is the websocket observer registry. Broadcast never blocks: a client
// whose send buffer is full or whose connection errors is closed and
// removed, all other clients are unaffected.
type Hub struct {
	upgrader     websocket.Upgrader
	sendBuffer   int
	writeTimeout time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
}

func NewHub(sendBuffer int, writeTimeout time.Duration) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sendBuffer:   sendBuffer,
		writeTimeout: writeTimeout,
		clients:      make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection in the hub until
// the observer disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("websocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}

	// queue the welcome payload before the client is visible to Broadcast
	welcome, _ := json.Marshal(map[string]string{"message": "Welcome to the order notification stream"})
	c.send <- welcome

	h.register(c)
	logrus.WithField("remote_addr", conn.RemoteAddr().String()).Info("websocket connection established")

	go h.writePump(c)
	go h.readPump(c)
}

// Broadcast queues the payload for every connected observer. Slow or dead
// observers are dropped, never waited on.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			logrus.WithField("remote_addr", c.conn.RemoteAddr().String()).Warn("observer too slow, dropping connection")
			delete(h.clients, c)
			c.close()
		}
	}
}

// ClientCount reports the number of connected observers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

// Shutdown closes every connection and empties the registry.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) writePump(c *client) {
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.unregister(c)
			return
		}
	}
}

// readPump drains inbound frames. Client-to-server payloads carry no
// protocol semantics, they are logged and discarded.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		logrus.Info("websocket connection closed")
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		logrus.WithField("remote_addr", c.conn.RemoteAddr().String()).Infof("received message: %s", string(message))
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		_ = c.conn.Close()
	})
}
