package hub

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cnquant/stockpulse/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn is the slice of *websocket.Conn the hub uses. Tests substitute
// an in-memory implementation.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(fn func(string) error)
	Close() error
}

// client is one connected WebSocket peer.
type client struct {
	id          string
	hub         *Hub
	conn        wsConn
	send        chan []byte
	closeOnce   sync.Once
	connectedAt time.Time
	lastPing    atomic.Int64 // unix nanos of the last ping

	// sendMu guards send against a concurrent close: publishers enqueue
	// from their own goroutines.
	sendMu sync.RWMutex
	closed bool
}

func newClient(h *Hub, id string, conn wsConn) *client {
	c := &client{
		id:          id,
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		connectedAt: h.now(),
	}
	c.touch(h.now())
	return c
}

// touch records ping activity for the inactivity sweeper.
func (c *client) touch(t time.Time) {
	c.lastPing.Store(t.UnixNano())
}

// enqueue offers a frame to the client without blocking. False means the
// buffer is full; frames for an already-closed client are dropped.
func (c *client) enqueue(data []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// ServeWS upgrades an HTTP request, registers the client and starts its
// pumps. A client_id query parameter resumes that identity, evicting the
// previous holder.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	id := r.URL.Query().Get("client_id")
	if id == "" {
		id = uuid.NewString()
	}

	c := newClient(h, id, conn)
	h.register(c)
	h.send(c, models.WSAck{
		Type:      models.WSTypeConnected,
		ClientID:  id,
		Message:   "connected",
		Timestamp: h.timestamp(),
	})

	h.wg.Add(2)
	go c.writePump()
	go c.readPump()
}

// writePump drains the send channel to the socket and keeps the
// protocol-level ping alive.
func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		c.hub.wg.Done()
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump dispatches inbound frames to the message handler until the
// peer goes away.
func (c *client) readPump() {
	defer func() {
		c.hub.disconnect(c)
		c.conn.Close()
		c.hub.wg.Done()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(inactiveAfter))
	c.conn.SetPongHandler(func(string) error {
		c.touch(c.hub.now())
		c.conn.SetReadDeadline(time.Now().Add(inactiveAfter))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(inactiveAfter))
		c.hub.handleMessage(c, raw)
	}
}
