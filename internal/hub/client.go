package hub

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds one outbound write so a dead peer cannot stall the pump.
	writeWait = 10 * time.Second
	// pongWait is the liveness window; the peer must answer pings within it.
	pongWait = 60 * time.Second
	// pingPeriod must stay below pongWait.
	pingPeriod = (pongWait * 9) / 10
	// maxInboundSize caps client frames; viewers only listen.
	maxInboundSize = 512
	// defaultSendBuffer queues outbound events per connection.
	defaultSendBuffer = 16
)

// wsConn adapts one gorilla websocket connection to the hub Conn contract:
// a bounded send queue drained by a write pump, and a read pump whose only
// job is detecting transport close.
// Params: hub backref, raw connection, and buffered outbound queue.
// Returns: hub-managed connection.
type wsConn struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

// Enqueue hands one payload to the write pump without blocking.
// Params: outbound payload bytes.
// Returns: ErrSendBufferFull when the peer is not draining its queue.
func (c *wsConn) Enqueue(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrSendBufferFull
	default:
		return ErrSendBufferFull
	}
}

// Close tears the transport down. Both pumps observe it and exit; the read
// pump then releases the hub registry slot.
// Params: none.
// Returns: nil.
func (c *wsConn) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
	return nil
}

// readPump waits for transport close or error. Incoming frames are drained
// and ignored: the push channel is one-way.
func (c *wsConn) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("viewer read failed", "error", err.Error())
			}
			return
		}
	}
}

// writePump drains the send queue onto the wire and keeps the peer alive with
// periodic pings.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn("viewer write failed", "error", err.Error())
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Handler returns the websocket upgrade endpoint that turns one HTTP request
// into a registered hub connection.
// Params: hub, send-queue capacity (0 uses the default), and logger.
// Returns: HTTP handler for the push channel path.
func Handler(h *Hub, sendBuffer int, logger *slog.Logger) http.HandlerFunc {
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBuffer
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// Operator identity and origin policy belong to the fronting auth layer.
		CheckOrigin: func(*http.Request) bool { return true },
	}

	return func(writer http.ResponseWriter, request *http.Request) {
		raw, err := upgrader.Upgrade(writer, request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", "error", err.Error())
			return
		}
		conn := &wsConn{
			hub:    h,
			conn:   raw,
			send:   make(chan []byte, sendBuffer),
			done:   make(chan struct{}),
			logger: logger,
		}
		go conn.writePump()
		go conn.readPump()
		h.Register(conn)
	}
}
