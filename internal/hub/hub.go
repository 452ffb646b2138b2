package hub

import (
	"errors"
	"log/slog"
	"sync"

	"gridalert/internal/domain"
)

// ErrSendBufferFull indicates a connection that cannot accept the payload
// without blocking. The hub treats it as a failed send and drops the peer.
var ErrSendBufferFull = errors.New("send buffer full")

// Conn is one live push channel to a dashboard client. Enqueue must be
// bounded: it either accepts the payload immediately or fails, never stalling
// a broadcast.
// Params: outbound payload bytes.
// Returns: enqueue error when the connection cannot take the payload.
type Conn interface {
	Enqueue(payload []byte) error
	Close() error
}

// Hub owns the set of connected viewers and fans alert events out to all of
// them. It carries no alert domain logic: callers hand it ready-made count
// events. The registry is an explicit instance, never package state, so each
// test builds its own.
// Params: connection registry and logger.
// Returns: broadcast fan-out layer.
type Hub struct {
	mu     sync.Mutex
	conns  map[Conn]struct{}
	logger *slog.Logger
}

// New creates an empty hub.
// Params: logger for connection lifecycle events.
// Returns: initialized hub.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		conns:  make(map[Conn]struct{}),
		logger: logger,
	}
}

// Register adds a connection to the broadcast set and immediately sends the
// one-shot CONNECTED confirmation, so the client can tell channel
// establishment apart from a state update.
// Params: live connection.
// Returns: connection registered, or dropped when the confirmation fails.
func (h *Hub) Register(conn Conn) {
	payload, err := domain.ConnectedEvent().Encode()
	if err != nil {
		h.logger.Error("encode connected event failed", "error", err.Error())
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()
	h.logger.Info("viewer connected", "connections", total)

	if err := conn.Enqueue(payload); err != nil {
		h.logger.Warn("connected confirmation failed", "error", err.Error())
		h.drop(conn)
	}
}

// Unregister removes a connection from the broadcast set. Safe to call more
// than once and for connections that were never registered.
// Params: connection to remove.
// Returns: registry slot released.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	_, ok := h.conns[conn]
	if ok {
		delete(h.conns, conn)
	}
	total := len(h.conns)
	h.mu.Unlock()
	if ok {
		h.logger.Info("viewer disconnected", "connections", total)
	}
}

// Broadcast sends one event to every currently registered connection. The set
// is snapshotted first, so concurrent register/unregister never corrupts the
// iteration; a failed send drops only the offending connection and delivery to
// the rest continues.
// Params: event payload to fan out.
// Returns: delivery attempted to every registered connection.
func (h *Hub) Broadcast(event domain.Event) {
	payload, err := event.Encode()
	if err != nil {
		h.logger.Error("encode broadcast event failed", "type", string(event.Type), "error", err.Error())
		return
	}

	h.mu.Lock()
	snapshot := make([]Conn, 0, len(h.conns))
	for conn := range h.conns {
		snapshot = append(snapshot, conn)
	}
	h.mu.Unlock()

	for _, conn := range snapshot {
		if err := conn.Enqueue(payload); err != nil {
			h.logger.Warn("broadcast send failed, dropping viewer", "type", string(event.Type), "error", err.Error())
			h.drop(conn)
		}
	}
}

// Connections reports the current registry size.
// Params: none.
// Returns: number of registered connections.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// drop removes and closes one connection after a transport failure.
func (h *Hub) drop(conn Conn) {
	h.Unregister(conn)
	_ = conn.Close()
}
