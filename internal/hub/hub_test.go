package hub

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"gridalert/internal/domain"
)

type fakeConn struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     bool
	closed   bool
}

func (c *fakeConn) Enqueue(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return ErrSendBufferFull
	}
	c.payloads = append(c.payloads, payload)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.payloads))
	copy(out, c.payloads)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterSendsConnectedConfirmation(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	conn := &fakeConn{}
	h.Register(conn)

	payloads := conn.received()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 confirmation payload, got %d", len(payloads))
	}
	var event domain.Event
	if err := json.Unmarshal(payloads[0], &event); err != nil {
		t.Fatalf("decode confirmation: %v", err)
	}
	if event.Type != domain.EventConnected || event.Count != nil {
		t.Fatalf("unexpected confirmation event: %+v", event)
	}
	if h.Connections() != 1 {
		t.Fatalf("expected 1 connection, got %d", h.Connections())
	}
}

func TestBroadcastReachesEveryConnection(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	const viewers = 50
	conns := make([]*fakeConn, viewers)
	for i := range conns {
		conns[i] = &fakeConn{}
		h.Register(conns[i])
	}

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.Broadcast(domain.CountEvent(domain.EventNewAlert, 3, at))

	for i, conn := range conns {
		payloads := conn.received()
		// One CONNECTED confirmation plus one broadcast.
		if len(payloads) != 2 {
			t.Fatalf("conn %d: expected 2 payloads, got %d", i, len(payloads))
		}
		var event domain.Event
		if err := json.Unmarshal(payloads[1], &event); err != nil {
			t.Fatalf("conn %d: decode broadcast: %v", i, err)
		}
		if event.Type != domain.EventNewAlert || event.Count == nil || *event.Count != 3 {
			t.Fatalf("conn %d: unexpected broadcast event: %+v", i, event)
		}
	}
}

func TestBroadcastDropsOnlyFailingConnection(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	healthy := make([]*fakeConn, 0, 49)
	for i := 0; i < 49; i++ {
		conn := &fakeConn{}
		healthy = append(healthy, conn)
		h.Register(conn)
	}
	broken := &fakeConn{}
	h.Register(broken)
	broken.mu.Lock()
	broken.fail = true
	broken.mu.Unlock()

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	h.Broadcast(domain.CountEvent(domain.EventAlertAcknowledged, 0, at))

	if h.Connections() != 49 {
		t.Fatalf("expected failing connection to be dropped, have %d connections", h.Connections())
	}
	broken.mu.Lock()
	closed := broken.closed
	broken.mu.Unlock()
	if !closed {
		t.Fatalf("dropped connection must be closed")
	}
	for i, conn := range healthy {
		if len(conn.received()) != 2 {
			t.Fatalf("conn %d: delivery must continue past the failing peer", i)
		}
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	t.Parallel()

	h := New(testLogger())
	conn := &fakeConn{}
	h.Register(conn)

	h.Unregister(conn)
	h.Unregister(conn)
	stranger := &fakeConn{}
	h.Unregister(stranger)

	if h.Connections() != 0 {
		t.Fatalf("expected empty registry, got %d", h.Connections())
	}
}
