package syncagent

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitForCount(t *testing.T, agent *Agent, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if agent.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("count never reached %d, last value %d", want, agent.Count())
}

// newTestBackend serves an alert list and a push channel that emits the given
// event payloads after the upgrade.
func newTestBackend(t *testing.T, alertsBody string, pushPayloads []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/alerts", func(writer http.ResponseWriter, _ *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		_, _ = writer.Write([]byte(alertsBody))
	})

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux.HandleFunc("/ws", func(writer http.ResponseWriter, request *http.Request) {
		conn, err := upgrader.Upgrade(writer, request, nil)
		if err != nil {
			return
		}
		for _, payload := range pushPayloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
				return
			}
		}
		// Hold the channel open; the agent closes it on shutdown.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestAgent(t *testing.T, server *httptest.Server) *Agent {
	t.Helper()
	agent, err := New(Options{
		AlertsURL:       server.URL + "/api/alerts",
		StreamURL:       "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
		RetryDelay:      10 * time.Millisecond,
		RefreshInterval: time.Hour,
		Logger:          testLogger(),
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	return agent
}

func TestAgentPullsBaselineCount(t *testing.T) {
	t.Parallel()

	// Mixed bool and 0/1 acknowledged spellings in one list.
	alerts := `[
		{"id":1,"acknowledged":false},
		{"id":2,"acknowledged":0},
		{"id":3,"acknowledged":true},
		{"id":4,"acknowledged":1}
	]`
	server := newTestBackend(t, alerts, nil)
	agent := newTestAgent(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = agent.Run(ctx) }()

	waitForCount(t, agent, 2)
}

func TestAgentReplacesCountFromPushedEvents(t *testing.T) {
	t.Parallel()

	server := newTestBackend(t, `[]`, []string{
		`{"type":"CONNECTED","message":"push channel established"}`,
		`{"type":"NEW_ALERT","count":5,"timestamp":"2026-03-01T08:00:00Z"}`,
		`{"type":"SOMETHING_NEW","count":99}`,
		`{"type":"ALERT_ACKNOWLEDGED","count":2,"timestamp":"2026-03-01T08:01:00Z"}`,
	})
	agent := newTestAgent(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = agent.Run(ctx) }()

	// The final pushed count wins; the unknown type in between must be skipped.
	waitForCount(t, agent, 2)
}

func TestAgentKeepsLastCountWhenChannelIsDown(t *testing.T) {
	t.Parallel()

	server := newTestBackend(t, `[{"id":1,"acknowledged":false},{"id":2,"acknowledged":false}]`, nil)
	agent := newTestAgent(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = agent.Run(ctx) }()
	waitForCount(t, agent, 2)

	// Stop the loop entirely; the last synchronized value must survive.
	cancel()
	time.Sleep(20 * time.Millisecond)
	if agent.Count() != 2 {
		t.Fatalf("count must hold its last value after shutdown, got %d", agent.Count())
	}
}

func TestAgentFiresChangeCallback(t *testing.T) {
	t.Parallel()

	changes := make(chan int, 8)
	server := newTestBackend(t, `[]`, []string{
		`{"type":"NEW_ALERT","count":1,"timestamp":"2026-03-01T08:00:00Z"}`,
	})
	agent, err := New(Options{
		AlertsURL:       server.URL + "/api/alerts",
		StreamURL:       "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
		RetryDelay:      10 * time.Millisecond,
		RefreshInterval: time.Hour,
		Logger:          testLogger(),
		OnChange:        func(count int) { changes <- count },
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = agent.Run(ctx) }()

	select {
	case got := <-changes:
		if got != 1 {
			t.Fatalf("expected change to 1, got %d", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("change callback never fired")
	}
}

func TestNewValidatesOptions(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{StreamURL: "ws://x/ws"}); err == nil {
		t.Fatalf("expected error for missing alerts URL")
	}
	if _, err := New(Options{AlertsURL: "http://x/api/alerts"}); err == nil {
		t.Fatalf("expected error for missing stream URL")
	}
}
