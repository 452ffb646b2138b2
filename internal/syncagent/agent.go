package syncagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"gridalert/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	// defaultRetryDelay is the fixed pause between reconnect attempts.
	defaultRetryDelay = 3 * time.Second
	// defaultRefreshInterval drives the periodic full pull that catches
	// events lost while the push channel was down.
	defaultRefreshInterval = 5 * time.Second
)

// Options configures the sync agent.
// Params: endpoint URLs, transports, cadence overrides, and change callback.
// Returns: agent construction settings.
type Options struct {
	// AlertsURL is the GET endpoint returning the full alert list.
	AlertsURL string
	// StreamURL is the websocket push channel URL.
	StreamURL string
	// HTTPClient overrides the pull transport. Nil uses a default client.
	HTTPClient *http.Client
	// Dialer overrides the websocket dialer. Nil uses the default dialer.
	Dialer *websocket.Dialer
	// RetryDelay is the fixed reconnect pause. Zero uses the default.
	RetryDelay time.Duration
	// RefreshInterval is the periodic pull cadence. Zero uses the default.
	RefreshInterval time.Duration
	// OnChange fires whenever the active count value changes.
	OnChange func(count int)
	Logger   *slog.Logger
}

// Agent keeps a client-side view of the active alert count in sync with the
// service: an immediate pull for the baseline, a push channel for updates, and
// a periodic pull to recover anything lost while the channel was down. Pushed
// counts replace the local value; the agent never increments on its own.
// Params: options with endpoints and cadence.
// Returns: running sync loop with a readable count.
type Agent struct {
	opts Options

	mu    sync.Mutex
	count int
}

// New creates the sync agent.
// Params: options; AlertsURL and StreamURL are required.
// Returns: agent or validation error.
func New(opts Options) (*Agent, error) {
	if opts.AlertsURL == "" {
		return nil, errors.New("alerts URL is required")
	}
	if opts.StreamURL == "" {
		return nil, errors.New("stream URL is required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = defaultRefreshInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Agent{opts: opts}, nil
}

// Count returns the last synchronized active alert count. The value survives
// channel loss; it only moves on fresh server data.
// Params: none.
// Returns: active alert count.
func (a *Agent) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Run drives the sync loop until the context is canceled.
// Params: lifecycle context.
// Returns: ctx.Err() after shutdown.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.refresh(ctx); err != nil {
		a.opts.Logger.Warn("initial alert pull failed", "error", err.Error())
	}

	go a.refreshLoop(ctx)

	for {
		if err := a.runChannel(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.opts.Logger.Warn("push channel lost, reconnecting", "error", err.Error())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.opts.RetryDelay):
		}
	}
}

// refreshLoop pulls the full list on a fixed cadence.
func (a *Agent) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(a.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.refresh(ctx); err != nil {
				a.opts.Logger.Warn("periodic alert pull failed", "error", err.Error())
			}
		}
	}
}

// refresh pulls the full alert list and recomputes the active count.
// Params: request context.
// Returns: transport or decode error; the local count is untouched on failure.
func (a *Agent) refresh(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, a.opts.AlertsURL, nil)
	if err != nil {
		return fmt.Errorf("build alerts request: %w", err)
	}
	response, err := a.opts.HTTPClient.Do(request)
	if err != nil {
		return fmt.Errorf("pull alerts: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("pull alerts status=%d", response.StatusCode)
	}

	// Acknowledged arrives as a JSON bool or a 0/1 integer depending on the
	// storage backend behind the endpoint.
	var alerts []struct {
		Acknowledged domain.AckFlag `json:"acknowledged"`
	}
	if err := json.NewDecoder(response.Body).Decode(&alerts); err != nil {
		return fmt.Errorf("decode alerts: %w", err)
	}

	active := 0
	for _, alert := range alerts {
		if !bool(alert.Acknowledged) {
			active++
		}
	}
	a.setCount(active)
	return nil
}

// runChannel dials the push channel and consumes events until it fails.
// Params: lifecycle context.
// Returns: dial or read error ending this channel session.
func (a *Agent) runChannel(ctx context.Context) error {
	conn, _, err := a.opts.Dialer.DialContext(ctx, a.opts.StreamURL, nil)
	if err != nil {
		return fmt.Errorf("dial push channel: %w", err)
	}
	defer conn.Close()

	// Unblock the blocking read when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read push channel: %w", err)
		}
		a.handlePayload(payload)
	}
}

// handlePayload applies one pushed event to the local count. Unknown event
// types are skipped so the channel can grow new types without breaking
// deployed clients.
// Params: raw event bytes.
// Returns: none.
func (a *Agent) handlePayload(payload []byte) {
	event, err := domain.DecodeEvent(payload)
	if err != nil {
		a.opts.Logger.Warn("push event decode failed", "error", err.Error())
		return
	}

	switch event.Type {
	case domain.EventConnected:
		a.opts.Logger.Info("push channel established")
	case domain.EventNewAlert, domain.EventAlertAcknowledged:
		if event.Count == nil {
			a.opts.Logger.Warn("push event missing count", "type", string(event.Type))
			return
		}
		a.setCount(*event.Count)
	default:
		a.opts.Logger.Debug("ignoring unknown push event", "type", string(event.Type))
	}
}

// setCount replaces the local count and fires the change callback.
// Params: fresh server-provided count.
// Returns: none.
func (a *Agent) setCount(count int) {
	a.mu.Lock()
	changed := count != a.count
	a.count = count
	a.mu.Unlock()
	if changed && a.opts.OnChange != nil {
		a.opts.OnChange(count)
	}
}
