package app

import (
	"context"
	"log/slog"
	"sync"

	"gridalert/internal/clock"
	"gridalert/internal/domain"
	"gridalert/internal/engine"
	"gridalert/internal/notify"
	"gridalert/internal/store"
)

// Broadcaster pushes one event to every connected viewer.
// Params: event payload to fan out.
// Returns: delivery attempted to all connections.
type Broadcaster interface {
	Broadcast(event domain.Event)
}

// NoticeDispatcher delivers operator notices to side channels.
// Params: context and notice payload.
// Returns: nothing; delivery is best effort.
type NoticeDispatcher interface {
	Dispatch(ctx context.Context, notice notify.Notice)
}

// Manager coordinates the alert lifecycle: raise observations through the
// dedup engine, acknowledge through the store, and push count updates to
// viewers after every state change. Broadcasts are serialized so the count in
// each event matches a pull done at broadcast time; interleaved readers never
// see a stale count overwrite a fresher one.
// Params: store, dedup engine, broadcaster, notice dispatcher, and clock.
// Returns: lifecycle coordination layer for ingest and API surfaces.
type Manager struct {
	store    store.Store
	engine   *engine.Engine
	hub      Broadcaster
	notifier NoticeDispatcher
	logger   *slog.Logger
	clock    clock.Clock

	broadcastMu sync.Mutex
}

// NewManager creates the lifecycle manager.
// Params: runtime dependencies; notifier may be nil when no channel is enabled.
// Returns: initialized manager.
func NewManager(
	st store.Store,
	eng *engine.Engine,
	hub Broadcaster,
	notifier NoticeDispatcher,
	logger *slog.Logger,
	clk clock.Clock,
) *Manager {
	return &Manager{
		store:    st,
		engine:   eng,
		hub:      hub,
		notifier: notifier,
		logger:   logger,
		clock:    clk,
	}
}

// Raise processes one fault observation. A created alert triggers one count
// broadcast and one operator notice; a refresh of an already-active alert
// changes nothing visible and broadcasts nothing. A store failure fails the
// call so the reporter can retry.
// Params: context and validated observation.
// Returns: raise result or taxonomy/store error.
func (m *Manager) Raise(ctx context.Context, obs domain.Observation) (engine.RaiseResult, error) {
	now := m.clock.Now()
	result, err := m.engine.Raise(ctx, obs, now)
	if err != nil {
		return engine.RaiseResult{}, err
	}

	if !result.Created {
		m.logger.Debug("active alert refreshed",
			"source", result.Alert.SourceID,
			"kind", string(result.Alert.Kind),
			"alert_id", result.Alert.ID)
		return result, nil
	}

	m.logger.Info("alert raised",
		"source", result.Alert.SourceID,
		"kind", string(result.Alert.Kind),
		"alert_id", result.Alert.ID)

	count, ok := m.broadcastCount(ctx, domain.EventNewAlert)
	if ok && m.notifier != nil {
		m.notifier.Dispatch(ctx, notify.NoticeForRaise(result.Alert, count, now))
	}
	return result, nil
}

// Acknowledge marks one alert as handled. Repeating the call for an already
// acknowledged alert succeeds without changing anything and without a second
// broadcast.
// Params: context, alert id, and operator identity.
// Returns: alert row, changed flag, and lookup/store error.
func (m *Manager) Acknowledge(ctx context.Context, id int64, operator string) (domain.Alert, bool, error) {
	now := m.clock.Now()
	alert, changed, err := m.store.Acknowledge(ctx, id, operator, now)
	if err != nil {
		return domain.Alert{}, false, err
	}
	if !changed {
		return alert, false, nil
	}

	m.logger.Info("alert acknowledged", "alert_id", id, "operator", operator)

	count, ok := m.broadcastCount(ctx, domain.EventAlertAcknowledged)
	if ok && m.notifier != nil {
		m.notifier.Dispatch(ctx, notify.NoticeForAcknowledge(id, operator, count, now))
	}
	return alert, true, nil
}

// AcknowledgeAll marks every active alert as handled in one step with exactly
// one broadcast carrying the final count, regardless of how many rows changed.
// With nothing active it is a no-op and stays silent.
// Params: context and operator identity.
// Returns: number of alerts acknowledged or store error.
func (m *Manager) AcknowledgeAll(ctx context.Context, operator string) (int, error) {
	now := m.clock.Now()
	changed, err := m.store.AcknowledgeAll(ctx, operator, now)
	if err != nil {
		return 0, err
	}
	if changed == 0 {
		return 0, nil
	}

	m.logger.Info("all alerts acknowledged", "count", changed, "operator", operator)

	count, ok := m.broadcastCount(ctx, domain.EventAlertAcknowledged)
	if ok && m.notifier != nil {
		m.notifier.Dispatch(ctx, notify.NoticeForAcknowledge(0, operator, count, now))
	}
	return changed, nil
}

// List returns every stored alert, newest first.
// Params: context.
// Returns: full alert history or store error.
func (m *Manager) List(ctx context.Context) ([]domain.Alert, error) {
	return m.store.List(ctx)
}

// ActiveCount returns the number of unacknowledged alerts.
// Params: context.
// Returns: active count or store error.
func (m *Manager) ActiveCount(ctx context.Context) (int, error) {
	return m.store.ActiveCount(ctx)
}

// PurgeAcknowledged deletes acknowledged alerts from history.
// Params: context.
// Returns: number of rows removed or store error.
func (m *Manager) PurgeAcknowledged(ctx context.Context) (int, error) {
	purged, err := m.store.PurgeAcknowledged(ctx)
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		m.logger.Info("acknowledged alerts purged", "count", purged)
	}
	return purged, nil
}

// broadcastCount pulls a fresh active count and pushes it to all viewers. The
// read and the broadcast run under one lock so concurrent state changes
// produce events whose counts arrive in a consistent order.
// Params: context and event type to emit.
// Returns: broadcast count and whether the pull succeeded; a failed pull logs
// and broadcasts nothing, and callers must not report the zero count anywhere.
func (m *Manager) broadcastCount(ctx context.Context, eventType domain.EventType) (int, bool) {
	m.broadcastMu.Lock()
	defer m.broadcastMu.Unlock()

	count, err := m.store.ActiveCount(ctx)
	if err != nil {
		m.logger.Error("active count pull failed, broadcast skipped",
			"type", string(eventType), "error", err.Error())
		return 0, false
	}
	m.hub.Broadcast(domain.CountEvent(eventType, count, m.clock.Now()))
	return count, true
}
