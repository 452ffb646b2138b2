package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"gridalert/internal/domain"
)

// MemoryStore keeps alerts in process memory for single-instance mode.
// Params: in-memory alert table and active-key index.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu         sync.Mutex
	nextID     int64
	alerts     map[int64]domain.Alert
	active     map[activeKey]int64
	lastRaised map[string]time.Time
}

type activeKey struct {
	source string
	kind   domain.Kind
}

// NewMemoryStore creates an empty in-memory store.
// Params: none.
// Returns: initialized store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:     1,
		alerts:     make(map[int64]domain.Alert),
		active:     make(map[activeKey]int64),
		lastRaised: make(map[string]time.Time),
	}
}

// CreateOrRefresh inserts a new active alert or refreshes the existing one.
// The whole check-else-insert runs under the store lock, so exactly one of any
// number of concurrent callers for the same key observes created=true.
// Params: dedup key fields, message, and persistence time.
// Returns: resulting alert row and creation flag.
func (s *MemoryStore) CreateOrRefresh(_ context.Context, source string, kind domain.Kind, message string, now time.Time) (domain.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raisedAt := s.monotonicLocked(source, now)
	key := activeKey{source: source, kind: kind}
	if id, ok := s.active[key]; ok {
		alert := s.alerts[id]
		alert.Message = message
		alert.RaisedAt = raisedAt
		s.alerts[id] = alert
		return alert, false, nil
	}

	alert := domain.Alert{
		ID:       s.nextID,
		SourceID: source,
		Kind:     kind,
		Message:  message,
		RaisedAt: raisedAt,
	}
	s.nextID++
	s.alerts[alert.ID] = alert
	s.active[key] = alert.ID
	return alert, true, nil
}

// Acknowledge transitions one alert from active to acknowledged.
// Params: alert id, operator identity, and acknowledgment time.
// Returns: resulting row, transition flag, or ErrNotFound.
func (s *MemoryStore) Acknowledge(_ context.Context, id int64, operator string, now time.Time) (domain.Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return domain.Alert{}, false, ErrNotFound
	}
	if alert.Acknowledged {
		return alert, false, nil
	}
	s.ackLocked(&alert, operator, now)
	return alert, true, nil
}

// AcknowledgeAll acknowledges every active alert in one locked pass.
// Params: operator identity and acknowledgment time.
// Returns: number of alerts transitioned.
func (s *MemoryStore) AcknowledgeAll(_ context.Context, operator string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, id := range s.active {
		alert := s.alerts[id]
		s.ackLocked(&alert, operator, now)
		count++
	}
	return count, nil
}

// ActiveCount returns the number of unacknowledged alerts.
// Params: none.
// Returns: active alert count.
func (s *MemoryStore) ActiveCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active), nil
}

// Get returns one alert by id.
// Params: alert id.
// Returns: alert row or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id int64) (domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[id]
	if !ok {
		return domain.Alert{}, ErrNotFound
	}
	return alert, nil
}

// List returns every alert ordered by raise time, newest first.
// Params: none.
// Returns: alert slice.
func (s *MemoryStore) List(_ context.Context) ([]domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Alert, 0, len(s.alerts))
	for _, alert := range s.alerts {
		out = append(out, alert)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RaisedAt.Equal(out[j].RaisedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].RaisedAt.After(out[j].RaisedAt)
	})
	return out, nil
}

// PurgeAcknowledged removes acknowledged rows.
// Params: none.
// Returns: number of rows removed.
func (s *MemoryStore) PurgeAcknowledged(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, alert := range s.alerts {
		if alert.Acknowledged {
			delete(s.alerts, id)
			count++
		}
	}
	return count, nil
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}

// ackLocked applies the acknowledged transition. Caller holds the store lock.
func (s *MemoryStore) ackLocked(alert *domain.Alert, operator string, now time.Time) {
	ackedAt := now
	alert.Acknowledged = true
	alert.AcknowledgedBy = operator
	alert.AcknowledgedAt = &ackedAt
	s.alerts[alert.ID] = *alert
	delete(s.active, activeKey{source: alert.SourceID, kind: alert.Kind})
}

// monotonicLocked keeps raise timestamps strictly increasing per source so
// alert ordering within one source is stable. Caller holds the store lock.
func (s *MemoryStore) monotonicLocked(source string, now time.Time) time.Time {
	last, ok := s.lastRaised[source]
	if ok && !now.After(last) {
		now = last.Add(time.Nanosecond)
	}
	s.lastRaised[source] = now
	return now
}
