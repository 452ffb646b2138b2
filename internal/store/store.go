package store

import (
	"context"
	"errors"
	"time"

	"gridalert/internal/domain"
)

var (
	// ErrNotFound indicates an unknown alert id.
	ErrNotFound = errors.New("alert not found")
	// ErrUnavailable indicates the persistence backend cannot be reached.
	ErrUnavailable = errors.New("store unavailable")
)

// Store provides alert persistence with the active-uniqueness guarantee:
// for one (source_id, kind) pair at most one unacknowledged row exists, and
// CreateOrRefresh is atomic with respect to that key, so two concurrent calls
// never both report created=true.
// Params: alert lifecycle operations plus the read path for the pull fallback.
// Returns: backend persistence behavior.
type Store interface {
	// CreateOrRefresh inserts a new active alert, or refreshes the message and
	// raise time of the existing active alert for the same (source, kind).
	// Returns the resulting row and created=true only for an actual insert.
	CreateOrRefresh(ctx context.Context, source string, kind domain.Kind, message string, now time.Time) (domain.Alert, bool, error)
	// Acknowledge transitions one alert from active to acknowledged.
	// Returns changed=false when the alert was already acknowledged and
	// ErrNotFound for an unknown id. The transition is a compare-and-set:
	// concurrent acknowledgments of the same id are safe.
	Acknowledge(ctx context.Context, id int64, operator string, now time.Time) (domain.Alert, bool, error)
	// AcknowledgeAll acknowledges every active alert as one logical unit.
	// Returns the number of alerts transitioned.
	AcknowledgeAll(ctx context.Context, operator string, now time.Time) (int, error)
	// ActiveCount returns the number of unacknowledged alerts.
	ActiveCount(ctx context.Context) (int, error)
	// Get returns one alert by id or ErrNotFound.
	Get(ctx context.Context, id int64) (domain.Alert, error)
	// List returns every alert, newest raise first.
	List(ctx context.Context) ([]domain.Alert, error)
	// PurgeAcknowledged removes acknowledged rows. Administrative operation,
	// outside the normal alert lifecycle.
	PurgeAcknowledged(ctx context.Context) (int, error)
	Close() error
}
