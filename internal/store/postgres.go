package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gridalert/internal/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// The active-uniqueness invariant lives in the schema: a partial unique index
// over (source_id, kind) scoped to unacknowledged rows. CreateOrRefresh rides
// on it with a single conflict-as-refresh upsert, replacing the stored
// procedure the engine historically relied on.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS alerts (
	id              BIGSERIAL PRIMARY KEY,
	source_id       TEXT        NOT NULL,
	kind            TEXT        NOT NULL,
	message         TEXT        NOT NULL DEFAULT '',
	raised_at       TIMESTAMPTZ NOT NULL,
	acknowledged    BOOLEAN     NOT NULL DEFAULT FALSE,
	acknowledged_by TEXT        NOT NULL DEFAULT '',
	acknowledged_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS alerts_active_key
	ON alerts (source_id, kind) WHERE NOT acknowledged;
CREATE INDEX IF NOT EXISTS alerts_raised_at ON alerts (raised_at DESC);
`

const alertColumns = `id, source_id, kind, message, raised_at, acknowledged, acknowledged_by, acknowledged_at`

// PostgresStore persists alerts in a relational backend.
// Params: sqlx handle over the pgx stdlib driver.
// Returns: durable store implementation.
type PostgresStore struct {
	db *sqlx.DB
}

// PostgresSettings configures the relational backend connection.
// Params: DSN and pool limits from config.
// Returns: connection settings for NewPostgresStore.
type PostgresSettings struct {
	DSN             string
	MaxOpenConns    int
	ConnMaxIdleTime time.Duration
}

// NewPostgresStore connects to the database and ensures the alert schema.
// Params: connection settings.
// Returns: initialized store or a setup error wrapping ErrUnavailable.
func NewPostgresStore(ctx context.Context, settings PostgresSettings) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", settings.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w: %w", ErrUnavailable, err)
	}
	if settings.MaxOpenConns > 0 {
		db.SetMaxOpenConns(settings.MaxOpenConns)
	}
	if settings.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(settings.ConnMaxIdleTime)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure alert schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// CreateOrRefresh inserts a new active alert or refreshes the existing one in
// one atomic statement. The xmax=0 check distinguishes insert from conflict
// update, so the caller learns whether a row was actually created.
// Params: dedup key fields, message, and persistence time.
// Returns: resulting alert row and creation flag.
func (s *PostgresStore) CreateOrRefresh(ctx context.Context, source string, kind domain.Kind, message string, now time.Time) (domain.Alert, bool, error) {
	var row struct {
		domain.Alert
		Created bool `db:"created"`
	}
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO alerts (source_id, kind, message, raised_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id, kind) WHERE NOT acknowledged
		DO UPDATE SET
			message   = EXCLUDED.message,
			raised_at = GREATEST(alerts.raised_at, EXCLUDED.raised_at)
		RETURNING `+alertColumns+`, (xmax = 0) AS created`,
		source, string(kind), message, now)
	if err != nil {
		return domain.Alert{}, false, fmt.Errorf("raise alert: %w", err)
	}
	return row.Alert, row.Created, nil
}

// Acknowledge runs the active-to-acknowledged compare-and-set as one UPDATE
// guarded by NOT acknowledged; losing a concurrent race degrades to the
// idempotent already-acknowledged path.
// Params: alert id, operator identity, and acknowledgment time.
// Returns: resulting row, transition flag, or ErrNotFound.
func (s *PostgresStore) Acknowledge(ctx context.Context, id int64, operator string, now time.Time) (domain.Alert, bool, error) {
	var alert domain.Alert
	err := s.db.GetContext(ctx, &alert, `
		UPDATE alerts
		SET acknowledged = TRUE, acknowledged_by = $2, acknowledged_at = $3
		WHERE id = $1 AND NOT acknowledged
		RETURNING `+alertColumns,
		id, operator, now)
	if err == nil {
		return alert, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Alert{}, false, fmt.Errorf("acknowledge alert %d: %w", id, err)
	}

	alert, getErr := s.Get(ctx, id)
	if getErr != nil {
		return domain.Alert{}, false, getErr
	}
	return alert, false, nil
}

// AcknowledgeAll acknowledges every active alert in one statement.
// Params: operator identity and acknowledgment time.
// Returns: number of alerts transitioned.
func (s *PostgresStore) AcknowledgeAll(ctx context.Context, operator string, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE alerts
		SET acknowledged = TRUE, acknowledged_by = $1, acknowledged_at = $2
		WHERE NOT acknowledged`,
		operator, now)
	if err != nil {
		return 0, fmt.Errorf("acknowledge all: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("acknowledge all rows: %w", err)
	}
	return int(count), nil
}

// ActiveCount returns the number of unacknowledged alerts.
// Params: none.
// Returns: active alert count.
func (s *PostgresStore) ActiveCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM alerts WHERE NOT acknowledged`); err != nil {
		return 0, fmt.Errorf("active count: %w", err)
	}
	return count, nil
}

// Get returns one alert by id.
// Params: alert id.
// Returns: alert row or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id int64) (domain.Alert, error) {
	var alert domain.Alert
	err := s.db.GetContext(ctx, &alert, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Alert{}, ErrNotFound
		}
		return domain.Alert{}, fmt.Errorf("get alert %d: %w", id, err)
	}
	return alert, nil
}

// List returns every alert ordered by raise time, newest first.
// Params: none.
// Returns: alert slice.
func (s *PostgresStore) List(ctx context.Context) ([]domain.Alert, error) {
	alerts := make([]domain.Alert, 0)
	err := s.db.SelectContext(ctx, &alerts, `SELECT `+alertColumns+` FROM alerts ORDER BY raised_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

// PurgeAcknowledged removes acknowledged rows.
// Params: none.
// Returns: number of rows removed.
func (s *PostgresStore) PurgeAcknowledged(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE acknowledged`)
	if err != nil {
		return 0, fmt.Errorf("purge alerts: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows: %w", err)
	}
	return int(count), nil
}

// Close closes the database pool.
// Params: none.
// Returns: close error.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
