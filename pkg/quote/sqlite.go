package quote

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/payment"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists quotes across gateway restarts.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS quotes (
		action_id       TEXT PRIMARY KEY,
		route_id        TEXT NOT NULL,
		asset           TEXT NOT NULL,
		amount_atomic   TEXT NOT NULL,
		pay_to          TEXT NOT NULL,
		expires_at      INTEGER NOT NULL,
		facilitator_url TEXT NOT NULL DEFAULT '',
		protocol_mode   TEXT NOT NULL DEFAULT 'dual'
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("quote: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Put(ctx context.Context, ch *payment.Challenge) error {
	query := `
	INSERT INTO quotes (action_id, route_id, asset, amount_atomic, pay_to, expires_at, facilitator_url, protocol_mode)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (action_id) DO UPDATE SET
		route_id = excluded.route_id,
		amount_atomic = excluded.amount_atomic,
		expires_at = excluded.expires_at`
	_, err := s.db.ExecContext(ctx, query,
		ch.ActionID, ch.RouteID, ch.Asset, ch.AmountAtomic, ch.PayTo, ch.ExpiresAt, ch.FacilitatorURL, ch.ProtocolMode)
	if err != nil {
		return fmt.Errorf("quote: put: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, actionID string) (*payment.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT action_id, route_id, asset, amount_atomic, pay_to, expires_at, facilitator_url, protocol_mode
	FROM quotes WHERE action_id = ?`, actionID)

	var ch payment.Challenge
	err := row.Scan(&ch.ActionID, &ch.RouteID, &ch.Asset, &ch.AmountAtomic, &ch.PayTo, &ch.ExpiresAt, &ch.FacilitatorURL, &ch.ProtocolMode)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("quote: get: %w", err)
	}
	if ch.Expired(s.now()) {
		return nil, ErrExpired
	}
	return &ch, nil
}

// Take claims the live quote in one DELETE..RETURNING statement, so two
// requests racing on the same actionId cannot both settle. Expired rows are
// not deleted; the miss is classified with a follow-up read.
func (s *SQLiteStore) Take(ctx context.Context, actionID string) (*payment.Challenge, error) {
	row := s.db.QueryRowContext(ctx, `
	DELETE FROM quotes WHERE action_id = ? AND expires_at >= ?
	RETURNING action_id, route_id, asset, amount_atomic, pay_to, expires_at, facilitator_url, protocol_mode`,
		actionID, s.now().Unix())

	var ch payment.Challenge
	err := row.Scan(&ch.ActionID, &ch.RouteID, &ch.Asset, &ch.AmountAtomic, &ch.PayTo, &ch.ExpiresAt, &ch.FacilitatorURL, &ch.ProtocolMode)
	if err == sql.ErrNoRows {
		if _, gerr := s.Get(ctx, actionID); gerr != nil {
			return nil, gerr
		}
		// The row was live a moment ago and claimed by a concurrent
		// request between our delete and the re-read.
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("quote: take: %w", err)
	}
	return &ch, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, actionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM quotes WHERE action_id = ?", actionID); err != nil {
		return fmt.Errorf("quote: delete: %w", err)
	}
	return nil
}
