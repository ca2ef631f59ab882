package receipts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists receipts across gateway restarts.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS receipts (
		receipt_id     TEXT PRIMARY KEY,
		action_id      TEXT NOT NULL UNIQUE,
		route_id       TEXT NOT NULL,
		payer          TEXT NOT NULL,
		amount_atomic  INTEGER NOT NULL,
		asset          TEXT NOT NULL,
		settlement_ref TEXT NOT NULL,
		tx_hash        TEXT NOT NULL DEFAULT '',
		verified_at    INTEGER NOT NULL
	);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("receipts: migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Write(ctx context.Context, r *Receipt) error {
	query := `
	INSERT INTO receipts (receipt_id, action_id, route_id, payer, amount_atomic, asset, settlement_ref, tx_hash, verified_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (action_id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query,
		r.ReceiptID, r.ActionID, r.RouteID, r.Payer, r.AmountAtomic, r.Asset, r.SettlementRef, r.TxHash, r.VerifiedAt.Unix())
	if err != nil {
		return fmt.Errorf("receipts: write: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, actionID string) (*Receipt, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT receipt_id, action_id, route_id, payer, amount_atomic, asset, settlement_ref, tx_hash, verified_at
	FROM receipts WHERE action_id = ?`, actionID)

	var r Receipt
	var verifiedAt int64
	err := row.Scan(&r.ReceiptID, &r.ActionID, &r.RouteID, &r.Payer, &r.AmountAtomic, &r.Asset, &r.SettlementRef, &r.TxHash, &verifiedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("receipts: get: %w", err)
	}
	r.VerifiedAt = time.Unix(verifiedAt, 0).UTC()
	return &r, nil
}
