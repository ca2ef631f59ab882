package budget

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresService implements Service on PostgreSQL. The debit is one upsert
// with the cap check inside the statement, so concurrent debits for the
// same agent serialize on the row and can never overshoot the cap.
type PostgresService struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db, now: time.Now}
}

// Migrate creates the spend table. Call once at startup.
func (s *PostgresService) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS agent_spend (
		agent_address TEXT NOT NULL,
		day           TEXT NOT NULL,
		spent         BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (agent_address, day)
	);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("budget: migrate: %w", err)
	}
	return nil
}

const debitQuery = `
INSERT INTO agent_spend (agent_address, day, spent)
VALUES (LOWER($1), $2, $3)
ON CONFLICT (agent_address, day) DO UPDATE
SET spent = agent_spend.spent + EXCLUDED.spent
WHERE agent_spend.spent + EXCLUDED.spent <= $4
RETURNING spent`

func (s *PostgresService) TryDebit(ctx context.Context, agentAddress string, amount, dailyCap int64) (bool, error) {
	// The statement's cap guard only applies on the conflict path; a fresh
	// row must be checked here.
	if amount > dailyCap {
		return false, nil
	}

	var spent int64
	err := s.db.QueryRowContext(ctx, debitQuery, agentAddress, DayKey(s.now()), amount, dailyCap).Scan(&spent)
	if err == sql.ErrNoRows {
		return false, nil // cap guard rejected the update
	}
	if err != nil {
		return false, fmt.Errorf("budget: debit: %w", err)
	}
	return true, nil
}

func (s *PostgresService) DailySpent(ctx context.Context, agentAddress string) (int64, error) {
	var spent int64
	err := s.db.QueryRowContext(ctx,
		"SELECT spent FROM agent_spend WHERE agent_address = LOWER($1) AND day = $2",
		agentAddress, DayKey(s.now())).Scan(&spent)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("budget: read spend: %w", err)
	}
	return spent, nil
}
