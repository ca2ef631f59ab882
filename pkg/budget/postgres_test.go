package budget_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/budget"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPostgresTryDebit_Admitted verifies the debit upsert runs as a single
// statement and an affected row means the debit committed.
func TestPostgresTryDebit_Admitted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("INSERT INTO agent_spend").
		WithArgs("0xAgent", sqlmock.AnyArg(), int64(600), int64(1000)).
		WillReturnRows(sqlmock.NewRows([]string{"spent"}).AddRow(600))

	s := budget.NewPostgresService(db)
	ok, err := s.TryDebit(context.Background(), "0xAgent", 600, 1000)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresTryDebit_CapGuardRejects verifies that when the statement's
// cap guard filters the update, no row returns and the debit is denied
// without error.
func TestPostgresTryDebit_CapGuardRejects(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("INSERT INTO agent_spend").
		WithArgs("0xAgent", sqlmock.AnyArg(), int64(600), int64(1000)).
		WillReturnRows(sqlmock.NewRows([]string{"spent"}))

	s := budget.NewPostgresService(db)
	ok, err := s.TryDebit(context.Background(), "0xAgent", 600, 1000)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresTryDebit_OverCapShortCircuits verifies a debit larger than
// the cap is denied locally without touching the database.
func TestPostgresTryDebit_OverCapShortCircuits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := budget.NewPostgresService(db)
	ok, err := s.TryDebit(context.Background(), "0xAgent", 2000, 1000)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresDailySpent_NoRow verifies an agent with no spend row reads
// as zero.
func TestPostgresDailySpent_NoRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT spent FROM agent_spend").
		WithArgs("0xAgent", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"spent"}))

	s := budget.NewPostgresService(db)
	spent, err := s.DailySpent(context.Background(), "0xAgent")
	require.NoError(t, err)
	assert.Equal(t, int64(0), spent)
	assert.NoError(t, mock.ExpectationsWereMet())
}
