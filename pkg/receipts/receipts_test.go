package receipts_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/receipts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// TestNew_StampsIdentityAndTime verifies receipt construction assigns a
// fresh id and normalizes the verification time to UTC.
func TestNew_StampsIdentityAndTime(t *testing.T) {
	at := time.Date(2026, 2, 12, 10, 0, 0, 0, time.FixedZone("MST", -7*3600))
	r := receipts.New("act-1", "api.enrich-wallet", "0xAgent", 1000, "0xUSDC", "tx:0xfeed", "0xfeed", at)

	assert.NotEmpty(t, r.ReceiptID)
	assert.Equal(t, "act-1", r.ActionID)
	assert.Equal(t, time.UTC, r.VerifiedAt.Location())
	assert.True(t, r.VerifiedAt.Equal(at))
}

// TestMemoryStore_WriteAndGet verifies the in-process store round-trips
// receipts by actionId.
func TestMemoryStore_WriteAndGet(t *testing.T) {
	s := receipts.NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "act-1")
	assert.ErrorIs(t, err, receipts.ErrNotFound)

	r := receipts.New("act-1", "api.enrich-wallet", "0xAgent", 1000, "0xUSDC", "tx:0xfeed", "0xfeed", time.Now())
	require.NoError(t, s.Write(ctx, r))

	got, err := s.Get(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

// TestSQLiteStore_WriteAndGet verifies the persistent store round-trips
// receipts and that a duplicate actionId write is a no-op rather than an
// error (the first settlement record wins).
func TestSQLiteStore_WriteAndGet(t *testing.T) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s, err := receipts.NewSQLiteStore(db)
	require.NoError(t, err)
	ctx := context.Background()

	r := receipts.New("act-1", "api.enrich-wallet", "0xAgent", 1000, "0xUSDC", "tx:0xfeed", "0xfeed", time.Now())
	require.NoError(t, s.Write(ctx, r))

	dup := receipts.New("act-1", "api.enrich-wallet", "0xOther", 9999, "0xUSDC", "tx:0xother", "0xother", time.Now())
	require.NoError(t, s.Write(ctx, dup))

	got, err := s.Get(ctx, "act-1")
	require.NoError(t, err)
	assert.Equal(t, r.ReceiptID, got.ReceiptID)
	assert.Equal(t, "0xAgent", got.Payer)
	assert.Equal(t, int64(1000), got.AmountAtomic)
}
