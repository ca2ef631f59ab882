// Package receipts persists the final settlement record for each paid,
// dispatched action.
package receipts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no receipt exists for the queried actionId.
var ErrNotFound = errors.New("receipts: not found")

// Receipt links an actionId to its verified settlement.
type Receipt struct {
	ReceiptID     string    `json:"receiptId"`
	ActionID      string    `json:"actionId"`
	RouteID       string    `json:"routeId"`
	Payer         string    `json:"payer"`
	AmountAtomic  int64     `json:"amountAtomic"`
	Asset         string    `json:"asset"`
	SettlementRef string    `json:"settlementRef"`
	TxHash        string    `json:"txHash,omitempty"`
	VerifiedAt    time.Time `json:"verifiedAt"`
}

// Writer persists receipts. Write failures are logged by the caller rather
// than failing the request; the payment has already been verified.
type Writer interface {
	Write(ctx context.Context, r *Receipt) error
}

// Store is a Writer that also supports lookup for the receipts API.
type Store interface {
	Writer
	Get(ctx context.Context, actionID string) (*Receipt, error)
}

// New stamps a receipt with a fresh id and the verification time.
func New(actionID, routeID, payer string, amountAtomic int64, asset, settlementRef, txHash string, verifiedAt time.Time) *Receipt {
	return &Receipt{
		ReceiptID:     uuid.NewString(),
		ActionID:      actionID,
		RouteID:       routeID,
		Payer:         payer,
		AmountAtomic:  amountAtomic,
		Asset:         asset,
		SettlementRef: settlementRef,
		TxHash:        txHash,
		VerifiedAt:    verifiedAt.UTC(),
	}
}

// MemoryStore is the in-process Store, keyed by actionId.
type MemoryStore struct {
	mu       sync.RWMutex
	receipts map[string]*Receipt
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{receipts: make(map[string]*Receipt)}
}

func (s *MemoryStore) Write(ctx context.Context, r *Receipt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	val := *r
	s.receipts[r.ActionID] = &val
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, actionID string) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[actionID]
	if !ok {
		return nil, ErrNotFound
	}
	val := *r
	return &val, nil
}
