// Package quote persists outstanding payment challenges keyed by actionId.
// An expired quote is reported distinctly from an absent one so the
// enforcer can answer "pay again" versus "no such quote".
package quote

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/payment"
)

var (
	ErrNotFound = errors.New("quote: not found")
	ErrExpired  = errors.New("quote: expired")
)

// Store holds challenges between the quote and payment stages. Get returns
// ErrExpired for a quote past its settlement window and ErrNotFound for an
// unknown or deleted actionId; neither is ever returned as a live quote.
//
// Take is the settlement claim: it removes and returns the live quote in
// one atomic store operation, so concurrent requests presenting the same
// actionId can never both settle against one payment. Exactly one caller
// gets the challenge; the rest see ErrNotFound. A caller whose
// verification then fails restores the quote with Put.
type Store interface {
	Put(ctx context.Context, ch *payment.Challenge) error
	Get(ctx context.Context, actionID string) (*payment.Challenge, error)
	Take(ctx context.Context, actionID string) (*payment.Challenge, error)
	Delete(ctx context.Context, actionID string) error
}

// MemoryStore is the in-process Store. Expired quotes are retained until
// deleted so a late proof still maps to ErrExpired rather than vanishing.
type MemoryStore struct {
	mu     sync.RWMutex
	quotes map[string]*payment.Challenge
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{quotes: make(map[string]*payment.Challenge), now: time.Now}
}

// SetClock overrides the wall clock. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) { s.now = now }

func (s *MemoryStore) Put(ctx context.Context, ch *payment.Challenge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	val := *ch
	s.quotes[ch.ActionID] = &val
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, actionID string) (*payment.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.quotes[actionID]
	if !ok {
		return nil, ErrNotFound
	}
	if ch.Expired(s.now()) {
		return nil, ErrExpired
	}
	val := *ch
	return &val, nil
}

// Take claims the live quote under the write lock. Expired quotes are left
// in place so a later attempt still reads ErrExpired.
func (s *MemoryStore) Take(ctx context.Context, actionID string) (*payment.Challenge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.quotes[actionID]
	if !ok {
		return nil, ErrNotFound
	}
	if ch.Expired(s.now()) {
		return nil, ErrExpired
	}
	delete(s.quotes, actionID)
	val := *ch
	return &val, nil
}

func (s *MemoryStore) Delete(ctx context.Context, actionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quotes, actionID)
	return nil
}
