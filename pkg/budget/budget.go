// Package budget tracks per-agent cumulative spend against daily caps with
// fail-closed, atomic check-and-debit semantics. Amounts are integers in
// atomic payment-asset units; there is no floating point anywhere.
package budget

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Service debits an agent's running daily total. TryDebit is a single
// atomic check-and-increment: when the debit would push the day's total
// past dailyCap it returns false and the total is untouched. A committed
// debit is never rolled back by this package.
type Service interface {
	TryDebit(ctx context.Context, agentAddress string, amount, dailyCap int64) (bool, error)
	DailySpent(ctx context.Context, agentAddress string) (int64, error)
}

// DayKey buckets spend by UTC calendar day.
func DayKey(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}

// MemoryService is the in-process Service. A single mutex closes the
// read-then-write race window between concurrent debits for one agent.
type MemoryService struct {
	mu    sync.Mutex
	spent map[string]int64 // agent|day -> atomic units
	now   func() time.Time
}

func NewMemoryService() *MemoryService {
	return &MemoryService{spent: make(map[string]int64), now: time.Now}
}

// SetClock overrides the wall clock. Test hook.
func (s *MemoryService) SetClock(now func() time.Time) { s.now = now }

func (s *MemoryService) TryDebit(ctx context.Context, agentAddress string, amount, dailyCap int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := spendKey(agentAddress, DayKey(s.now()))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spent[key]+amount > dailyCap {
		return false, nil
	}
	s.spent[key] += amount
	return true, nil
}

func (s *MemoryService) DailySpent(ctx context.Context, agentAddress string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spent[spendKey(agentAddress, DayKey(s.now()))], nil
}

func spendKey(agentAddress, day string) string {
	return strings.ToLower(agentAddress) + "|" + day
}
