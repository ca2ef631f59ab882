// Package nonce blocks byte-identical request replay. A (session, nonce)
// pair is consumed exactly once; consumption is unconditional and never
// rolled back by later pipeline failures.
package nonce

import (
	"context"
	"strings"
	"sync"
)

// Store records (session, nonce) pairs. InsertIfAbsent must be atomic under
// concurrent calls with the same pair: exactly one caller observes true.
type Store interface {
	InsertIfAbsent(ctx context.Context, sessionAddress, nonce string) (bool, error)
}

// MemoryStore is the in-process Store. Thread-safe; pairs are retained for
// the life of the process.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

func (s *MemoryStore) InsertIfAbsent(ctx context.Context, sessionAddress, nonce string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := pairKey(sessionAddress, nonce)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}
	return true, nil
}

// Len reports how many pairs have been consumed. Test and metrics helper.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func pairKey(sessionAddress, nonce string) string {
	// Session addresses compare case-insensitively; nonces are opaque bytes.
	return strings.ToLower(sessionAddress) + "|" + nonce
}
