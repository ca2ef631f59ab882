// Package ratelimit counts per-agent-per-route calls inside fixed
// per-minute windows. The window is keyed by wall-clock minute truncation,
// not sliding; a burst of 2x the limit straddling a minute boundary is an
// accepted property of this scheme.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Limiter increments and returns the call count for the window containing
// at. The increment must be atomic per window key.
type Limiter interface {
	Increment(ctx context.Context, agentAddress, routeID string, at time.Time) (int64, error)
}

// WindowKey identifies the fixed minute bucket for an agent/route pair.
func WindowKey(agentAddress, routeID string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%s", strings.ToLower(agentAddress), routeID, at.UTC().Format("200601021504"))
}

// MemoryLimiter is the in-process Limiter. Expired windows are pruned
// opportunistically on each increment so the map does not grow unbounded.
type MemoryLimiter struct {
	mu        sync.Mutex
	counts    map[string]int64
	lastPrune time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{counts: make(map[string]int64)}
}

func (l *MemoryLimiter) Increment(ctx context.Context, agentAddress, routeID string, at time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := WindowKey(agentAddress, routeID, at)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[key]++
	count := l.counts[key]
	l.pruneLocked(at)
	return count, nil
}

// pruneLocked drops windows older than two minutes, at most once a minute.
func (l *MemoryLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < time.Minute {
		return
	}
	l.lastPrune = now
	horizon := now.UTC().Add(-2 * time.Minute).Format("200601021504")
	for key := range l.counts {
		idx := strings.LastIndex(key, ":")
		if idx >= 0 && key[idx+1:] < horizon {
			delete(l.counts, key)
		}
	}
}
