package audit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/canonicalize"
)

// ErrChainBroken reports that the hash chain failed verification.
var ErrChainBroken = errors.New("audit: hash chain is broken")

// Log is the in-process Sink: a hash-chained append-only event log drained
// by a single background goroutine. Record never blocks the caller; when
// the buffer is full the event is dropped and the drop is logged.
type Log struct {
	mu        sync.RWMutex
	events    []Event
	sequence  uint64
	chainHead string

	incoming chan Event
	done     chan struct{}
	logger   *slog.Logger
}

// NewLog starts a log draining a buffer of the given size (<=0 picks a
// default). Close flushes and stops the drain goroutine.
func NewLog(buffer int, logger *slog.Logger) *Log {
	if buffer <= 0 {
		buffer = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Log{
		incoming: make(chan Event, buffer),
		done:     make(chan struct{}),
		logger:   logger,
	}
	go l.drain()
	return l
}

// Record enqueues an event without blocking. Best-effort per the audit
// contract; a full buffer drops the event with a warning.
func (l *Log) Record(e Event) {
	select {
	case l.incoming <- e:
	default:
		l.logger.Warn("audit buffer full, event dropped",
			"event_type", e.Type, "action_id", e.ActionID)
	}
}

// Close flushes buffered events and stops the drain goroutine.
func (l *Log) Close() {
	close(l.incoming)
	<-l.done
}

func (l *Log) drain() {
	defer close(l.done)
	for e := range l.incoming {
		if err := l.append(e); err != nil {
			// Best-effort: log locally, never propagate.
			l.logger.Error("audit append failed", "event_type", e.Type, "error", err)
		}
	}
}

func (l *Log) append(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sequence++
	e.Sequence = l.sequence
	e.PrevHash = l.chainHead
	e.EntryHash = ""

	hash, err := canonicalize.CanonicalHash(e)
	if err != nil {
		l.sequence--
		return fmt.Errorf("audit: hash event: %w", err)
	}
	e.EntryHash = hash
	l.chainHead = hash
	l.events = append(l.events, e)
	return nil
}

// List returns up to limit most recent events, newest first, optionally
// filtered by agent address.
func (l *Log) List(agentAddress string, limit int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]Event, 0, limit)
	for i := len(l.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := l.events[i]
		if agentAddress != "" && e.AgentAddress != agentAddress {
			continue
		}
		out = append(out, e)
	}
	return out
}

// VerifyChain re-hashes every entry and checks the prev-hash links,
// proving the log has not been mutated in place.
func (l *Log) VerifyChain() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prev := ""
	for i, e := range l.events {
		if e.PrevHash != prev {
			return fmt.Errorf("%w: entry %d prev-hash mismatch", ErrChainBroken, i)
		}
		stored := e.EntryHash
		e.EntryHash = ""
		hash, err := canonicalize.CanonicalHash(e)
		if err != nil {
			return fmt.Errorf("audit: rehash entry %d: %w", i, err)
		}
		if hash != stored {
			return fmt.Errorf("%w: entry %d content mutated", ErrChainBroken, i)
		}
		prev = stored
	}
	return nil
}

// Len reports how many events have been appended.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
