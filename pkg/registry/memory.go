package registry

import (
	"context"
	"strings"
	"sync"
)

// MemoryRegistry is an in-memory PassportClient and SessionClient, used in
// dev mode and tests. Thread-safe via RWMutex; addresses are keyed
// case-insensitively.
type MemoryRegistry struct {
	mu        sync.RWMutex
	passports map[string]*PassportPolicy
	sessions  map[string]*SessionGrant
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		passports: make(map[string]*PassportPolicy),
		sessions:  make(map[string]*SessionGrant),
	}
}

func (m *MemoryRegistry) PutPassport(p *PassportPolicy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val := *p
	m.passports[strings.ToLower(p.AgentAddress)] = &val
}

func (m *MemoryRegistry) PutSession(g *SessionGrant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val := *g
	m.sessions[strings.ToLower(g.SessionAddress)] = &val
}

func (m *MemoryRegistry) Passport(ctx context.Context, agentAddress string) (*PassportPolicy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.passports[strings.ToLower(agentAddress)]
	if !ok {
		return nil, ErrNotFound
	}
	// return copy to avoid race on mutation outside lock
	val := *p
	return &val, nil
}

func (m *MemoryRegistry) Session(ctx context.Context, sessionAddress string) (*SessionGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.sessions[strings.ToLower(sessionAddress)]
	if !ok {
		return nil, ErrNotFound
	}
	val := *g
	return &val, nil
}
