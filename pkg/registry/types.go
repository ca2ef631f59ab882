// Package registry resolves agent passports and session grants. The gateway
// only ever reads these records; ownership lives with the external passport
// registry (on-chain or hosted).
package registry

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for the queried address.
var ErrNotFound = errors.New("registry: not found")

// PassportPolicy is an agent's authorization policy. Caps are non-negative
// integers in atomic payment-asset units. Scopes and Services are closed
// sets: a required scope or service must be a member, or the call fails.
type PassportPolicy struct {
	AgentAddress    string    `json:"agentAddress"`
	ExpiresAt       time.Time `json:"expiresAt"`
	PerCallCap      int64     `json:"perCallCap"`
	DailyCap        int64     `json:"dailyCap"`
	RateLimitPerMin int       `json:"rateLimitPerMin"`
	Revoked         bool      `json:"revoked"`
	Scopes          []string  `json:"scopes"`
	Services        []string  `json:"services"`
}

// HasScope reports whether scope is a member of the passport's scope set.
func (p *PassportPolicy) HasScope(scope string) bool {
	return contains(p.Scopes, scope)
}

// HasService reports whether service is a member of the passport's service set.
func (p *PassportPolicy) HasService(service string) bool {
	return contains(p.Services, service)
}

// SessionGrant is a short-lived delegation from an agent to a session key.
// An empty Scopes set means "inherit full passport authority" (wildcard);
// a non-empty set is a subset filter on top of the passport's scopes.
type SessionGrant struct {
	AgentAddress   string    `json:"agentAddress"`
	SessionAddress string    `json:"sessionAddress"`
	ExpiresAt      time.Time `json:"expiresAt"`
	Revoked        bool      `json:"revoked"`
	Scopes         []string  `json:"scopes"`
}

// AllowsScope reports whether the grant permits scope. Empty set = wildcard.
func (g *SessionGrant) AllowsScope(scope string) bool {
	if len(g.Scopes) == 0 {
		return true
	}
	return contains(g.Scopes, scope)
}

// PassportClient resolves an agent's passport policy.
type PassportClient interface {
	Passport(ctx context.Context, agentAddress string) (*PassportPolicy, error)
}

// SessionClient resolves a session key's delegated grant.
type SessionClient interface {
	Session(ctx context.Context, sessionAddress string) (*SessionGrant, error)
}

func contains(set []string, member string) bool {
	for _, s := range set {
		if s == member {
			return true
		}
	}
	return false
}
