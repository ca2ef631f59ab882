// Package envelope defines the signed request envelope every inbound call
// must carry, and the verifier that checks its authenticity.
//
// The envelope travels in six request headers. The session key signs the
// pipe-joined canonical message over all envelope fields, binding the agent,
// the session, a replay nonce, and the hash of the request body into one
// signature.
package envelope

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Envelope header names. Header lookup is case-insensitive per net/http.
const (
	HeaderAgentAddress   = "X-Agent-Address"
	HeaderSessionAddress = "X-Session-Address"
	HeaderTimestamp      = "X-Timestamp"
	HeaderNonce          = "X-Nonce"
	HeaderBodyHash       = "X-Body-Hash"
	HeaderSignature      = "X-Signature"
)

var (
	ErrMissingField     = errors.New("envelope: missing required header")
	ErrBodyHashMismatch = errors.New("envelope: body hash does not match request body")
	ErrBadSignature     = errors.New("envelope: signature does not recover to session address")
)

// Envelope is the per-request signed identity envelope. All fields are
// required; Timestamp and Nonce are opaque strings chosen by the caller.
type Envelope struct {
	AgentAddress   string `json:"agentAddress"`
	SessionAddress string `json:"sessionAddress"`
	Timestamp      string `json:"timestamp"`
	Nonce          string `json:"nonce"`
	BodyHash       string `json:"bodyHash"`
	Signature      string `json:"signature"`
}

// FromHeaders parses an envelope out of request headers. All six headers
// must be present and non-empty.
func FromHeaders(h http.Header) (*Envelope, error) {
	env := &Envelope{
		AgentAddress:   strings.TrimSpace(h.Get(HeaderAgentAddress)),
		SessionAddress: strings.TrimSpace(h.Get(HeaderSessionAddress)),
		Timestamp:      strings.TrimSpace(h.Get(HeaderTimestamp)),
		Nonce:          strings.TrimSpace(h.Get(HeaderNonce)),
		BodyHash:       strings.TrimSpace(h.Get(HeaderBodyHash)),
		Signature:      strings.TrimSpace(h.Get(HeaderSignature)),
	}
	for name, val := range map[string]string{
		HeaderAgentAddress:   env.AgentAddress,
		HeaderSessionAddress: env.SessionAddress,
		HeaderTimestamp:      env.Timestamp,
		HeaderNonce:          env.Nonce,
		HeaderBodyHash:       env.BodyHash,
		HeaderSignature:      env.Signature,
	} {
		if val == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}
	return env, nil
}

// CanonicalMessage returns the fixed-order pipe-joined signing message:
// agent|session|timestamp|nonce|bodyHash.
func (e *Envelope) CanonicalMessage() string {
	return strings.Join([]string{
		e.AgentAddress,
		e.SessionAddress,
		e.Timestamp,
		e.Nonce,
		e.BodyHash,
	}, "|")
}
