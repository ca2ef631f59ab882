package envelope

import (
	"crypto/ecdsa"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/canonicalize"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/ethsig"
)

// Sign fills BodyHash and Signature for the given request body using the
// session private key. The client-side counterpart of Verifier; also used
// by tests to build valid envelopes.
func (e *Envelope) Sign(body []byte, sessionKey *ecdsa.PrivateKey) error {
	hash, err := canonicalize.BodyHash(body)
	if err != nil {
		return err
	}
	e.BodyHash = hash

	sig, err := ethsig.SignMessage(e.CanonicalMessage(), sessionKey)
	if err != nil {
		return err
	}
	e.Signature = sig
	return nil
}

// Apply writes the envelope into an http.Header, the inverse of FromHeaders.
func (e *Envelope) Apply(h interface{ Set(key, value string) }) {
	h.Set(HeaderAgentAddress, e.AgentAddress)
	h.Set(HeaderSessionAddress, e.SessionAddress)
	h.Set(HeaderTimestamp, e.Timestamp)
	h.Set(HeaderNonce, e.Nonce)
	h.Set(HeaderBodyHash, e.BodyHash)
	h.Set(HeaderSignature, e.Signature)
}
