package envelope

import (
	"fmt"
	"strings"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/canonicalize"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/ethsig"
)

// Verifier checks envelope authenticity against the raw request body.
type Verifier interface {
	Verify(env *Envelope, body []byte) error
}

// SignatureVerifier is the production Verifier: it recomputes the body hash
// and recovers the secp256k1 signer of the canonical message.
type SignatureVerifier struct{}

// NewSignatureVerifier returns the standard envelope verifier.
func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{}
}

// Verify returns nil only when the body hash matches the request body and
// the signature recovers to the envelope's session address.
func (v *SignatureVerifier) Verify(env *Envelope, body []byte) error {
	actual, err := canonicalize.BodyHash(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBodyHashMismatch, err)
	}
	if !strings.EqualFold(actual, strings.TrimPrefix(strings.ToLower(env.BodyHash), "0x")) {
		return ErrBodyHashMismatch
	}

	recovered, err := ethsig.RecoverAddress(env.CanonicalMessage(), env.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !ethsig.SameAddress(recovered, env.SessionAddress) {
		return ErrBadSignature
	}
	return nil
}
