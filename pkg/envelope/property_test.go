// Property-based tests for envelope signature integrity.
package envelope_test

import (
	"testing"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/envelope"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestEnvelopeMutationInvalidates verifies the integrity property: appending
// any non-empty suffix to any signed field flips verification to failure.
// Property: Verify(sign(env), body) passes AND Verify(mutate(env), body) fails.
func TestEnvelopeMutationInvalidates(t *testing.T) {
	sessionKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	agentKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	agent := crypto.PubkeyToAddress(agentKey.PublicKey).Hex()
	session := crypto.PubkeyToAddress(sessionKey.PublicKey).Hex()
	verifier := envelope.NewSignatureVerifier()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("any field suffix mutation invalidates the envelope", prop.ForAll(
		func(timestamp, nonce, suffix string, field int) bool {
			if suffix == "" {
				return true // identity mutation, skip
			}
			body := []byte(`{"probe":true}`)
			env := &envelope.Envelope{
				AgentAddress:   agent,
				SessionAddress: session,
				Timestamp:      "t" + timestamp,
				Nonce:          "n" + nonce,
			}
			if err := env.Sign(body, sessionKey); err != nil {
				return false
			}
			if err := verifier.Verify(env, body); err != nil {
				return false // a freshly signed envelope must verify
			}

			switch field % 4 {
			case 0:
				env.AgentAddress += suffix
			case 1:
				env.Timestamp += suffix
			case 2:
				env.Nonce += suffix
			case 3:
				env.BodyHash += suffix
			}
			return verifier.Verify(env, body) != nil
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.IntRange(0, 3),
	))

	properties.TestingRun(t)
}
