package canonicalize_test

import (
	"testing"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/canonicalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestJCS_KeyOrdering verifies that map key insertion order does not affect
// the canonical output.
// Invariant: a body hash must be identical regardless of how the caller's
// JSON serializer ordered the keys.
func TestJCS_KeyOrdering(t *testing.T) {
	a, err := canonicalize.JCS(map[string]any{"b": 2, "a": 1, "c": 3})
	require.NoError(t, err)
	b, err := canonicalize.JCS(map[string]any{"c": 3, "a": 1, "b": 2})
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
	assert.Equal(t, `{"a":1,"b":2,"c":3}`, string(a))
}

// TestBodyHash_EmptyBody verifies that an absent body hashes as the empty
// object, matching callers that sign requests without a payload.
func TestBodyHash_EmptyBody(t *testing.T) {
	empty, err := canonicalize.BodyHash(nil)
	require.NoError(t, err)

	explicit, err := canonicalize.BodyHash([]byte("{}"))
	require.NoError(t, err)

	whitespace, err := canonicalize.BodyHash([]byte("  \n\t"))
	require.NoError(t, err)

	assert.Equal(t, explicit, empty)
	assert.Equal(t, explicit, whitespace)
	assert.Len(t, empty, 64)
}

// TestBodyHash_EquivalentBodies verifies whitespace and key order do not
// change the hash, while value changes do.
func TestBodyHash_EquivalentBodies(t *testing.T) {
	h1, err := canonicalize.BodyHash([]byte(`{"wallet":"0xabc","chain":"base"}`))
	require.NoError(t, err)

	h2, err := canonicalize.BodyHash([]byte(` { "chain" : "base", "wallet" : "0xabc" } `))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := canonicalize.BodyHash([]byte(`{"wallet":"0xabd","chain":"base"}`))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

// TestBodyHash_InvalidJSON verifies malformed bodies are rejected rather
// than hashed as opaque bytes.
func TestBodyHash_InvalidJSON(t *testing.T) {
	_, err := canonicalize.BodyHash([]byte(`{"unclosed":`))
	assert.Error(t, err)
}

// TestCanonicalHash_Deterministic verifies struct hashing is stable.
func TestCanonicalHash_Deterministic(t *testing.T) {
	type payload struct {
		Action string `json:"action"`
		Amount int64  `json:"amount"`
	}
	h1, err := canonicalize.CanonicalHash(payload{Action: "enrich", Amount: 1000})
	require.NoError(t, err)
	h2, err := canonicalize.CanonicalHash(payload{Action: "enrich", Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
