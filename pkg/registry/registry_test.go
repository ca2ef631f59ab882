package registry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSessionGrant_EmptyScopesIsWildcard verifies the delegation semantics:
// an empty session scope set inherits full passport authority, a non-empty
// set is a subset filter.
func TestSessionGrant_EmptyScopesIsWildcard(t *testing.T) {
	wildcard := &registry.SessionGrant{Scopes: nil}
	assert.True(t, wildcard.AllowsScope("enrich.wallet"))
	assert.True(t, wildcard.AllowsScope("anything.at.all"))

	filtered := &registry.SessionGrant{Scopes: []string{"enrich.wallet"}}
	assert.True(t, filtered.AllowsScope("enrich.wallet"))
	assert.False(t, filtered.AllowsScope("transfer.funds"))
}

// TestPassportPolicy_ClosedSets verifies scopes and services are closed
// sets: non-members fail.
func TestPassportPolicy_ClosedSets(t *testing.T) {
	p := &registry.PassportPolicy{
		Scopes:   []string{"enrich.wallet", "quote.price"},
		Services: []string{"enrich"},
	}
	assert.True(t, p.HasScope("enrich.wallet"))
	assert.False(t, p.HasScope("enrich"))
	assert.True(t, p.HasService("enrich"))
	assert.False(t, p.HasService("payments"))
}

// TestMemoryRegistry_CaseInsensitiveLookup verifies address keying ignores
// EIP-55 casing and that lookups return defensive copies.
func TestMemoryRegistry_CaseInsensitiveLookup(t *testing.T) {
	reg := registry.NewMemoryRegistry()
	reg.PutPassport(&registry.PassportPolicy{
		AgentAddress: "0xAbCd000000000000000000000000000000000001",
		DailyCap:     20000,
	})

	got, err := reg.Passport(context.Background(), "0xABCD000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), got.DailyCap)

	got.DailyCap = 0 // mutating the copy must not affect the registry
	again, err := reg.Passport(context.Background(), "0xabcd000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), again.DailyCap)

	_, err = reg.Session(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

// TestHTTPClient_StatusMapping verifies 404 maps to ErrNotFound while other
// failures surface as transport errors, preserving the "unauthorized" vs
// "registry down" distinction.
func TestHTTPClient_StatusMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/passports/0xknown":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"agentAddress":"0xknown","dailyCap":500,"scopes":["enrich.wallet"]}`))
		case "/v1/passports/0xmissing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := registry.NewHTTPClient(srv.URL, time.Second, nil)

	p, err := c.Passport(context.Background(), "0xKNOWN")
	require.NoError(t, err)
	assert.Equal(t, int64(500), p.DailyCap)
	assert.True(t, p.HasScope("enrich.wallet"))

	_, err = c.Passport(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	_, err = c.Passport(context.Background(), "0xbroken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, registry.ErrNotFound)
}
