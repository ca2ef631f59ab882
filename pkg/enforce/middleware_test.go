package enforce_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/audit"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/budget"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/enforce"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/envelope"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/payment"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/ratelimit"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, h http.Handler, hdr http.Header, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/enrich/wallet", bytes.NewReader(body))
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// TestMiddleware_AdmitsAndAttachesResult verifies an admitted request
// reaches the handler with the enforcement result on its context and that
// the terminal served event follows the dispatch.
func TestMiddleware_AdmitsAndAttachesResult(t *testing.T) {
	f := newFixture(t, nil)
	body := []byte(`{"wallet":"0xabc"}`)

	var seen *enforce.Result
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := enforce.FromContext(r.Context())
		require.True(t, ok)
		seen = res
		w.WriteHeader(http.StatusOK)
	})

	rec := doRequest(t, f.enforcer.Middleware(freeRoute, next), f.signedHeaders(t, body), body)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, enforce.OutcomeAllowed, seen.Outcome)
	assert.Equal(t, audit.EventResponseServed, f.events.last().Type)
}

// TestMiddleware_ChallengeIs402WithHeadersAndBody verifies a proofless
// request on a paid route gets 402 carrying both challenge headers and the
// JSON challenge body, and the handler never runs.
func TestMiddleware_ChallengeIs402WithHeadersAndBody(t *testing.T) {
	f := newFixture(t, nil)
	body := []byte(`{"wallet":"0xabc"}`)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on a challenge outcome")
	})

	rec := doRequest(t, f.enforcer.Middleware(paidRoute, next), f.signedHeaders(t, body), body)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(payment.HeaderPaymentRequired))
	assert.NotEmpty(t, rec.Header().Get(payment.HeaderActionID))

	var ch payment.Challenge
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ch))
	assert.Equal(t, "1000", ch.AmountAtomic)
	assert.Equal(t, rec.Header().Get(payment.HeaderActionID), ch.ActionID)
}

// TestMiddleware_PolicyFailureBody verifies the failure body shape and
// status mapping for a blocked request.
func TestMiddleware_PolicyFailureBody(t *testing.T) {
	f := newFixture(t, func(p *registry.PassportPolicy, g *registry.SessionGrant) {
		p.Scopes = []string{"quote.price"}
	})
	body := []byte(`{}`)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on a blocked request")
	})

	rec := doRequest(t, f.enforcer.Middleware(freeRoute, next), f.signedHeaders(t, body), body)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var problem struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		RouteID string `json:"routeId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "SCOPE_FORBIDDEN", problem.Code)
	assert.Equal(t, freeRoute.RouteID, problem.RouteID)
	assert.NotEmpty(t, problem.Message)
}

// TestMiddleware_ReplayIsConflict verifies the replay status mapping.
func TestMiddleware_ReplayIsConflict(t *testing.T) {
	f := newFixture(t, nil)
	body := []byte(`{}`)
	h := f.signedHeaders(t, body)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	mw := f.enforcer.Middleware(freeRoute, next)

	assert.Equal(t, http.StatusOK, doRequest(t, mw, h, body).Code)
	assert.Equal(t, http.StatusConflict, doRequest(t, mw, h, body).Code)
}

// TestMiddleware_InfraFailureIs503 verifies infrastructure faults answer
// 503 with a non-policy code.
func TestMiddleware_InfraFailureIs503(t *testing.T) {
	f := newFixture(t, nil)
	enforcer, err := enforce.NewEnforcer(enforce.Deps{
		Verifier:  envelope.NewSignatureVerifier(),
		Passports: f.reg,
		Sessions:  failingSessions{},
		Nonces:    f.nonces,
		Limiter:   ratelimit.NewMemoryLimiter(),
		Budget:    budget.NewMemoryService(),
		Payments:  f.payments,
		Quotes:    f.quotes,
		Receipts:  f.receipts,
		Events:    f.events,
	})
	require.NoError(t, err)

	body := []byte(`{}`)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	rec := doRequest(t, enforcer.Middleware(freeRoute, next), f.signedHeaders(t, body), body)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var problem struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "UPSTREAM_UNAVAILABLE", problem.Code)
}

// TestMiddleware_BodyReachesHandlerIntact verifies the pipeline's body
// read does not consume the stream seen by the handler.
func TestMiddleware_BodyReachesHandlerIntact(t *testing.T) {
	f := newFixture(t, nil)
	body := []byte(`{"wallet":"0xabc","chain":"base"}`)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, body, got)
	})

	rec := doRequest(t, f.enforcer.Middleware(freeRoute, next), f.signedHeaders(t, body), body)
	assert.Equal(t, http.StatusOK, rec.Code)
}
