package payment_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T, facilitatorURL string) *payment.Service {
	t.Helper()
	var fac payment.Facilitator
	if facilitatorURL != "" {
		fac = payment.NewFacilitatorClient(facilitatorURL, time.Second, nil)
	}
	return payment.NewService(payment.Config{
		PayTo:          "0x000000000000000000000000000000000000dEaD",
		Asset:          "0x0000000000000000000000000000000000000USD",
		FacilitatorURL: facilitatorURL,
		QuoteTTL:       120 * time.Second,
	}, fac, nil)
}

// TestBuildQuote_Shape verifies quote construction: price echoed as a
// decimal string, dual protocol mode, TTL-bounded expiry, fresh actionId
// when none is supplied.
func TestBuildQuote_Shape(t *testing.T) {
	s := testService(t, "https://facilitator.example")
	now := time.Date(2026, 2, 12, 10, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	ch := s.BuildQuote("", "api.enrich-wallet", 1000)
	assert.NotEmpty(t, ch.ActionID)
	assert.Equal(t, "api.enrich-wallet", ch.RouteID)
	assert.Equal(t, "1000", ch.AmountAtomic)
	assert.Equal(t, payment.ProtocolModeDual, ch.ProtocolMode)
	assert.Equal(t, now.Add(120*time.Second).Unix(), ch.ExpiresAt)
	assert.False(t, ch.Expired(now))
	assert.True(t, ch.Expired(now.Add(121*time.Second)))

	withID := s.BuildQuote("act-42", "api.enrich-wallet", 1000)
	assert.Equal(t, "act-42", withID.ActionID)
}

// TestChallenge_JSONRoundTrip verifies marshal/unmarshal reproduces an
// identical challenge, all fields included.
func TestChallenge_JSONRoundTrip(t *testing.T) {
	s := testService(t, "https://facilitator.example")
	original := s.BuildQuote("act-7", "api.enrich-wallet", 1000)

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded payment.Challenge
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, *original, decoded)
}

// TestProofFromHeaders_ShapePriority verifies the three proof shapes are
// recognized in fixed priority order and that X-Action-Id is mandatory.
func TestProofFromHeaders_ShapePriority(t *testing.T) {
	h := http.Header{}
	h.Set("X-Action-Id", "act-1")
	h.Set("X-Payment", "legacy-blob")
	h.Set("Payment-Signature", "0xsig")
	h.Set("X-Tx-Hash", "0xtx")

	proof, ok := payment.ProofFromHeaders(h)
	require.True(t, ok)
	assert.Equal(t, payment.ProtocolLegacyHeader, proof.Protocol)
	assert.Equal(t, "legacy-blob", proof.Signature)

	h.Del("X-Payment")
	proof, ok = payment.ProofFromHeaders(h)
	require.True(t, ok)
	assert.Equal(t, payment.ProtocolV2Header, proof.Protocol)
	assert.Equal(t, "0xsig", proof.Signature)
	assert.Equal(t, "0xtx", proof.TxHash)

	h.Del("Payment-Signature")
	proof, ok = payment.ProofFromHeaders(h)
	require.True(t, ok)
	assert.Equal(t, payment.ProtocolDirectTransfer, proof.Protocol)
	assert.Equal(t, "0xtx", proof.TxHash)

	// No actionId -> no proof, regardless of other headers.
	h.Del("X-Action-Id")
	_, ok = payment.ProofFromHeaders(h)
	assert.False(t, ok)
}

// TestWriteChallenge_Headers verifies the challenge JSON is mirrored on all
// three outbound header names.
func TestWriteChallenge_Headers(t *testing.T) {
	s := testService(t, "https://facilitator.example")
	ch := s.BuildQuote("act-9", "api.enrich-wallet", 1000)

	h := http.Header{}
	require.NoError(t, payment.WriteChallenge(h, ch))

	assert.Equal(t, "act-9", h.Get("X-ACTION-ID"))
	for _, name := range []string{"PAYMENT-REQUIRED", "X-PAYMENT-RESPONSE", "PAYMENT-RESPONSE"} {
		var decoded payment.Challenge
		require.NoError(t, json.Unmarshal([]byte(h.Get(name)), &decoded), name)
		assert.Equal(t, *ch, decoded, name)
	}
}

// TestVerifyPayment_DirectTransfer verifies the direct-transfer path is a
// presence-only check on the tx hash, with amount and payer echoed from the
// challenge context.
func TestVerifyPayment_DirectTransfer(t *testing.T) {
	s := testService(t, "")
	ch := s.BuildQuote("act-1", "api.enrich-wallet", 1000)
	ctx := context.Background()

	ver, err := s.VerifyPayment(ctx, &payment.Proof{
		ActionID: "act-1",
		TxHash:   "0xfeed",
		Protocol: payment.ProtocolDirectTransfer,
	}, ch, "0xAgent")
	require.NoError(t, err)
	assert.True(t, ver.Verified)
	assert.Equal(t, "tx:0xfeed", ver.SettlementRef)
	assert.Equal(t, int64(1000), ver.AmountAtomic)
	assert.Equal(t, "0xAgent", ver.Payer)

	ver, err = s.VerifyPayment(ctx, &payment.Proof{
		ActionID: "act-1",
		Protocol: payment.ProtocolDirectTransfer,
	}, ch, "0xAgent")
	require.NoError(t, err)
	assert.False(t, ver.Verified)
	assert.Equal(t, "missing tx hash", ver.Reason)
}

// TestVerifyPayment_HeaderProtocols verifies facilitator-mediated paths:
// missing signature fails locally, facilitator verdicts pass through, and
// transport failures degrade to an unverified result instead of an error.
func TestVerifyPayment_HeaderProtocols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			X402Version int `json:"x402Version"`
			Payload     struct {
				Signature string `json:"signature"`
			} `json:"payload"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		if req.Payload.Signature == "0xgood" {
			_, _ = w.Write([]byte(`{"valid":true,"settlementRef":"settle-1","txHash":"0xsettled"}`))
			return
		}
		_, _ = w.Write([]byte(`{"valid":false,"reason":"signature does not match authorization"}`))
	}))
	defer srv.Close()

	s := testService(t, srv.URL)
	ch := s.BuildQuote("act-1", "api.enrich-wallet", 1000)
	ctx := context.Background()

	// Missing signature fails before any network call.
	ver, err := s.VerifyPayment(ctx, &payment.Proof{ActionID: "act-1", Protocol: payment.ProtocolV2Header}, ch, "0xAgent")
	require.NoError(t, err)
	assert.False(t, ver.Verified)
	assert.Equal(t, "missing payment signature", ver.Reason)

	ver, err = s.VerifyPayment(ctx, &payment.Proof{ActionID: "act-1", Signature: "0xgood", Protocol: payment.ProtocolV2Header}, ch, "0xAgent")
	require.NoError(t, err)
	assert.True(t, ver.Verified)
	assert.Equal(t, "settle-1", ver.SettlementRef)
	assert.Equal(t, "0xsettled", ver.TxHash)

	ver, err = s.VerifyPayment(ctx, &payment.Proof{ActionID: "act-1", Signature: "0xbad", Protocol: payment.ProtocolLegacyHeader}, ch, "0xAgent")
	require.NoError(t, err)
	assert.False(t, ver.Verified)
	assert.Equal(t, "signature does not match authorization", ver.Reason)

	// Unreachable facilitator: unverified, not an error.
	down := testService(t, "http://127.0.0.1:1")
	ver, err = down.VerifyPayment(ctx, &payment.Proof{ActionID: "act-1", Signature: "0xgood", Protocol: payment.ProtocolV2Header}, ch, "0xAgent")
	require.NoError(t, err)
	assert.False(t, ver.Verified)
	assert.Equal(t, "facilitator confirmation failed", ver.Reason)
}
