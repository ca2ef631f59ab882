package payment

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Outbound challenge headers. The full challenge JSON is mirrored on three
// header names because client SDK generations disagree on which one they
// read; X-ACTION-ID carries the actionId alone for cheap correlation.
const (
	HeaderPaymentRequired  = "PAYMENT-REQUIRED"
	HeaderXPaymentResponse = "X-PAYMENT-RESPONSE"
	HeaderPaymentResponse  = "PAYMENT-RESPONSE"
	HeaderActionID         = "X-ACTION-ID"
)

// Inbound proof headers.
const (
	HeaderXPayment         = "X-Payment"
	HeaderPaymentSignature = "Payment-Signature"
	HeaderTxHash           = "X-Tx-Hash"
)

// WriteChallenge attaches the serialized challenge to an outbound response.
func WriteChallenge(h http.Header, ch *Challenge) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	body := string(raw)
	h.Set(HeaderPaymentRequired, body)
	h.Set(HeaderXPaymentResponse, body)
	h.Set(HeaderPaymentResponse, body)
	h.Set(HeaderActionID, ch.ActionID)
	return nil
}

// ProofFromHeaders recognizes a payment proof in request headers. The three
// mutually exclusive shapes are tried in priority order:
//
//  1. X-Payment + X-Action-Id            -> legacy-header
//  2. Payment-Signature + X-Action-Id    -> v2-header (optional X-Tx-Hash)
//  3. X-Tx-Hash + X-Action-Id            -> direct-transfer
//
// Without X-Action-Id no proof is recognized regardless of other headers.
func ProofFromHeaders(h http.Header) (*Proof, bool) {
	actionID := strings.TrimSpace(h.Get(HeaderActionID))
	if actionID == "" {
		return nil, false
	}

	if legacy := strings.TrimSpace(h.Get(HeaderXPayment)); legacy != "" {
		return &Proof{
			ActionID:  actionID,
			Signature: legacy,
			Protocol:  ProtocolLegacyHeader,
		}, true
	}

	if sig := strings.TrimSpace(h.Get(HeaderPaymentSignature)); sig != "" {
		return &Proof{
			ActionID:  actionID,
			Signature: sig,
			TxHash:    strings.TrimSpace(h.Get(HeaderTxHash)),
			Protocol:  ProtocolV2Header,
		}, true
	}

	if tx := strings.TrimSpace(h.Get(HeaderTxHash)); tx != "" {
		return &Proof{
			ActionID: actionID,
			TxHash:   tx,
			Protocol: ProtocolDirectTransfer,
		}, true
	}

	return nil, false
}
