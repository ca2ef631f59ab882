package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/util/resiliency"
)

// FacilitatorClient confirms header-protocol payments with the external
// x402 facilitator. Calls are bounded by the client timeout; the enforcer
// maps any failure here to a payment verification failure, never to a raw
// transport error.
type FacilitatorClient struct {
	baseURL string
	client  *resiliency.Client
	logger  *slog.Logger
}

// facilitatorVerifyRequest is the facilitator /verify wire format.
type facilitatorVerifyRequest struct {
	X402Version int                `json:"x402Version"`
	Scheme      string             `json:"scheme"`
	ActionID    string             `json:"actionId"`
	Payload     facilitatorPayload `json:"payload"`
}

type facilitatorPayload struct {
	Signature    string `json:"signature"`
	Asset        string `json:"asset"`
	PayTo        string `json:"payTo"`
	AmountAtomic string `json:"amountAtomic"`
	Payer        string `json:"payer"`
}

// FacilitatorResult is the facilitator's answer to a verify call.
type FacilitatorResult struct {
	Valid         bool   `json:"valid"`
	Reason        string `json:"reason,omitempty"`
	SettlementRef string `json:"settlementRef,omitempty"`
	TxHash        string `json:"txHash,omitempty"`
}

func NewFacilitatorClient(baseURL string, timeout time.Duration, logger *slog.Logger) *FacilitatorClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FacilitatorClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  resiliency.New("facilitator", timeout),
		logger:  logger,
	}
}

// Confirm asks the facilitator to verify a header-protocol payment for the
// given challenge.
func (c *FacilitatorClient) Confirm(ctx context.Context, ch *Challenge, proof *Proof, payer string) (*FacilitatorResult, error) {
	version := 1
	if proof.Protocol == ProtocolV2Header {
		version = 2
	}
	reqBody := facilitatorVerifyRequest{
		X402Version: version,
		Scheme:      "exact",
		ActionID:    proof.ActionID,
		Payload: facilitatorPayload{
			Signature:    proof.Signature,
			Asset:        ch.Asset,
			PayTo:        ch.PayTo,
			AmountAtomic: ch.AmountAtomic,
			Payer:        payer,
		},
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("payment: marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("payment: build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payment: facilitator unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("facilitator verify returned non-200",
			"status", resp.StatusCode, "action_id", proof.ActionID)
		return nil, fmt.Errorf("payment: facilitator status %d", resp.StatusCode)
	}

	var out FacilitatorResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("payment: decode facilitator response: %w", err)
	}
	return &out, nil
}
