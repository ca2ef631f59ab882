// Package payment builds price quotes for paid routes and verifies payment
// proofs under the x402-style dual protocol: facilitator-mediated header
// payments (legacy and v2 shapes) and caller-executed direct transfers.
package payment

import (
	"fmt"
	"strconv"
	"time"
)

// Protocol identifies how a payment proof was produced.
type Protocol string

const (
	ProtocolLegacyHeader   Protocol = "legacy-header"
	ProtocolV2Header       Protocol = "v2-header"
	ProtocolDirectTransfer Protocol = "direct-transfer"
)

// ProtocolModeDual is the fixed protocolMode literal advertised on every
// challenge: the payer may settle under either header protocol or by direct
// transfer.
const ProtocolModeDual = "dual"

// Challenge is a priced, time-boxed invitation to pay for one action.
// Amounts travel as decimal strings of atomic units; ExpiresAt is a unix
// timestamp in seconds so the JSON form round-trips exactly.
type Challenge struct {
	ActionID       string `json:"actionId"`
	RouteID        string `json:"routeId"`
	Asset          string `json:"asset"`
	AmountAtomic   string `json:"amountAtomic"`
	PayTo          string `json:"payTo"`
	ExpiresAt      int64  `json:"expiresAt"`
	FacilitatorURL string `json:"facilitatorUrl"`
	ProtocolMode   string `json:"protocolMode"`
}

// Amount parses the challenge price into atomic units.
func (c *Challenge) Amount() (int64, error) {
	n, err := strconv.ParseInt(c.AmountAtomic, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("payment: bad amountAtomic %q: %w", c.AmountAtomic, err)
	}
	return n, nil
}

// Expired reports whether the challenge's settlement window has closed.
func (c *Challenge) Expired(now time.Time) bool {
	return now.Unix() > c.ExpiresAt
}

// Proof is caller-supplied evidence that payment for an action was made.
// Exactly one of Signature and TxHash is authoritative, depending on the
// protocol.
type Proof struct {
	ActionID  string   `json:"actionId"`
	Signature string   `json:"signature,omitempty"`
	TxHash    string   `json:"txHash,omitempty"`
	Protocol  Protocol `json:"protocol"`
}

// Verification is the outcome of verifying a proof against its challenge.
// Amount and payer are echoed from the challenge and envelope context for
// audit, never recomputed from the proof: the proof attests that payment
// occurred, the quote is authoritative on price.
type Verification struct {
	Verified      bool     `json:"verified"`
	SettlementRef string   `json:"settlementRef,omitempty"`
	TxHash        string   `json:"txHash,omitempty"`
	Payer         string   `json:"payer"`
	AmountAtomic  int64    `json:"amountAtomic"`
	Mode          Protocol `json:"mode"`
	Reason        string   `json:"reason,omitempty"`
}
