package payment

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// DefaultQuoteTTL bounds how long a challenge stays payable.
const DefaultQuoteTTL = 120 * time.Second

// Facilitator is the confirmation capability for header-protocol payments.
type Facilitator interface {
	Confirm(ctx context.Context, ch *Challenge, proof *Proof, payer string) (*FacilitatorResult, error)
}

// Config fixes the settlement parameters advertised on every quote.
type Config struct {
	PayTo          string
	Asset          string
	FacilitatorURL string
	QuoteTTL       time.Duration
}

// Service builds quotes and verifies payment proofs under both protocols.
type Service struct {
	cfg         Config
	facilitator Facilitator
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(cfg Config, facilitator Facilitator, logger *slog.Logger) *Service {
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = DefaultQuoteTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, facilitator: facilitator, logger: logger, now: time.Now}
}

// SetClock overrides the wall clock. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// BuildQuote produces a challenge for one action. Deterministic except for
// the expiry stamp and a freshly generated actionId when none is supplied.
func (s *Service) BuildQuote(actionID, routeID string, amountAtomic int64) *Challenge {
	if actionID == "" {
		actionID = uuid.NewString()
	}
	return &Challenge{
		ActionID:       actionID,
		RouteID:        routeID,
		Asset:          s.cfg.Asset,
		AmountAtomic:   strconv.FormatInt(amountAtomic, 10),
		PayTo:          s.cfg.PayTo,
		ExpiresAt:      s.now().Add(s.cfg.QuoteTTL).Unix(),
		FacilitatorURL: s.cfg.FacilitatorURL,
		ProtocolMode:   ProtocolModeDual,
	}
}

// VerifyPayment checks a proof against its challenge. The returned
// Verification echoes amount and payer from the challenge and envelope
// context. A facilitator transport failure yields Verified=false with a
// reason, not an error: payment confirmation problems are policy outcomes,
// never raw transport errors.
func (s *Service) VerifyPayment(ctx context.Context, proof *Proof, ch *Challenge, agentAddress string) (*Verification, error) {
	amount, err := ch.Amount()
	if err != nil {
		return nil, err
	}
	base := &Verification{
		Payer:        agentAddress,
		AmountAtomic: amount,
		Mode:         proof.Protocol,
	}

	switch proof.Protocol {
	case ProtocolDirectTransfer:
		// Presence-only check. The tx hash is an unconfirmed claim; on-chain
		// receipt confirmation is the payment-execution collaborator's job.
		if proof.TxHash == "" {
			base.Reason = "missing tx hash"
			return base, nil
		}
		base.Verified = true
		base.TxHash = proof.TxHash
		base.SettlementRef = "tx:" + proof.TxHash
		return base, nil

	case ProtocolLegacyHeader, ProtocolV2Header:
		if proof.Signature == "" {
			base.Reason = "missing payment signature"
			return base, nil
		}
		result, err := s.facilitator.Confirm(ctx, ch, proof, agentAddress)
		if err != nil {
			s.logger.Warn("facilitator confirmation failed",
				"action_id", proof.ActionID, "protocol", proof.Protocol, "error", err)
			base.Reason = "facilitator confirmation failed"
			return base, nil
		}
		if !result.Valid {
			base.Reason = result.Reason
			if base.Reason == "" {
				base.Reason = "facilitator rejected payment"
			}
			return base, nil
		}
		base.Verified = true
		base.TxHash = result.TxHash
		base.SettlementRef = result.SettlementRef
		if base.SettlementRef == "" {
			base.SettlementRef = "facilitator:" + proof.ActionID
		}
		return base, nil

	default:
		base.Reason = "unknown payment protocol"
		return base, nil
	}
}
