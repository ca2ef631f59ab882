package enforce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anishnarang9/ETHDenver26-sub001/pkg/audit"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/budget"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/envelope"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/nonce"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/observability"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/payment"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/quote"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/ratelimit"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/receipts"
	"github.com/anishnarang9/ETHDenver26-sub001/pkg/registry"
	"github.com/google/uuid"
)

// PaymentService is the quote/verify capability the payment stages consume.
type PaymentService interface {
	BuildQuote(actionID, routeID string, amountAtomic int64) *payment.Challenge
	VerifyPayment(ctx context.Context, proof *payment.Proof, ch *payment.Challenge, agentAddress string) (*payment.Verification, error)
}

// Deps are the leaf collaborators the pipeline orchestrates. All are
// required except Metrics and Logger.
type Deps struct {
	Verifier  envelope.Verifier
	Passports registry.PassportClient
	Sessions  registry.SessionClient
	Nonces    nonce.Store
	Limiter   ratelimit.Limiter
	Budget    budget.Service
	Payments  PaymentService
	Quotes    quote.Store
	Receipts  receipts.Writer
	Events    audit.Sink
	Metrics   *observability.Provider
	Logger    *slog.Logger
}

// Enforcer runs the ordered enforcement pipeline for one inbound call
// against one route policy. It owns no long-lived state; everything lives
// in the injected stores.
type Enforcer struct {
	deps Deps
	now  func() time.Time
}

func NewEnforcer(deps Deps) (*Enforcer, error) {
	switch {
	case deps.Verifier == nil:
		return nil, errors.New("enforce: Verifier is required")
	case deps.Passports == nil:
		return nil, errors.New("enforce: Passports client is required")
	case deps.Sessions == nil:
		return nil, errors.New("enforce: Sessions client is required")
	case deps.Nonces == nil:
		return nil, errors.New("enforce: Nonces store is required")
	case deps.Limiter == nil:
		return nil, errors.New("enforce: Limiter is required")
	case deps.Budget == nil:
		return nil, errors.New("enforce: Budget service is required")
	case deps.Payments == nil:
		return nil, errors.New("enforce: Payments service is required")
	case deps.Quotes == nil:
		return nil, errors.New("enforce: Quotes store is required")
	case deps.Receipts == nil:
		return nil, errors.New("enforce: Receipts writer is required")
	case deps.Events == nil:
		return nil, errors.New("enforce: Events sink is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Enforcer{deps: deps, now: time.Now}, nil
}

// SetClock overrides the wall clock. Test hook.
func (e *Enforcer) SetClock(now func() time.Time) { e.now = now }

// Outcome classifies a pipeline run that did not error.
type Outcome int

const (
	// OutcomeAllowed means all stages passed; the handler may run.
	OutcomeAllowed Outcome = iota
	// OutcomeChallenge means payment is required and a fresh quote was
	// issued. Not a failure; the caller retries with a proof.
	OutcomeChallenge
)

// Result carries the verified context attached to an admitted request.
type Result struct {
	Outcome      Outcome
	ActionID     string
	Envelope     *envelope.Envelope
	Challenge    *payment.Challenge    // set when Outcome is OutcomeChallenge
	Verification *payment.Verification // set when a payment was verified
	Receipt      *receipts.Receipt     // set when a receipt was written
}

// Authorize runs stages 1-11 for one inbound call. On policy failure it
// returns a *PolicyError; infrastructure faults return *InfraError. A
// consumed nonce or committed debit is never rolled back by a later
// failure.
func (e *Enforcer) Authorize(ctx context.Context, route *RoutePolicy, hdr http.Header, body []byte) (*Result, error) {
	// A proof's actionId threads the retry to its quote; otherwise the
	// attempt gets a fresh identity for audit and quoting. Free routes
	// consult no proof, so their audit ids stay server-generated even when
	// a caller sends payment headers.
	var proof *payment.Proof
	var hasProof bool
	if route.RequirePayment {
		proof, hasProof = payment.ProofFromHeaders(hdr)
	}
	actionID := uuid.NewString()
	if hasProof {
		actionID = proof.ActionID
	}

	res, err := e.run(ctx, route, hdr, body, actionID, proof, hasProof)
	if err != nil {
		var perr *PolicyError
		if errors.As(err, &perr) {
			agent := ""
			if res != nil && res.Envelope != nil {
				agent = res.Envelope.AgentAddress
			}
			e.emit(actionID, agent, route.RouteID, audit.EventRequestBlocked, map[string]string{
				"code":   string(perr.Code),
				"reason": perr.Message,
			})
			e.deps.Metrics.RecordOutcome(ctx, route.RouteID, "blocked")
			e.deps.Metrics.RecordBlocked(ctx, route.RouteID, string(perr.Code))
		} else {
			e.deps.Metrics.RecordOutcome(ctx, route.RouteID, "error")
		}
		return res, err
	}

	switch res.Outcome {
	case OutcomeChallenge:
		e.deps.Metrics.RecordOutcome(ctx, route.RouteID, "challenge")
	default:
		e.deps.Metrics.RecordOutcome(ctx, route.RouteID, "allowed")
	}
	return res, nil
}

func (e *Enforcer) run(ctx context.Context, route *RoutePolicy, hdr http.Header, body []byte, actionID string, proof *payment.Proof, hasProof bool) (*Result, error) {
	res := &Result{Outcome: OutcomeAllowed, ActionID: actionID}

	// Stage 1: Identity.
	stageStart := e.now()
	env, err := envelope.FromHeaders(hdr)
	if err != nil {
		return res, policyErr(CodeInvalidSignature, actionID, route.RouteID, "%v", err)
	}
	res.Envelope = env
	if err := e.deps.Verifier.Verify(env, body); err != nil {
		return res, policyErr(CodeInvalidSignature, actionID, route.RouteID, "%v", err)
	}
	e.emit(actionID, env.AgentAddress, route.RouteID, audit.EventSignatureVerified, nil)
	e.stage(ctx, "identity", stageStart)

	// Stage 2: Nonce. Consumption is unconditional and non-reversible: its
	// only job is to block byte-identical replay, not to gate business
	// outcome, and it must not depend on registry availability.
	stageStart = e.now()
	inserted, err := e.deps.Nonces.InsertIfAbsent(ctx, env.SessionAddress, env.Nonce)
	if err != nil {
		return res, &InfraError{Op: "nonce insert", Err: err}
	}
	if !inserted {
		return res, policyErr(CodeReplayNonce, actionID, route.RouteID, "nonce %q already consumed for session", env.Nonce)
	}
	e.emit(actionID, env.AgentAddress, route.RouteID, audit.EventNonceVerified, nil)
	e.stage(ctx, "nonce", stageStart)

	// Stage 3: Session grant.
	stageStart = e.now()
	grant, err := e.deps.Sessions.Session(ctx, env.SessionAddress)
	if errors.Is(err, registry.ErrNotFound) {
		return res, policyErr(CodeSessionRevoked, actionID, route.RouteID, "no grant for session %s", env.SessionAddress)
	}
	if err != nil {
		return res, &InfraError{Op: "session lookup", Err: err}
	}
	if grant.Revoked {
		return res, policyErr(CodeSessionRevoked, actionID, route.RouteID, "session grant revoked")
	}
	if e.now().After(grant.ExpiresAt) {
		return res, policyErr(CodeSessionExpired, actionID, route.RouteID, "session grant expired at %s", grant.ExpiresAt.Format(time.RFC3339))
	}
	if !sameAddress(grant.AgentAddress, env.AgentAddress) {
		return res, policyErr(CodeSessionRevoked, actionID, route.RouteID, "session not delegated by claimed agent")
	}
	e.emit(actionID, env.AgentAddress, route.RouteID, audit.EventSessionVerified, nil)
	e.stage(ctx, "session", stageStart)

	// Stage 4: Passport.
	stageStart = e.now()
	passport, err := e.deps.Passports.Passport(ctx, env.AgentAddress)
	if errors.Is(err, registry.ErrNotFound) {
		return res, policyErr(CodePassportRevoked, actionID, route.RouteID, "no passport for agent %s", env.AgentAddress)
	}
	if err != nil {
		return res, &InfraError{Op: "passport lookup", Err: err}
	}
	if passport.Revoked {
		return res, policyErr(CodePassportRevoked, actionID, route.RouteID, "passport revoked")
	}
	if e.now().After(passport.ExpiresAt) {
		return res, policyErr(CodePassportExpired, actionID, route.RouteID, "passport expired at %s", passport.ExpiresAt.Format(time.RFC3339))
	}
	e.emit(actionID, env.AgentAddress, route.RouteID, audit.EventPassportVerified, nil)
	e.stage(ctx, "passport", stageStart)

	// Stage 5: Scope. The passport set must contain the route scope and
	// the session grant must pass it through (empty grant set = wildcard).
	if !passport.HasScope(route.Scope) || !grant.AllowsScope(route.Scope) {
		return res, policyErr(CodeScopeForbidden, actionID, route.RouteID, "scope %q not authorized", route.Scope)
	}
	e.emit(actionID, env.AgentAddress, route.RouteID, audit.EventScopeVerified, map[string]string{"scope": route.Scope})

	// Stage 6: Service.
	if !passport.HasService(route.Service) {
		return res, policyErr(CodeServiceForbidden, actionID, route.RouteID, "service %q not authorized", route.Service)
	}
	e.emit(actionID, env.AgentAddress, route.RouteID, audit.EventServiceVerified, map[string]string{"service": route.Service})

	// Stage 7: Rate limit, fixed per-minute window.
	stageStart = e.now()
	if limit := effectiveRateLimit(passport.RateLimitPerMin, route.RateLimitPerMin); limit > 0 {
		count, err := e.deps.Limiter.Increment(ctx, env.AgentAddress, route.RouteID, e.now())
		if err != nil {
			return res, &InfraError{Op: "rate limit increment", Err: err}
		}
		if count > int64(limit) {
			return res, policyErr(CodeRateLimited, actionID, route.RouteID, "limit of %d calls per minute exceeded", limit)
		}
	}
	e.emit(actionID, env.AgentAddress, route.RouteID, audit.EventRateLimitVerified, nil)
	e.stage(ctx, "ratelimit", stageStart)

	// Stage 8: Budget. The per-call cap is checked locally; the daily cap
	// check-and-debit is one atomic store operation.
	stageStart = e.now()
	if route.PriceAtomic > passport.PerCallCap {
		return res, policyErr(CodePerCallBudgetExceeded, actionID, route.RouteID,
			"route price %d exceeds per-call cap %d", route.PriceAtomic, passport.PerCallCap)
	}
	if route.PriceAtomic > 0 {
		ok, err := e.deps.Budget.TryDebit(ctx, env.AgentAddress, route.PriceAtomic, passport.DailyCap)
		if err != nil {
			return res, &InfraError{Op: "budget debit", Err: err}
		}
		if !ok {
			return res, policyErr(CodeDailyBudgetExceeded, actionID, route.RouteID,
				"debit of %d would exceed daily cap %d", route.PriceAtomic, passport.DailyCap)
		}
	}
	e.emit(actionID, env.AgentAddress, route.RouteID, audit.EventBudgetVerified, map[string]string{
		"amount_atomic": fmt.Sprintf("%d", route.PriceAtomic),
	})
	e.stage(ctx, "budget", stageStart)

	if !route.RequirePayment {
		return res, nil
	}

	// Stage 9: Quote. No proof on a paid route is not a failure: issue a
	// time-boxed challenge and stop before the handler.
	if !hasProof {
		stageStart = e.now()
		ch := e.deps.Payments.BuildQuote(actionID, route.RouteID, route.PriceAtomic)
		if err := e.deps.Quotes.Put(ctx, ch); err != nil {
			return res, &InfraError{Op: "quote store", Err: err}
		}
		e.emit(actionID, env.AgentAddress, route.RouteID, audit.EventPaymentChallengeIssued, map[string]string{
			"amount_atomic": ch.AmountAtomic,
			"expires_at":    fmt.Sprintf("%d", ch.ExpiresAt),
		})
		e.stage(ctx, "quote", stageStart)
		res.Outcome = OutcomeChallenge
		res.Challenge = ch
		return res, nil
	}

	// Stage 10: Payment. Take claims the quote atomically, so of N
	// concurrent requests sharing this actionId exactly one proceeds to
	// verification; the payment never settles twice. The claim is restored
	// when verification fails, keeping the quote payable.
	stageStart = e.now()
	ch, err := e.deps.Quotes.Take(ctx, proof.ActionID)
	switch {
	case errors.Is(err, quote.ErrExpired):
		return res, policyErr(CodePaymentExpired, actionID, route.RouteID, "quote for action %s expired", proof.ActionID)
	case errors.Is(err, quote.ErrNotFound):
		return res, policyErr(CodePaymentRequired, actionID, route.RouteID, "no outstanding quote for action %s", proof.ActionID)
	case err != nil:
		return res, &InfraError{Op: "quote claim", Err: err}
	}

	// The quote binds one action on one route; a quote bought on a cheaper
	// route must not admit a request here.
	if ch.RouteID != route.RouteID {
		e.restoreQuote(ctx, ch)
		return res, policyErr(CodePaymentRequired, actionID, route.RouteID,
			"quote for action %s was issued for route %s", proof.ActionID, ch.RouteID)
	}

	verification, err := e.deps.Payments.VerifyPayment(ctx, proof, ch, env.AgentAddress)
	if err != nil {
		e.restoreQuote(ctx, ch)
		return res, policyErr(CodePaymentInvalid, actionID, route.RouteID, "payment verification failed: %v", err)
	}
	if !verification.Verified {
		e.restoreQuote(ctx, ch)
		return res, policyErr(CodePaymentInvalid, actionID, route.RouteID, "payment not verified: %s", verification.Reason)
	}
	res.Verification = verification
	e.emit(actionID, env.AgentAddress, route.RouteID, audit.EventPaymentVerified, map[string]string{
		"mode":           string(verification.Mode),
		"settlement_ref": verification.SettlementRef,
	})
	e.stage(ctx, "payment", stageStart)

	// Stage 11: Receipt. The payment is already verified, so a write
	// failure is logged rather than blocking the dispatch.
	stageStart = e.now()
	receipt := receipts.New(actionID, route.RouteID, verification.Payer, verification.AmountAtomic,
		ch.Asset, verification.SettlementRef, verification.TxHash, e.now())
	if err := e.deps.Receipts.Write(ctx, receipt); err != nil {
		e.deps.Logger.Error("receipt write failed", "action_id", actionID, "error", err)
	} else {
		res.Receipt = receipt
		e.emit(actionID, env.AgentAddress, route.RouteID, audit.EventReceiptWritten, map[string]string{
			"receipt_id": receipt.ReceiptID,
		})
	}
	e.stage(ctx, "receipt", stageStart)

	return res, nil
}

// restoreQuote returns a claimed quote to the store after verification did
// not complete, so the caller can retry payment for it.
func (e *Enforcer) restoreQuote(ctx context.Context, ch *payment.Challenge) {
	if err := e.deps.Quotes.Put(ctx, ch); err != nil {
		e.deps.Logger.Warn("quote restore failed", "action_id", ch.ActionID, "error", err)
	}
}

// ServeEvent emits the terminal RESPONSE_SERVED event after the downstream
// handler completes.
func (e *Enforcer) ServeEvent(res *Result, routeID string) {
	agent := ""
	if res.Envelope != nil {
		agent = res.Envelope.AgentAddress
	}
	e.emit(res.ActionID, agent, routeID, audit.EventResponseServed, nil)
}

func (e *Enforcer) emit(actionID, agent, routeID string, typ audit.EventType, details map[string]string) {
	e.deps.Events.Record(audit.NewEvent(actionID, agent, routeID, typ, details))
}

func (e *Enforcer) stage(ctx context.Context, name string, start time.Time) {
	e.deps.Metrics.RecordStage(ctx, name, e.now().Sub(start))
}

// sameAddress compares addresses ignoring EIP-55 casing.
func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
