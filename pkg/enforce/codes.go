// Package enforce runs the ordered policy pipeline in front of every paid
// route: identity, replay, delegation, passport, scope, service, rate
// limit, budget, then payment, receipt, and dispatch. Stage order is fixed
// and cost-ascending: cheap local checks run before registry reads, which
// run before network-bound payment verification. The nonce check sits
// before the registry reads so replay detection never depends on registry
// availability.
package enforce

import (
	"fmt"
	"net/http"
)

// FailureCode is the closed taxonomy of terminal policy failures.
type FailureCode string

const (
	CodeInvalidSignature      FailureCode = "INVALID_SIGNATURE"
	CodeSessionRevoked        FailureCode = "SESSION_REVOKED"
	CodeSessionExpired        FailureCode = "SESSION_EXPIRED"
	CodePassportRevoked       FailureCode = "PASSPORT_REVOKED"
	CodePassportExpired       FailureCode = "PASSPORT_EXPIRED"
	CodeScopeForbidden        FailureCode = "SCOPE_FORBIDDEN"
	CodeServiceForbidden      FailureCode = "SERVICE_FORBIDDEN"
	CodeRateLimited           FailureCode = "RATE_LIMITED"
	CodeDailyBudgetExceeded   FailureCode = "DAILY_BUDGET_EXCEEDED"
	CodePerCallBudgetExceeded FailureCode = "PER_CALL_BUDGET_EXCEEDED"
	CodeReplayNonce           FailureCode = "REPLAY_NONCE"
	CodePaymentRequired       FailureCode = "PAYMENT_REQUIRED"
	CodePaymentInvalid        FailureCode = "PAYMENT_INVALID"
	CodePaymentExpired        FailureCode = "PAYMENT_EXPIRED"
)

// HTTPStatus maps a failure code to its response status.
func (c FailureCode) HTTPStatus() int {
	switch c {
	case CodeInvalidSignature, CodeSessionRevoked, CodeSessionExpired,
		CodePassportRevoked, CodePassportExpired:
		return http.StatusUnauthorized
	case CodeScopeForbidden, CodeServiceForbidden,
		CodeDailyBudgetExceeded, CodePerCallBudgetExceeded:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeReplayNonce:
		return http.StatusConflict
	case CodePaymentRequired, CodePaymentInvalid, CodePaymentExpired:
		return http.StatusPaymentRequired
	default:
		return http.StatusForbidden
	}
}

// PolicyError is a terminal pipeline failure. No internal retries: retrying
// with a new nonce and a payment proof is entirely the caller's business.
type PolicyError struct {
	Code     FailureCode
	Message  string
	ActionID string
	RouteID  string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func policyErr(code FailureCode, actionID, routeID, format string, args ...any) *PolicyError {
	return &PolicyError{
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		ActionID: actionID,
		RouteID:  routeID,
	}
}

// InfraError reports a transient infrastructure fault (registry
// unreachable, store I/O failure). Kept distinct from PolicyError so
// callers can tell "you are not authorized" from "the authorization
// service is down".
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("enforce: %s: %v", e.Op, e.Err)
}

func (e *InfraError) Unwrap() error { return e.Err }
