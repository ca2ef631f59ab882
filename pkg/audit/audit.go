// Package audit records one structured event per pipeline stage outcome in
// an append-only, hash-chained log. Emission is asynchronous and
// best-effort: a full or failed sink never fails the pipeline, but every
// drop is logged.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a pipeline stage outcome.
type EventType string

const (
	EventSignatureVerified      EventType = "SIGNATURE_VERIFIED"
	EventNonceVerified          EventType = "NONCE_VERIFIED"
	EventSessionVerified        EventType = "SESSION_VERIFIED"
	EventPassportVerified       EventType = "PASSPORT_VERIFIED"
	EventScopeVerified          EventType = "SCOPE_VERIFIED"
	EventServiceVerified        EventType = "SERVICE_VERIFIED"
	EventRateLimitVerified      EventType = "RATE_LIMIT_VERIFIED"
	EventBudgetVerified         EventType = "BUDGET_VERIFIED"
	EventPaymentChallengeIssued EventType = "PAYMENT_CHALLENGE_ISSUED"
	EventPaymentVerified        EventType = "PAYMENT_VERIFIED"
	EventReceiptWritten         EventType = "RECEIPT_WRITTEN"
	EventResponseServed         EventType = "RESPONSE_SERVED"
	EventRequestBlocked         EventType = "REQUEST_BLOCKED"
)

// Event is one append-only audit record. Sequence, PrevHash and EntryHash
// are assigned by the log when the event is appended.
type Event struct {
	EventID      string            `json:"eventId"`
	ActionID     string            `json:"actionId"`
	AgentAddress string            `json:"agentAddress"`
	RouteID      string            `json:"routeId"`
	Type         EventType         `json:"eventType"`
	Details      map[string]string `json:"details,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`

	Sequence  uint64 `json:"sequence"`
	PrevHash  string `json:"prevHash"`
	EntryHash string `json:"entryHash"`
}

// Sink receives pipeline stage events, fire-and-forget.
type Sink interface {
	Record(e Event)
}

// NewEvent stamps identity and creation time on a stage event.
func NewEvent(actionID, agentAddress, routeID string, typ EventType, details map[string]string) Event {
	return Event{
		EventID:      uuid.NewString(),
		ActionID:     actionID,
		AgentAddress: agentAddress,
		RouteID:      routeID,
		Type:         typ,
		Details:      details,
		CreatedAt:    time.Now().UTC(),
	}
}
