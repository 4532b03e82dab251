package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit event types emitted by the orchestrator and ledger.
const (
	EventPaymentInitiated      = "payment.initiated"
	EventPaymentCompleted      = "payment.completed"
	EventPaymentFailed         = "payment.failed"
	EventPaymentCancelled      = "payment.cancelled"
	EventSettlementDiscarded   = "payment.settlement_discarded"
	EventSettlementCallback    = "webhook.settlement"
	EventPaymentRequestCreated = "payment_request.created"
	EventPaymentRequestExpired = "payment_request.expired"
	EventLedgerReversal        = "ledger.reversal"
	EventWalletTopup           = "wallet.topup"
)

// Audit event sources.
const (
	SourceOrchestrator = "orchestrator"
	SourceLedger       = "ledger"
	SourcePaymentReqs  = "payment_requests"
	SourceWebhook      = "webhook"
)

// AuditEvent is an immutable lifecycle record.
type AuditEvent struct {
	ID          uuid.UUID       `json:"id"`
	EventType   string          `json:"event_type"`
	Source      string          `json:"source"`
	ReferenceID *string         `json:"reference_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
