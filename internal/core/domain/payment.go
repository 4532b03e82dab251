package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a PaymentIntent.
type PaymentStatus string

const (
	PaymentStatusReceived   PaymentStatus = "received"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// PaymentKind distinguishes direct transfers from wallet-funded payments.
type PaymentKind string

const (
	PaymentKindTransfer PaymentKind = "transfer"
	PaymentKindWallet   PaymentKind = "wallet"
)

// CancellableStatuses are the states a cancel may transition from.
var CancellableStatuses = []PaymentStatus{PaymentStatusReceived, PaymentStatusProcessing}

// PaymentIntent tracks one payment request through the state machine.
type PaymentIntent struct {
	ID               uuid.UUID       `json:"id"`
	Kind             PaymentKind     `json:"kind"`
	SenderID         string          `json:"sender_id"`
	ReceiverID       string          `json:"receiver_id"`
	Amount           decimal.Decimal `json:"amount"`
	SettledAmount    decimal.Decimal `json:"settled_amount"`
	Currency         string          `json:"currency"`
	IdempotencyKey   string          `json:"idempotency_key"`
	PreferredChannel *Channel        `json:"preferred_channel,omitempty"`
	Channel          Channel         `json:"channel"`
	Status           PaymentStatus   `json:"status"`
	ReferenceID      *string         `json:"reference_id,omitempty"`
	FailureReason    *string         `json:"failure_reason,omitempty"`
	PaymentRequestID *uuid.UUID      `json:"payment_request_id,omitempty"`
	Memo             *string         `json:"memo,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsTerminal returns true once the intent can no longer change.
func (p *PaymentIntent) IsTerminal() bool {
	return p.Status.IsTerminal()
}

// CanCancel returns true if the intent is still in a transient state.
func (p *PaymentIntent) CanCancel() bool {
	return !p.Status.IsTerminal()
}

// IsTerminal reports whether s is completed, failed or cancelled.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted ||
		s == PaymentStatusFailed ||
		s == PaymentStatusCancelled
}

// Settlement is the outcome folded into a processing intent.
type Settlement struct {
	Status        PaymentStatus
	ReferenceID   string
	FailureReason *string
	SettledAmount decimal.Decimal
	At            time.Time
}

// Reference returns the provider reference, or nil when none was assigned.
func (s Settlement) Reference() *string {
	if s.ReferenceID == "" {
		return nil
	}
	ref := s.ReferenceID
	return &ref
}
