package domain

import "github.com/shopspring/decimal"

// SettlementStatus is what a settlement provider reports for a transfer.
type SettlementStatus string

const (
	SettlementCompleted SettlementStatus = "completed"
	SettlementFailed    SettlementStatus = "failed"
	SettlementPending   SettlementStatus = "pending"
	SettlementNotFound  SettlementStatus = "not_found"
)

// TransferRequest is the instruction sent to a settlement provider.
type TransferRequest struct {
	SenderAccountID   string          `json:"sender_account_id"`
	ReceiverAccountID string          `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Channel           Channel         `json:"channel"`
	IdempotencyKey    string          `json:"idempotency_key"`
	Memo              *string         `json:"memo,omitempty"`
}

// SettlementResult is a provider's answer for a transfer.
type SettlementResult struct {
	ReferenceID   string           `json:"reference_id"`
	Status        SettlementStatus `json:"status"`
	Channel       Channel          `json:"channel"`
	Amount        decimal.Decimal  `json:"amount"`
	FailureReason *string          `json:"failure_reason,omitempty"`
}

// IsTerminal reports whether the result settles the intent one way or the other.
func (r *SettlementResult) IsTerminal() bool {
	return r.Status == SettlementCompleted || r.Status == SettlementFailed
}

// PaymentStatus maps a terminal settlement status onto the intent state machine.
func (r *SettlementResult) PaymentStatus() PaymentStatus {
	if r.Status == SettlementCompleted {
		return PaymentStatusCompleted
	}
	return PaymentStatusFailed
}
