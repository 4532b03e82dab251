package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRequestStatus is the lifecycle state of a merchant's payment request.
type PaymentRequestStatus string

const (
	PaymentRequestPending   PaymentRequestStatus = "pending"
	PaymentRequestCompleted PaymentRequestStatus = "completed"
	PaymentRequestExpired   PaymentRequestStatus = "expired"
	PaymentRequestCancelled PaymentRequestStatus = "cancelled"
)

// PaymentRequest is a standing request for payment a wallet holder can fulfil.
type PaymentRequest struct {
	ID          uuid.UUID            `json:"id"`
	MerchantID  string               `json:"merchant_id"`
	Amount      decimal.Decimal      `json:"amount"`
	Currency    string               `json:"currency"`
	Description *string              `json:"description,omitempty"`
	Status      PaymentRequestStatus `json:"status"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// IsExpired reports whether the request's deadline has passed at now.
func (r *PaymentRequest) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// IsPayable returns true if the request is still pending and within its deadline.
func (r *PaymentRequest) IsPayable(now time.Time) bool {
	return r.Status == PaymentRequestPending && !r.IsExpired(now)
}
