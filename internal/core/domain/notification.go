package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Notification is the post-hoc summary sent to an account about a payment.
type Notification struct {
	PaymentID   uuid.UUID       `json:"payment_id"`
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Channel     Channel         `json:"channel"`
	Status      PaymentStatus   `json:"status"`
	Description string          `json:"description"`
	Timestamp   int64           `json:"timestamp"`
}

// DeliveryStatus represents the state of a notification delivery.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// NotificationDelivery records the delivery attempts of one notification.
type NotificationDelivery struct {
	ID         uuid.UUID      `json:"id"`
	PaymentID  uuid.UUID      `json:"payment_id"`
	AccountID  string         `json:"account_id"`
	URL        string         `json:"url"`
	Payload    string         `json:"payload"`
	HTTPStatus *int           `json:"http_status"`
	Attempt    int            `json:"attempt"`
	Status     DeliveryStatus `json:"status"`
	LastError  *string        `json:"last_error"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
