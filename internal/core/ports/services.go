package ports

import (
	"context"
	"time"

	"payrails/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// SettlementProvider is the external system that actually moves funds.
type SettlementProvider interface {
	InitiateTransfer(ctx context.Context, req domain.TransferRequest) (*domain.SettlementResult, error)
	// GetTransferStatus returns a result with status not_found for unknown references.
	GetTransferStatus(ctx context.Context, referenceID string) (*domain.SettlementResult, error)
	GetAvailableBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
}

// CounterpartyDirectory answers whether an account exists and is eligible.
type CounterpartyDirectory interface {
	// GetByID returns nil, nil for unknown accounts.
	GetByID(ctx context.Context, id string) (*domain.Account, error)
}

// ChannelConfigSource yields the active routing configuration.
type ChannelConfigSource interface {
	GetActive(ctx context.Context) (*domain.ChannelConfig, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(accountID string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	AccountID string
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached intent JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// --- Service Ports (Business Logic) ---

// PaymentService is the payment orchestrator.
type PaymentService interface {
	CreatePayment(ctx context.Context, req CreatePaymentInput) (*domain.PaymentIntent, error)
	PayRequest(ctx context.Context, req PayRequestInput) (*domain.PaymentIntent, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error)
	ListPayments(ctx context.Context, params PaymentListParams) ([]domain.PaymentIntent, int64, error)
	CancelPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error)
	ReconcilePayment(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error)
	// HandleSettlementCallback applies a provider's asynchronous outcome. The bool
	// is false when the intent had already left processing.
	HandleSettlementCallback(ctx context.Context, cb SettlementCallback) (*domain.PaymentIntent, bool, error)
}

// SettlementCallback is a provider's signed report of a transfer outcome.
type SettlementCallback struct {
	ReferenceID   string
	Status        domain.SettlementStatus
	FailureReason *string
}

// CreatePaymentInput holds validated input for a direct transfer.
type CreatePaymentInput struct {
	SenderID         string
	ReceiverID       string
	Amount           decimal.Decimal
	Currency         string
	IdempotencyKey   string
	PreferredChannel *domain.Channel
	Memo             *string
}

// PayRequestInput holds validated input for paying a payment request from a wallet.
type PayRequestInput struct {
	PaymentRequestID uuid.UUID
	WalletID         string
	IdempotencyKey   string
	PreferredChannel *domain.Channel
}

// LedgerService is the append-only ledger with balance derivation.
type LedgerService interface {
	BalanceOf(ctx context.Context, accountID string) (decimal.Decimal, error)
	PostDebit(ctx context.Context, accountID string, amount decimal.Decimal, paymentID *uuid.UUID, note *string) (*domain.LedgerEntry, error)
	PostCredit(ctx context.Context, accountID string, amount decimal.Decimal, paymentID *uuid.UUID, note *string) (*domain.LedgerEntry, error)
	Reverse(ctx context.Context, entryID uuid.UUID, note *string) (*domain.LedgerEntry, error)
	// LockBalance serializes postings to accountID for the rest of tx and returns its balance.
	LockBalance(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error)
	// PostTransfer writes the debit/credit pair for a completed payment inside tx.
	// With requireFunds set, a sender balance below amount returns domain.ErrInsufficientFunds.
	PostTransfer(ctx context.Context, tx pgx.Tx, from, to string, amount decimal.Decimal, paymentID uuid.UUID, requireFunds bool) ([]domain.LedgerEntry, error)
	ListEntries(ctx context.Context, accountID string, page, pageSize int) ([]domain.LedgerEntry, int64, error)
	Topup(ctx context.Context, walletID string, amount decimal.Decimal) (*domain.LedgerEntry, error)
}

// PaymentRequestService manages merchant payment requests.
type PaymentRequestService interface {
	Create(ctx context.Context, req CreatePaymentRequestInput) (*domain.PaymentRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// CreatePaymentRequestInput holds input for a new payment request.
type CreatePaymentRequestInput struct {
	MerchantID  string
	Amount      decimal.Decimal
	Currency    string
	Description *string
	ExpiresIn   time.Duration // zero uses the default
}

// AuditService records lifecycle events. Failures are logged, never returned.
type AuditService interface {
	Record(ctx context.Context, eventType, source string, referenceID *string, payload any)
	ListEvents(ctx context.Context, referenceID string) ([]domain.AuditEvent, error)
}

// Notifier is informed of a payment's final summary.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}
