package ports

import (
	"context"
	"time"

	"payrails/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PaymentRepository defines persistence operations for payment intents.
// Methods accepting pgx.Tx are used inside transaction blocks.
type PaymentRepository interface {
	// Create inserts an intent. A key collision returns domain.ErrDuplicateIdempotencyKey;
	// a payment request already held by a processing or completed intent returns
	// domain.ErrRequestInFlight.
	Create(ctx context.Context, p *domain.PaymentIntent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentIntent, error)
	GetByReferenceID(ctx context.Context, referenceID string) (*domain.PaymentIntent, error)
	// AttachReference records the provider reference on a processing intent.
	// Returns domain.ErrStaleTransition if the intent is no longer processing.
	AttachReference(ctx context.Context, id uuid.UUID, referenceID string, at time.Time) error
	// InFlightDebits sums the amounts of processing wallet intents sent by accountID.
	InFlightDebits(ctx context.Context, accountID string) (decimal.Decimal, error)
	// ApplySettlement moves a processing intent to its terminal status.
	// Returns domain.ErrStaleTransition if the intent is no longer processing.
	ApplySettlement(ctx context.Context, tx pgx.Tx, id uuid.UUID, s domain.Settlement) error
	// Cancel moves a received/processing intent to cancelled.
	// Returns domain.ErrStaleTransition if the intent is already terminal.
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) error
	List(ctx context.Context, params PaymentListParams) ([]domain.PaymentIntent, int64, error)
}

// PaymentListParams holds filter + pagination for listing payments.
type PaymentListParams struct {
	AccountID *string // matches sender or receiver
	Status    *domain.PaymentStatus
	Channel   *domain.Channel
	Page      int
	PageSize  int
}

// LedgerRepository is the append-only entry store.
type LedgerRepository interface {
	// Balance folds all entries of an account.
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)
	// BalanceForUpdate serializes postings to the account for the rest of tx and returns its balance.
	BalanceForUpdate(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error)
	Append(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error)
	ListByAccount(ctx context.Context, accountID string, page, pageSize int) ([]domain.LedgerEntry, int64, error)
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.LedgerEntry, error)
}

// PaymentRequestRepository defines persistence for merchant payment requests.
type PaymentRequestRepository interface {
	Create(ctx context.Context, r *domain.PaymentRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error)
	// MarkCompleted flips a pending request to completed inside tx.
	MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error
	// MarkExpired flips a pending request to expired. Returns false if it was not pending.
	MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.PaymentRequest, error)
}

// AccountRepository backs the counterparty directory.
type AccountRepository interface {
	CounterpartyDirectory
	Create(ctx context.Context, a *domain.Account) error
}

// ChannelConfigRepository stores routing configurations.
// GetActive returns nil, nil when no configuration is active.
type ChannelConfigRepository interface {
	ChannelConfigSource
	Upsert(ctx context.Context, cfg *domain.ChannelConfig) error
}

// AuditRepository is the append-only event sink.
type AuditRepository interface {
	Create(ctx context.Context, event *domain.AuditEvent) error
	ListByReference(ctx context.Context, referenceID string) ([]domain.AuditEvent, error)
}

// NotificationRepository records notification delivery attempts.
type NotificationRepository interface {
	Create(ctx context.Context, d *domain.NotificationDelivery) error
	Update(ctx context.Context, d *domain.NotificationDelivery) error
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.NotificationDelivery, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
