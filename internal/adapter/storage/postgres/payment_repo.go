package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"payrails/internal/core/domain"
	"payrails/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, kind, sender_id, receiver_id, amount, settled_amount, currency, idempotency_key,
		preferred_channel, channel, status, reference_id, failure_reason, payment_request_id, memo, created_at, updated_at`

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// Create inserts a new intent. The unique index on idempotency_key arbitrates
// concurrent creators; the loser gets domain.ErrDuplicateIdempotencyKey. The
// partial index on payment_request_id turns a second live intent for the same
// request into domain.ErrRequestInFlight.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.PaymentIntent) error {
	query := `INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.Kind, p.SenderID, p.ReceiverID, p.Amount, p.SettledAmount, p.Currency, p.IdempotencyKey,
		p.PreferredChannel, p.Channel, p.Status, p.ReferenceID, p.FailureReason, p.PaymentRequestID, p.Memo,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if violatedConstraint(err) == requestInFlightIndex {
				return domain.ErrRequestInFlight
			}
			return domain.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID fetches an intent by UUID.
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, id))
}

// GetByIdempotencyKey fetches an intent by its caller-supplied key.
func (r *PaymentRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentIntent, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, key))
}

// GetByReferenceID fetches the intent a provider reference was assigned to.
func (r *PaymentRepo) GetByReferenceID(ctx context.Context, referenceID string) (*domain.PaymentIntent, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE reference_id = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, referenceID))
}

// AttachReference stores the provider reference while the intent awaits its outcome.
func (r *PaymentRepo) AttachReference(ctx context.Context, id uuid.UUID, referenceID string, at time.Time) error {
	query := `UPDATE payments SET reference_id = $1, updated_at = $2 WHERE id = $3 AND status = 'processing'`

	tag, err := r.pool.Exec(ctx, query, referenceID, at, id)
	if err != nil {
		return fmt.Errorf("attach reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// InFlightDebits sums the wallet intents of accountID still awaiting settlement.
func (r *PaymentRepo) InFlightDebits(ctx context.Context, accountID string) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM payments
		WHERE sender_id = $1 AND kind = 'wallet' AND status = 'processing'`

	var total decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, accountID).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("sum in-flight debits: %w", err)
	}
	return total, nil
}

// ApplySettlement records the provider outcome on a processing intent. A
// settlement without a reference keeps whatever reference was attached earlier.
func (r *PaymentRepo) ApplySettlement(ctx context.Context, tx pgx.Tx, id uuid.UUID, s domain.Settlement) error {
	query := `UPDATE payments SET status = $1, reference_id = COALESCE($2, reference_id), failure_reason = $3,
		settled_amount = $4, updated_at = $5
		WHERE id = $6 AND status = 'processing'`

	tag, err := tx.Exec(ctx, query, s.Status, s.Reference(), s.FailureReason, s.SettledAmount, s.At, id)
	if err != nil {
		return fmt.Errorf("apply settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// Cancel moves a non-terminal intent to cancelled.
func (r *PaymentRepo) Cancel(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE payments SET status = 'cancelled', updated_at = $1
		WHERE id = $2 AND status IN ('received', 'processing')`

	tag, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("cancel payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// List fetches intents with filtering and pagination, newest first.
func (r *PaymentRepo) List(ctx context.Context, params ports.PaymentListParams) ([]domain.PaymentIntent, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.AccountID != nil {
		conditions = append(conditions, fmt.Sprintf("(sender_id = $%d OR receiver_id = $%d)", argIdx, argIdx))
		args = append(args, *params.AccountID)
		argIdx++
	}
	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}
	if params.Channel != nil {
		conditions = append(conditions, fmt.Sprintf("channel = $%d", argIdx))
		args = append(args, *params.Channel)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM payments %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	dataQuery := fmt.Sprintf(`SELECT %s FROM payments %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		paymentColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset(params.Page, params.PageSize))

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.PaymentIntent, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment rows: %w", err)
	}
	return payments, total, nil
}

func scanPayment(row pgx.Row) (*domain.PaymentIntent, error) {
	p := &domain.PaymentIntent{}
	err := row.Scan(
		&p.ID, &p.Kind, &p.SenderID, &p.ReceiverID, &p.Amount, &p.SettledAmount, &p.Currency, &p.IdempotencyKey,
		&p.PreferredChannel, &p.Channel, &p.Status, &p.ReferenceID, &p.FailureReason, &p.PaymentRequestID, &p.Memo,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	return p, nil
}
