package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payrails/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const paymentRequestColumns = `id, merchant_id, amount, currency, description, status, expires_at, created_at, updated_at`

// PaymentRequestRepo implements ports.PaymentRequestRepository.
type PaymentRequestRepo struct {
	pool Pool
}

// NewPaymentRequestRepo creates a new PaymentRequestRepo.
func NewPaymentRequestRepo(pool Pool) *PaymentRequestRepo {
	return &PaymentRequestRepo{pool: pool}
}

func (r *PaymentRequestRepo) Create(ctx context.Context, pr *domain.PaymentRequest) error {
	query := `INSERT INTO payment_requests (` + paymentRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		pr.ID, pr.MerchantID, pr.Amount, pr.Currency, pr.Description, pr.Status, pr.ExpiresAt, pr.CreatedAt, pr.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment request: %w", err)
	}
	return nil
}

func (r *PaymentRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error) {
	query := `SELECT ` + paymentRequestColumns + ` FROM payment_requests WHERE id = $1`
	return scanPaymentRequest(r.pool.QueryRow(ctx, query, id))
}

// MarkCompleted settles a pending request inside the payment's transaction.
func (r *PaymentRequestRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	tag, err := tx.Exec(ctx,
		`UPDATE payment_requests SET status = 'completed', updated_at = $1 WHERE id = $2 AND status = 'pending'`,
		at, id)
	if err != nil {
		return fmt.Errorf("complete payment request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleTransition
	}
	return nil
}

// awaitingPayment excludes requests with an intent still at the provider.
const awaitingPayment = `NOT EXISTS (SELECT 1 FROM payments p
			WHERE p.payment_request_id = payment_requests.id AND p.status = 'processing')`

// MarkExpired flips a pending request to expired unless a payment for it is
// still processing.
func (r *PaymentRequestRepo) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE payment_requests SET status = 'expired', updated_at = $1
		WHERE id = $2 AND status = 'pending' AND `+awaitingPayment,
		at, id)
	if err != nil {
		return false, fmt.Errorf("expire payment request: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListOverdue returns pending requests whose deadline passed before now and
// that no processing payment holds.
func (r *PaymentRequestRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.PaymentRequest, error) {
	query := `SELECT ` + paymentRequestColumns + ` FROM payment_requests
		WHERE status = 'pending' AND expires_at < $1 AND ` + awaitingPayment + `
		ORDER BY expires_at LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list overdue payment requests: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentRequest
	for rows.Next() {
		pr, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment request rows: %w", err)
	}
	return out, nil
}

func scanPaymentRequest(row pgx.Row) (*domain.PaymentRequest, error) {
	pr := &domain.PaymentRequest{}
	err := row.Scan(&pr.ID, &pr.MerchantID, &pr.Amount, &pr.Currency, &pr.Description, &pr.Status,
		&pr.ExpiresAt, &pr.CreatedAt, &pr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment request: %w", err)
	}
	return pr, nil
}
