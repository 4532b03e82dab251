package postgres

import (
	"context"
	"errors"
	"fmt"

	"payrails/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	ledgerColumns = `seq, id, account_id, payment_id, direction, amount, balance_after, note, created_at`
	balanceQuery  = `SELECT COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0)
		FROM ledger_entries WHERE account_id = $1`
)

// LedgerRepo implements ports.LedgerRepository. Entries are insert-only.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Balance folds every entry of the account.
func (r *LedgerRepo) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	if err := r.pool.QueryRow(ctx, balanceQuery, accountID).Scan(&bal); err != nil {
		return decimal.Zero, fmt.Errorf("ledger balance: %w", err)
	}
	return bal, nil
}

// BalanceForUpdate takes a transaction-scoped advisory lock on the account
// before folding, so concurrent postings compute balance_after in turn.
func (r *LedgerRepo) BalanceForUpdate(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, accountID); err != nil {
		return decimal.Zero, fmt.Errorf("lock ledger account: %w", err)
	}
	var bal decimal.Decimal
	if err := tx.QueryRow(ctx, balanceQuery, accountID).Scan(&bal); err != nil {
		return decimal.Zero, fmt.Errorf("ledger balance for update: %w", err)
	}
	return bal, nil
}

// Append inserts an entry and fills in its sequence number.
func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (id, account_id, payment_id, direction, amount, balance_after, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING seq`

	err := tx.QueryRow(ctx, query,
		e.ID, e.AccountID, e.PaymentID, e.Direction, e.Amount, e.BalanceAfter, e.Note, e.CreatedAt,
	).Scan(&e.Sequence)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetByID fetches one entry.
func (r *LedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE id = $1`
	return scanLedgerEntry(r.pool.QueryRow(ctx, query, id))
}

// ListByAccount pages an account's entries, most recent first.
func (r *LedgerRepo) ListByAccount(ctx context.Context, accountID string, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1`, accountID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ledger entries: %w", err)
	}

	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE account_id = $1 ORDER BY seq DESC LIMIT $2 OFFSET $3`
	entries, err := r.collect(ctx, query, accountID, pageSize, offset(page, pageSize))
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListByPayment returns the entries posted for a payment in creation order.
func (r *LedgerRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE payment_id = $1 ORDER BY seq`
	return r.collect(ctx, query, paymentID)
}

func (r *LedgerRepo) collect(ctx context.Context, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	e := &domain.LedgerEntry{}
	err := row.Scan(&e.Sequence, &e.ID, &e.AccountID, &e.PaymentID, &e.Direction, &e.Amount, &e.BalanceAfter, &e.Note, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}
	return e, nil
}
