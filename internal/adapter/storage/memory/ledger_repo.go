package memory

import (
	"context"

	"payrails/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct{ s *Store }

// Ledger returns the ledger repository view of the store.
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{s: s} }

func (r *LedgerRepo) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return foldAccount(r.s.entries, accountID), nil
}

// BalanceForUpdate includes entries staged earlier in the same transaction.
func (r *LedgerRepo) BalanceForUpdate(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error) {
	t, err := r.s.own(tx)
	if err != nil {
		return decimal.Zero, err
	}
	r.s.mu.RLock()
	bal := foldAccount(r.s.entries, accountID)
	r.s.mu.RUnlock()
	return bal.Add(foldAccount(t.pending, accountID)), nil
}

func (r *LedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	t, err := r.s.own(tx)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	r.s.seq++
	e.Sequence = r.s.seq
	r.s.mu.Unlock()

	entry := *e
	t.pending = append(t.pending, entry)
	t.stage(func(s *Store) { s.entries = append(s.entries, entry) })
	return nil
}

func (r *LedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.entries {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, nil
}

// ListByAccount pages an account's entries, most recent first.
func (r *LedgerRepo) ListByAccount(ctx context.Context, accountID string, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	r.s.mu.RLock()
	var out []domain.LedgerEntry
	for i := len(r.s.entries) - 1; i >= 0; i-- {
		if r.s.entries[i].AccountID == accountID {
			out = append(out, r.s.entries[i])
		}
	}
	r.s.mu.RUnlock()
	return paginate(out, page, pageSize), int64(len(out)), nil
}

func (r *LedgerRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.LedgerEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]domain.LedgerEntry, 0)
	for _, e := range r.s.entries {
		if e.PaymentID != nil && *e.PaymentID == paymentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func foldAccount(entries []domain.LedgerEntry, accountID string) decimal.Decimal {
	bal := decimal.Zero
	for _, e := range entries {
		if e.AccountID == accountID {
			bal = bal.Add(e.Signed())
		}
	}
	return bal
}
