package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"payrails/internal/core/domain"
	"payrails/internal/core/ports"
	"payrails/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	topupNote = "Wallet top-up"
)

// LedgerServiceImpl implements ports.LedgerService on an append-only entry store.
type LedgerServiceImpl struct {
	repo       ports.LedgerRepository
	transactor ports.DBTransactor
	directory  ports.CounterpartyDirectory
	audit      ports.AuditService
	log        zerolog.Logger
	now        func() time.Time
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	repo ports.LedgerRepository,
	transactor ports.DBTransactor,
	directory ports.CounterpartyDirectory,
	audit ports.AuditService,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		repo:       repo,
		transactor: transactor,
		directory:  directory,
		audit:      audit,
		log:        log,
		now:        time.Now,
	}
}

// BalanceOf folds every entry of the account. Unknown accounts have a zero balance.
func (s *LedgerServiceImpl) BalanceOf(ctx context.Context, accountID string) (decimal.Decimal, error) {
	bal, err := s.repo.Balance(ctx, accountID)
	if err != nil {
		return decimal.Zero, apperror.ErrDatabaseError(err)
	}
	return bal, nil
}

func (s *LedgerServiceImpl) PostDebit(ctx context.Context, accountID string, amount decimal.Decimal, paymentID *uuid.UUID, note *string) (*domain.LedgerEntry, error) {
	return s.postOne(ctx, accountID, domain.DirectionDebit, amount, paymentID, note)
}

func (s *LedgerServiceImpl) PostCredit(ctx context.Context, accountID string, amount decimal.Decimal, paymentID *uuid.UUID, note *string) (*domain.LedgerEntry, error) {
	return s.postOne(ctx, accountID, domain.DirectionCredit, amount, paymentID, note)
}

// Reverse posts the mirror image of an entry. The original is never modified.
func (s *LedgerServiceImpl) Reverse(ctx context.Context, entryID uuid.UUID, note *string) (*domain.LedgerEntry, error) {
	orig, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if orig == nil {
		return nil, apperror.ErrNotFound("ledger entry")
	}

	if note == nil || strings.TrimSpace(*note) == "" {
		n := domain.ReversalNote(entryID)
		note = &n
	}

	entry, err := s.postOne(ctx, orig.AccountID, orig.Direction.Opposite(), orig.Amount, orig.PaymentID, note)
	if err != nil {
		return nil, err
	}

	ref := entryID.String()
	s.audit.Record(ctx, domain.EventLedgerReversal, domain.SourceLedger, &ref, map[string]any{
		"account_id":     entry.AccountID,
		"reversal_entry": entry.ID,
		"amount":         entry.Amount,
	})
	return entry, nil
}

// LockBalance takes the account's posting lock for the rest of tx.
func (s *LedgerServiceImpl) LockBalance(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error) {
	bal, err := s.repo.BalanceForUpdate(ctx, tx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock %s: %w", accountID, err)
	}
	return bal, nil
}

// PostTransfer writes the debit and credit of a settled payment inside tx.
// Accounts are locked in sorted order so opposing transfers cannot deadlock.
func (s *LedgerServiceImpl) PostTransfer(ctx context.Context, tx pgx.Tx, from, to string, amount decimal.Decimal, paymentID uuid.UUID, requireFunds bool) ([]domain.LedgerEntry, error) {
	amount = domain.RoundMinor(amount)
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	accounts := []string{from, to}
	sort.Strings(accounts)
	balances := make(map[string]decimal.Decimal, 2)
	for _, acct := range accounts {
		if _, ok := balances[acct]; ok {
			continue
		}
		bal, err := s.repo.BalanceForUpdate(ctx, tx, acct)
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", acct, err)
		}
		balances[acct] = bal
	}
	if requireFunds && balances[from].LessThan(amount) {
		return nil, domain.ErrInsufficientFunds
	}

	now := s.now().UTC()
	pid := paymentID
	legs := []struct {
		account string
		dir     domain.Direction
	}{
		{from, domain.DirectionDebit},
		{to, domain.DirectionCredit},
	}

	entries := make([]domain.LedgerEntry, 0, len(legs))
	for _, leg := range legs {
		e := domain.LedgerEntry{
			ID:        uuid.New(),
			AccountID: leg.account,
			PaymentID: &pid,
			Direction: leg.dir,
			Amount:    amount,
			CreatedAt: now,
		}
		balances[leg.account] = balances[leg.account].Add(e.Signed())
		e.BalanceAfter = balances[leg.account]
		if err := s.repo.Append(ctx, tx, &e); err != nil {
			return nil, fmt.Errorf("append %s entry: %w", leg.dir, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ListEntries pages an account's entries, most recent first.
func (s *LedgerServiceImpl) ListEntries(ctx context.Context, accountID string, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	entries, total, err := s.repo.ListByAccount(ctx, accountID, page, pageSize)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(err)
	}
	return entries, total, nil
}

// Topup credits an active wallet from outside the system.
func (s *LedgerServiceImpl) Topup(ctx context.Context, walletID string, amount decimal.Decimal) (*domain.LedgerEntry, error) {
	acct, err := s.directory.GetByID(ctx, walletID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if acct == nil || acct.Kind != domain.AccountKindWallet {
		return nil, apperror.ErrNotFound("wallet")
	}
	if !acct.IsActive() {
		return nil, apperror.ErrCounterpartyInactive(walletID)
	}

	note := topupNote
	entry, err := s.postOne(ctx, walletID, domain.DirectionCredit, amount, nil, &note)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, domain.EventWalletTopup, domain.SourceLedger, &walletID, map[string]any{
		"entry_id":      entry.ID,
		"amount":        entry.Amount,
		"balance_after": entry.BalanceAfter,
	})
	s.log.Info().
		Str("wallet_id", walletID).
		Str("amount", entry.Amount.StringFixed(domain.MinorUnits)).
		Msg("wallet topped up")
	return entry, nil
}

func (s *LedgerServiceImpl) postOne(ctx context.Context, accountID string, dir domain.Direction, amount decimal.Decimal, paymentID *uuid.UUID, note *string) (*domain.LedgerEntry, error) {
	amount = domain.RoundMinor(amount)
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if strings.TrimSpace(accountID) == "" {
		return nil, apperror.Validation("account id is required")
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	bal, err := s.repo.BalanceForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	e := &domain.LedgerEntry{
		ID:        uuid.New(),
		AccountID: accountID,
		PaymentID: paymentID,
		Direction: dir,
		Amount:    amount,
		Note:      note,
		CreatedAt: s.now().UTC(),
	}
	e.BalanceAfter = bal.Add(e.Signed())

	if err := s.repo.Append(ctx, tx, e); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}
	return e, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
