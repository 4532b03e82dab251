package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"payrails/internal/core/domain"
	"payrails/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProcessing(key string) *domain.PaymentIntent {
	now := time.Now().UTC()
	return &domain.PaymentIntent{
		ID:             uuid.New(),
		Kind:           domain.PaymentKindTransfer,
		SenderID:       "alice",
		ReceiverID:     "shop",
		Amount:         decimal.RequireFromString("10.00"),
		SettledAmount:  decimal.RequireFromString("10.00"),
		Currency:       domain.DefaultCurrency,
		IdempotencyKey: key,
		Channel:        domain.ChannelFedNow,
		Status:         domain.PaymentStatusProcessing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func strPtr(s string) *string { return &s }

func entry(account string, dir domain.Direction, amount string) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:        uuid.New(),
		AccountID: account,
		Direction: dir,
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: time.Now().UTC(),
	}
}

func TestPaymentRepo_DuplicateKey(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Payments().Create(ctx, newProcessing("k1")))
	assert.ErrorIs(t, s.Payments().Create(ctx, newProcessing("k1")), domain.ErrDuplicateIdempotencyKey)

	got, err := s.Payments().GetByIdempotencyKey(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)

	missing, err := s.Payments().GetByIdempotencyKey(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPaymentRepo_Create_ConcurrentSameKey(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Payments().Create(ctx, newProcessing("shared")); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func walletIntent(key string, requestID uuid.UUID) *domain.PaymentIntent {
	p := newProcessing(key)
	p.Kind = domain.PaymentKindWallet
	p.PaymentRequestID = &requestID
	return p
}

func TestPaymentRepo_RequestHeldByOneLiveIntent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	reqID := uuid.New()

	first := walletIntent("pay-1", reqID)
	require.NoError(t, s.Payments().Create(ctx, first))
	assert.ErrorIs(t, s.Payments().Create(ctx, walletIntent("pay-2", reqID)), domain.ErrRequestInFlight)

	// A cancelled intent lets go of the request.
	require.NoError(t, s.Payments().Cancel(ctx, first.ID, time.Now().UTC()))
	second := walletIntent("pay-3", reqID)
	require.NoError(t, s.Payments().Create(ctx, second))

	// A completed one keeps it.
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Payments().ApplySettlement(ctx, tx, second.ID, domain.Settlement{
		Status: domain.PaymentStatusCompleted, SettledAmount: second.Amount, At: time.Now().UTC(),
	}))
	require.NoError(t, tx.Commit(ctx))
	assert.ErrorIs(t, s.Payments().Create(ctx, walletIntent("pay-4", reqID)), domain.ErrRequestInFlight)
}

func TestPaymentRepo_Create_ConcurrentSameRequest(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	reqID := uuid.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, held := 0, 0
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Payments().Create(ctx, walletIntent(fmt.Sprintf("pay-%d", i), reqID))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrRequestInFlight):
				held++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 15, held)
}

func TestPaymentRepo_ReferenceAndInFlightDebits(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	a := walletIntent("pay-a", uuid.New())
	b := walletIntent("pay-b", uuid.New())
	direct := newProcessing("direct")
	for _, p := range []*domain.PaymentIntent{a, b, direct} {
		require.NoError(t, s.Payments().Create(ctx, p))
	}

	debits, err := s.Payments().InFlightDebits(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "20.00", debits.StringFixed(2), "direct transfers reserve nothing")

	require.NoError(t, s.Payments().AttachReference(ctx, a.ID, "ach_a", now))
	got, err := s.Payments().GetByReferenceID(ctx, "ach_a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID)

	missing, err := s.Payments().GetByReferenceID(ctx, "ach_none")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// A settlement without a reference keeps the attached one.
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Payments().ApplySettlement(ctx, tx, a.ID, domain.Settlement{
		Status: domain.PaymentStatusFailed, FailureReason: strPtr("timeout"), SettledAmount: a.Amount, At: now,
	}))
	require.NoError(t, tx.Commit(ctx))

	settled, _ := s.Payments().GetByID(ctx, a.ID)
	require.NotNil(t, settled.ReferenceID)
	assert.Equal(t, "ach_a", *settled.ReferenceID)
	assert.ErrorIs(t, s.Payments().AttachReference(ctx, a.ID, "ach_late", now), domain.ErrStaleTransition)

	debits, err = s.Payments().InFlightDebits(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "10.00", debits.StringFixed(2))
}

func TestApplySettlement_NoReferenceStaysNil(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := newProcessing("k-noref")
	require.NoError(t, s.Payments().Create(ctx, p))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Payments().ApplySettlement(ctx, tx, p.ID, domain.Settlement{
		Status: domain.PaymentStatusFailed, FailureReason: strPtr("provider down"), SettledAmount: p.Amount, At: time.Now().UTC(),
	}))
	require.NoError(t, tx.Commit(ctx))

	got, _ := s.Payments().GetByID(ctx, p.ID)
	assert.Nil(t, got.ReferenceID)
}

func TestTx_CommitAppliesStagedWrites(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := newProcessing("k2")
	require.NoError(t, s.Payments().Create(ctx, p))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Payments().ApplySettlement(ctx, tx, p.ID, domain.Settlement{
		Status:        domain.PaymentStatusCompleted,
		ReferenceID:   "fednow_1",
		SettledAmount: p.Amount,
		At:            time.Now().UTC(),
	}))
	require.NoError(t, s.Ledger().Append(ctx, tx, entry("alice", domain.DirectionDebit, "10.00")))

	before, _ := s.Payments().GetByID(ctx, p.ID)
	assert.Equal(t, domain.PaymentStatusProcessing, before.Status, "staged writes are invisible before commit")
	bal, _ := s.Ledger().Balance(ctx, "alice")
	assert.True(t, bal.IsZero())

	require.NoError(t, tx.Commit(ctx))

	after, _ := s.Payments().GetByID(ctx, p.ID)
	assert.Equal(t, domain.PaymentStatusCompleted, after.Status)
	assert.Equal(t, "fednow_1", *after.ReferenceID)
	bal, _ = s.Ledger().Balance(ctx, "alice")
	assert.True(t, bal.Equal(decimal.RequireFromString("-10")))

	assert.ErrorIs(t, tx.Rollback(ctx), pgx.ErrTxClosed)
}

func TestTx_RollbackDiscards(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Ledger().Append(ctx, tx, entry("alice", domain.DirectionCredit, "5.00")))
	require.NoError(t, tx.Rollback(ctx))

	bal, _ := s.Ledger().Balance(ctx, "alice")
	assert.True(t, bal.IsZero())

	// The slot is released: a new transaction can start.
	tx2, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback(ctx))
}

func TestTx_ForeignTransactionRejected(t *testing.T) {
	a, b := NewStore(), NewStore()
	ctx := context.Background()

	tx, err := a.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	assert.ErrorIs(t, b.Ledger().Append(ctx, tx, entry("x", domain.DirectionCredit, "1")), ErrForeignTx)
}

func TestBegin_RespectsContext(t *testing.T) {
	s := NewStore()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Begin(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCancel_WaitsForOpenSettlement(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := newProcessing("k3")
	require.NoError(t, s.Payments().Create(ctx, p))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Payments().ApplySettlement(ctx, tx, p.ID, domain.Settlement{
		Status: domain.PaymentStatusCompleted, ReferenceID: "r", SettledAmount: p.Amount, At: time.Now(),
	}))

	done := make(chan error, 1)
	go func() { done <- s.Payments().Cancel(ctx, p.ID, time.Now()) }()

	select {
	case <-done:
		t.Fatal("cancel must wait for the open transaction")
	case <-time.After(30 * time.Millisecond):
	}

	require.NoError(t, tx.Commit(ctx))
	assert.ErrorIs(t, <-done, domain.ErrStaleTransition)

	got, _ := s.Payments().GetByID(ctx, p.ID)
	assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
}

func TestApplySettlement_AfterCancel(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := newProcessing("k4")
	require.NoError(t, s.Payments().Create(ctx, p))
	require.NoError(t, s.Payments().Cancel(ctx, p.ID, time.Now()))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	err = s.Payments().ApplySettlement(ctx, tx, p.ID, domain.Settlement{Status: domain.PaymentStatusCompleted})
	assert.ErrorIs(t, err, domain.ErrStaleTransition)
}

func TestLedger_BalanceForUpdateSeesStagedEntries(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Ledger().Append(ctx, tx, entry("w", domain.DirectionCredit, "100.00")))
	require.NoError(t, s.Ledger().Append(ctx, tx, entry("w", domain.DirectionDebit, "30.00")))

	bal, err := s.Ledger().BalanceForUpdate(ctx, tx, "w")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(70)))
	require.NoError(t, tx.Commit(ctx))

	entries, total, err := s.Ledger().ListByAccount(ctx, "w", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.DirectionDebit, entries[0].Direction, "most recent first")
	assert.Equal(t, int64(2), entries[0].Sequence)
}

func TestPaymentRepo_ListFiltersAndPages(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		p := newProcessing(uuid.NewString())
		p.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if i%2 == 0 {
			p.Channel = domain.ChannelACH
		}
		require.NoError(t, s.Payments().Create(ctx, p))
	}
	other := newProcessing("other")
	other.SenderID, other.ReceiverID = "bob", "carol"
	require.NoError(t, s.Payments().Create(ctx, other))

	alice := "alice"
	ach := domain.ChannelACH
	out, total, err := s.Payments().List(ctx, ports.PaymentListParams{AccountID: &alice, Channel: &ach, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, out, 2)
	assert.True(t, out[0].CreatedAt.After(out[1].CreatedAt))

	out, _, err = s.Payments().List(ctx, ports.PaymentListParams{AccountID: &alice, Channel: &ach, Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestChannelConfigRepo_SingleActive(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.ChannelConfigs().Upsert(ctx, &domain.ChannelConfig{Name: "a", Channels: []domain.Channel{domain.ChannelACH}, Active: true}))
	require.NoError(t, s.ChannelConfigs().Upsert(ctx, &domain.ChannelConfig{Name: "b", Channels: []domain.Channel{domain.ChannelRTP}, Active: true}))

	cfg, err := s.ChannelConfigs().GetActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "b", cfg.Name)

	empty := NewStore()
	cfg, err = empty.ChannelConfigs().GetActive(ctx)
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestPaymentRequestRepo_ExpiryAndCompletion(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)

	overdue := &domain.PaymentRequest{ID: uuid.New(), MerchantID: "shop", Status: domain.PaymentRequestPending, ExpiresAt: &past}
	open := &domain.PaymentRequest{ID: uuid.New(), MerchantID: "shop", Status: domain.PaymentRequestPending}
	require.NoError(t, s.PaymentRequests().Create(ctx, overdue))
	require.NoError(t, s.PaymentRequests().Create(ctx, open))

	list, err := s.PaymentRequests().ListOverdue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, overdue.ID, list[0].ID)

	ok, err := s.PaymentRequests().MarkExpired(ctx, overdue.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = s.PaymentRequests().MarkExpired(ctx, overdue.ID, now)
	assert.False(t, ok)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, s.PaymentRequests().MarkCompleted(ctx, tx, overdue.ID, now), domain.ErrStaleTransition)
	require.NoError(t, s.PaymentRequests().MarkCompleted(ctx, tx, open.ID, now))
	require.NoError(t, tx.Commit(ctx))

	got, _ := s.PaymentRequests().GetByID(ctx, open.ID)
	assert.Equal(t, domain.PaymentRequestCompleted, got.Status)
}

func TestPaymentRequestRepo_ExpirySkipsRequestsBeingPaid(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)

	pr := &domain.PaymentRequest{ID: uuid.New(), MerchantID: "shop", Status: domain.PaymentRequestPending, ExpiresAt: &past}
	require.NoError(t, s.PaymentRequests().Create(ctx, pr))
	p := walletIntent("pay-late", pr.ID)
	require.NoError(t, s.Payments().Create(ctx, p))

	list, err := s.PaymentRequests().ListOverdue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
	ok, err := s.PaymentRequests().MarkExpired(ctx, pr.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	// Once the payment is no longer processing the request can lapse.
	require.NoError(t, s.Payments().Cancel(ctx, p.ID, now))
	list, err = s.PaymentRequests().ListOverdue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	ok, err = s.PaymentRequests().MarkExpired(ctx, pr.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuditRepo_ListByReference(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ref := "p-1"

	require.NoError(t, s.Audit().Create(ctx, &domain.AuditEvent{ID: uuid.New(), EventType: domain.EventPaymentInitiated, ReferenceID: &ref}))
	require.NoError(t, s.Audit().Create(ctx, &domain.AuditEvent{ID: uuid.New(), EventType: domain.EventWalletTopup}))
	require.NoError(t, s.Audit().Create(ctx, &domain.AuditEvent{ID: uuid.New(), EventType: domain.EventPaymentCompleted, ReferenceID: &ref}))

	events, err := s.Audit().ListByReference(ctx, ref)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventPaymentInitiated, events[0].EventType)
	assert.Equal(t, domain.EventPaymentCompleted, events[1].EventType)
}

func TestAccountRepo_CreateKeepsExisting(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Accounts().Create(ctx, &domain.Account{ID: "shop", Status: domain.AccountStatusSuspended}))
	require.NoError(t, s.Accounts().Create(ctx, &domain.Account{ID: "shop", Status: domain.AccountStatusActive}))

	a, err := s.Accounts().GetByID(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountStatusSuspended, a.Status)
}
