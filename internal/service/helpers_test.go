package service

import (
	"context"
	"io"
	"testing"
	"time"

	"payrails/internal/adapter/settlement/simulator"
	"payrails/internal/adapter/storage/memory"
	"payrails/internal/core/domain"
	"payrails/internal/core/ports"
	"payrails/internal/core/rail"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func strPtr(s string) *string { return &s }

func chanPtr(c domain.Channel) *domain.Channel { return &c }

// mockTx satisfies pgx.Tx for gomock-driven tests.
type mockTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committed = true
	return nil
}

func (m *mockTx) Rollback(ctx context.Context) error {
	if !m.committed {
		m.rolledBack = true
	}
	return nil
}

// harness wires the real services over the memory store and the simulator.
type harness struct {
	store    *memory.Store
	sim      *simulator.Simulator
	audit    *AuditServiceImpl
	ledger   *LedgerServiceImpl
	requests *PaymentRequestServiceImpl
	payments *PaymentServiceImpl
}

const (
	alice    = "wallet-alice"
	bob      = "wallet-bob"
	shop     = "merchant-shop"
	dormant  = "merchant-dormant"
	testRate = "0.9875"
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	log := newTestLogger()

	store := memory.NewStore()
	accounts := store.Accounts()
	for _, a := range []domain.Account{
		{ID: alice, Kind: domain.AccountKindWallet, Status: domain.AccountStatusActive},
		{ID: bob, Kind: domain.AccountKindWallet, Status: domain.AccountStatusActive},
		{ID: shop, Kind: domain.AccountKindMerchant, Status: domain.AccountStatusActive},
		{ID: dormant, Kind: domain.AccountKindMerchant, Status: domain.AccountStatusSuspended},
	} {
		require.NoError(t, accounts.Create(ctx, &a))
	}
	require.NoError(t, store.ChannelConfigs().Upsert(ctx, &domain.ChannelConfig{
		Name:     "default",
		Channels: domain.DefaultChannelPriority,
		Active:   true,
	}))

	noFail := 0.0
	sim := simulator.New(simulator.Options{
		FailureRate: &noFail,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}, log)

	audit := NewAuditService(store.Audit(), log)
	ledger := NewLedgerService(store.Ledger(), store, accounts, audit, log)
	requests := NewPaymentRequestService(store.PaymentRequests(), accounts, audit, log)
	payments := NewPaymentService(PaymentDeps{
		Payments:   store.Payments(),
		Requests:   store.PaymentRequests(),
		Ledger:     ledger,
		Directory:  accounts,
		Channels:   store.ChannelConfigs(),
		Provider:   sim,
		Transactor: store,
		Audit:      audit,
		Selector:   rail.NewSelector(nil),
	}, PaymentOptions{
		RaceWait:         2 * time.Second,
		DiscountRate:     decimal.RequireFromString(testRate),
		DiscountChannels: []domain.Channel{domain.ChannelFedNow, domain.ChannelRTP},
	}, log)

	return &harness{
		store:    store,
		sim:      sim,
		audit:    audit,
		ledger:   ledger,
		requests: requests,
		payments: payments,
	}
}

func (h *harness) balance(t *testing.T, account string) string {
	t.Helper()
	bal, err := h.ledger.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	return bal.StringFixed(domain.MinorUnits)
}

func (h *harness) eventTypes(t *testing.T, ref string) []string {
	t.Helper()
	events, err := h.audit.ListEvents(context.Background(), ref)
	require.NoError(t, err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

// useProvider swaps the orchestrator's settlement provider.
func (h *harness) useProvider(p ports.SettlementProvider) {
	h.payments.provider = p
}

// gatedProvider parks InitiateTransfer until release is closed, reporting
// each arrival on entered.
type gatedProvider struct {
	ports.SettlementProvider
	entered chan struct{}
	release chan struct{}
}

func newGatedProvider(next ports.SettlementProvider) *gatedProvider {
	return &gatedProvider{
		SettlementProvider: next,
		entered:            make(chan struct{}, 8),
		release:            make(chan struct{}),
	}
}

func (g *gatedProvider) InitiateTransfer(ctx context.Context, req domain.TransferRequest) (*domain.SettlementResult, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.SettlementProvider.InitiateTransfer(ctx, req)
}

func (g *gatedProvider) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("transfer never reached the provider")
	}
}

// pendingProvider accepts every transfer and reports its outcome later.
type pendingProvider struct {
	ports.SettlementProvider
	ref string
}

func (p *pendingProvider) InitiateTransfer(ctx context.Context, req domain.TransferRequest) (*domain.SettlementResult, error) {
	return &domain.SettlementResult{
		ReferenceID: p.ref,
		Status:      domain.SettlementPending,
		Channel:     req.Channel,
		Amount:      req.Amount,
	}, nil
}
