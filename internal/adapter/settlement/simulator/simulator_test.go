package simulator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"payrails/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
	rolls  int
	ids    int
}

func newTestSimulator(t *testing.T, roll float64) (*Simulator, *recorder) {
	t.Helper()
	rec := &recorder{}
	sim := New(Options{
		Rand: func() float64 {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.rolls++
			return roll
		},
		Sleep: func(_ context.Context, d time.Duration) error {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.sleeps = append(rec.sleeps, d)
			return nil
		},
		NewID: func() string {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.ids++
			return fmt.Sprintf("ref-%d", rec.ids)
		},
	}, zerolog.Nop())
	return sim, rec
}

func transfer(key string, channel domain.Channel, amount string) domain.TransferRequest {
	return domain.TransferRequest{
		SenderAccountID:   "s1",
		ReceiverAccountID: "r1",
		Amount:            decimal.RequireFromString(amount),
		Currency:          "USD",
		Channel:           channel,
		IdempotencyKey:    key,
	}
}

func TestSimulator_InitiateTransfer_Completed(t *testing.T) {
	sim, rec := newTestSimulator(t, 0.99)

	res, err := sim.InitiateTransfer(context.Background(), transfer("k1", domain.ChannelFedNow, "1000"))
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementCompleted, res.Status)
	assert.Equal(t, domain.ChannelFedNow, res.Channel)
	assert.Equal(t, "ref-1", res.ReferenceID)
	assert.Nil(t, res.FailureReason)
	assert.Equal(t, []time.Duration{100 * time.Millisecond}, rec.sleeps)
}

func TestSimulator_InitiateTransfer_ForcedFailure(t *testing.T) {
	sim, _ := newTestSimulator(t, 0.0)

	res, err := sim.InitiateTransfer(context.Background(), transfer("k1", domain.ChannelACH, "50"))
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementFailed, res.Status)
	require.NotNil(t, res.FailureReason)
	assert.Equal(t, ReasonProcessingError, *res.FailureReason)
}

func TestSimulator_InitiateTransfer_OverLimit(t *testing.T) {
	sim, rec := newTestSimulator(t, 0.99)

	res, err := sim.InitiateTransfer(context.Background(), transfer("k1", domain.ChannelFedNow, "600000"))
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementFailed, res.Status)
	require.NotNil(t, res.FailureReason)
	assert.Equal(t, "Amount exceeds fednow limit of $500000", *res.FailureReason)
	assert.Empty(t, rec.sleeps, "over-limit requests skip latency")
	assert.Zero(t, rec.rolls, "over-limit requests skip the failure roll")
}

func TestSimulator_InitiateTransfer_UnknownChannel(t *testing.T) {
	sim, rec := newTestSimulator(t, 0.99)

	res, err := sim.InitiateTransfer(context.Background(), transfer("k1", domain.Channel("wire"), "10"))
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementFailed, res.Status)
	assert.Contains(t, *res.FailureReason, "wire")
	assert.Empty(t, rec.sleeps)
}

func TestSimulator_InitiateTransfer_ReplayReturnsSameResult(t *testing.T) {
	sim, rec := newTestSimulator(t, 0.0)
	ctx := context.Background()

	first, err := sim.InitiateTransfer(ctx, transfer("k1", domain.ChannelRTP, "750000"))
	require.NoError(t, err)

	// A different amount under the same key still replays the original.
	second, err := sim.InitiateTransfer(ctx, transfer("k1", domain.ChannelRTP, "2000000"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, rec.rolls)
	assert.Len(t, rec.sleeps, 1)
	assert.Equal(t, 1, rec.ids)
}

func TestSimulator_InitiateTransfer_ConcurrentSameKey(t *testing.T) {
	var settles atomic.Int32
	release := make(chan struct{})
	sim := New(Options{
		Rand: func() float64 { return 0.99 },
		Sleep: func(_ context.Context, _ time.Duration) error {
			settles.Add(1)
			<-release
			return nil
		},
	}, zerolog.Nop())

	const callers = 8
	results := make([]*domain.SettlementResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := sim.InitiateTransfer(context.Background(), transfer("same", domain.ChannelCard, "10"))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), settles.Load())
	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, results[0].ReferenceID, r.ReferenceID)
	}
}

func TestSimulator_InitiateTransfer_SleepInterrupted(t *testing.T) {
	sim := New(Options{
		Sleep: func(ctx context.Context, _ time.Duration) error { return context.Canceled },
	}, zerolog.Nop())

	_, err := sim.InitiateTransfer(context.Background(), transfer("k1", domain.ChannelFedNow, "10"))
	assert.ErrorIs(t, err, context.Canceled)

	// Nothing was cached, so a retry settles normally.
	sim.sleep = func(context.Context, time.Duration) error { return nil }
	sim.rand = func() float64 { return 0.99 }
	res, err := sim.InitiateTransfer(context.Background(), transfer("k1", domain.ChannelFedNow, "10"))
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementCompleted, res.Status)
}

func TestSimulator_GetTransferStatus(t *testing.T) {
	sim, _ := newTestSimulator(t, 0.99)
	ctx := context.Background()

	res, err := sim.InitiateTransfer(ctx, transfer("k1", domain.ChannelFedNow, "10"))
	require.NoError(t, err)

	got, err := sim.GetTransferStatus(ctx, res.ReferenceID)
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementCompleted, got.Status)

	missing, err := sim.GetTransferStatus(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementNotFound, missing.Status)
	assert.Equal(t, "nope", missing.ReferenceID)
}

func TestSimulator_GetAvailableBalance(t *testing.T) {
	sim := New(Options{}, zerolog.Nop())
	bal, err := sim.GetAvailableBalance(context.Background(), "anyone")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("100000.00")))

	custom := decimal.NewFromInt(5)
	sim = New(Options{AvailableBalance: &custom}, zerolog.Nop())
	bal, _ = sim.GetAvailableBalance(context.Background(), "anyone")
	assert.True(t, bal.Equal(custom))
}

func TestSimulator_FailureRateOption(t *testing.T) {
	rate := 0.5
	sim := New(Options{
		FailureRate: &rate,
		Rand:        func() float64 { return 0.4 },
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}, zerolog.Nop())

	res, err := sim.InitiateTransfer(context.Background(), transfer("k1", domain.ChannelFedNow, "10"))
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementFailed, res.Status)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
