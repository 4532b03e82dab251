package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"payrails/internal/core/domain"
	"payrails/internal/core/ports"
	"payrails/internal/core/ports/mocks"
	"payrails/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPaymentRequest_CreateDefaults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.requests.now = func() time.Time { return now }

	pr, err := h.requests.Create(ctx, ports.CreatePaymentRequestInput{MerchantID: shop, Amount: domain.MustAmount("12.345")})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentRequestPending, pr.Status)
	assert.Equal(t, "USD", pr.Currency)
	assert.Equal(t, "12.35", pr.Amount.StringFixed(2))
	require.NotNil(t, pr.ExpiresAt)
	assert.Equal(t, now.Add(15*time.Minute), *pr.ExpiresAt)
	assert.Equal(t, []string{domain.EventPaymentRequestCreated}, h.eventTypes(t, pr.ID.String()))
}

func TestPaymentRequest_CreateRejections(t *testing.T) {
	tests := []struct {
		name string
		in   ports.CreatePaymentRequestInput
		code string
	}{
		{"zero amount", ports.CreatePaymentRequestInput{MerchantID: shop, Amount: domain.MustAmount("0")}, "PAY_002"},
		{"euro", ports.CreatePaymentRequestInput{MerchantID: shop, Amount: domain.MustAmount("1"), Currency: "EUR"}, "PAY_002"},
		{"negative expiry", ports.CreatePaymentRequestInput{MerchantID: shop, Amount: domain.MustAmount("1"), ExpiresIn: -time.Second}, "PAY_002"},
		{"suspended merchant", ports.CreatePaymentRequestInput{MerchantID: dormant, Amount: domain.MustAmount("1")}, "PAY_008"},
		{"wallet as merchant", ports.CreatePaymentRequestInput{MerchantID: alice, Amount: domain.MustAmount("1")}, "PAY_008"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.requests.Create(context.Background(), tt.in)
			assert.Equal(t, tt.code, apperror.Code(err))
		})
	}
}

func TestPaymentRequest_GetUnknown(t *testing.T) {
	h := newHarness(t)
	_, err := h.requests.Get(context.Background(), uuid.New())
	assert.Equal(t, "PAY_004", apperror.Code(err))
}

func TestPaymentRequest_ExpireOverdue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	short, err := h.requests.Create(ctx, ports.CreatePaymentRequestInput{MerchantID: shop, Amount: domain.MustAmount("1"), ExpiresIn: time.Minute})
	require.NoError(t, err)
	long, err := h.requests.Create(ctx, ports.CreatePaymentRequestInput{MerchantID: shop, Amount: domain.MustAmount("1"), ExpiresIn: time.Hour})
	require.NoError(t, err)

	n, err := h.requests.ExpireOverdue(ctx, time.Now().Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.requests.Get(ctx, short.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRequestExpired, got.Status)
	got, err = h.requests.Get(ctx, long.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRequestPending, got.Status)

	// A second sweep finds nothing left to do.
	n, err = h.requests.ExpireOverdue(ctx, time.Now().Add(10*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPaymentRequest_ExpireOverdueSkipsRaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockPaymentRequestRepository(ctrl)
	audit := mocks.NewMockAuditService(ctrl)
	svc := NewPaymentRequestService(repo, mocks.NewMockCounterpartyDirectory(ctrl), audit, newTestLogger())
	now := time.Now()

	won, lost := uuid.New(), uuid.New()
	repo.EXPECT().ListOverdue(gomock.Any(), now, expireBatchSize).Return([]domain.PaymentRequest{{ID: won}, {ID: lost}}, nil)
	repo.EXPECT().MarkExpired(gomock.Any(), won, now).Return(true, nil)
	repo.EXPECT().MarkExpired(gomock.Any(), lost, now).Return(false, nil)
	audit.EXPECT().Record(gomock.Any(), domain.EventPaymentRequestExpired, domain.SourcePaymentReqs, gomock.Any(), gomock.Any()).Times(1)

	n, err := svc.ExpireOverdue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPaymentRequest_ExpireOverdueDBError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockPaymentRequestRepository(ctrl)
	svc := NewPaymentRequestService(repo, mocks.NewMockCounterpartyDirectory(ctrl), mocks.NewMockAuditService(ctrl), newTestLogger())

	repo.EXPECT().ListOverdue(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))

	_, err := svc.ExpireOverdue(context.Background(), time.Now())
	assert.Equal(t, "SYS_001", apperror.Code(err))
}

func TestPaymentRequest_SweeperStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.requests.RunExpirySweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
