package service

import (
	"context"
	"fmt"
	"time"

	"payrails/internal/core/domain"
	"payrails/internal/core/ports"
	"payrails/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultRequestExpiry = 15 * time.Minute
	expireBatchSize      = 100
)

// PaymentRequestServiceImpl implements ports.PaymentRequestService.
type PaymentRequestServiceImpl struct {
	repo      ports.PaymentRequestRepository
	directory ports.CounterpartyDirectory
	audit     ports.AuditService
	log       zerolog.Logger
	now       func() time.Time
}

// NewPaymentRequestService creates a new PaymentRequestServiceImpl.
func NewPaymentRequestService(
	repo ports.PaymentRequestRepository,
	directory ports.CounterpartyDirectory,
	audit ports.AuditService,
	log zerolog.Logger,
) *PaymentRequestServiceImpl {
	return &PaymentRequestServiceImpl{
		repo:      repo,
		directory: directory,
		audit:     audit,
		log:       log,
		now:       time.Now,
	}
}

// Create opens a pending request against an active merchant.
func (s *PaymentRequestServiceImpl) Create(ctx context.Context, req ports.CreatePaymentRequestInput) (*domain.PaymentRequest, error) {
	amount := domain.RoundMinor(req.Amount)
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if req.ExpiresIn < 0 {
		return nil, apperror.Validation("expiry must not be negative")
	}

	merchant, err := s.directory.GetByID(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if merchant == nil || !merchant.IsActive() || merchant.Kind != domain.AccountKindMerchant {
		return nil, apperror.ErrCounterpartyInactive(req.MerchantID)
	}

	ttl := req.ExpiresIn
	if ttl == 0 {
		ttl = defaultRequestExpiry
	}
	now := s.now().UTC()
	expiresAt := now.Add(ttl)

	pr := &domain.PaymentRequest{
		ID:          uuid.New(),
		MerchantID:  req.MerchantID,
		Amount:      amount,
		Currency:    currency,
		Description: req.Description,
		Status:      domain.PaymentRequestPending,
		ExpiresAt:   &expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, pr); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create payment request: %w", err))
	}

	ref := pr.ID.String()
	s.audit.Record(ctx, domain.EventPaymentRequestCreated, domain.SourcePaymentReqs, &ref, map[string]any{
		"merchant_id": pr.MerchantID,
		"amount":      pr.Amount,
		"expires_at":  expiresAt,
	})
	return pr, nil
}

// Get fetches a payment request by id.
func (s *PaymentRequestServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error) {
	pr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if pr == nil {
		return nil, apperror.ErrNotFound("payment request")
	}
	return pr, nil
}

// ExpireOverdue flips every pending request past its deadline to expired and
// returns how many were changed.
func (s *PaymentRequestServiceImpl) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	for {
		batch, err := s.repo.ListOverdue(ctx, now, expireBatchSize)
		if err != nil {
			return expired, apperror.ErrDatabaseError(fmt.Errorf("list overdue: %w", err))
		}

		changed := 0
		for i := range batch {
			ok, err := s.repo.MarkExpired(ctx, batch[i].ID, now)
			if err != nil {
				return expired, apperror.ErrDatabaseError(fmt.Errorf("expire %s: %w", batch[i].ID, err))
			}
			if !ok {
				continue
			}
			changed++
			ref := batch[i].ID.String()
			s.audit.Record(ctx, domain.EventPaymentRequestExpired, domain.SourcePaymentReqs, &ref, map[string]any{
				"merchant_id": batch[i].MerchantID,
			})
		}
		expired += changed

		// A short batch is the last one. A batch where nothing changed means
		// the rest were taken by concurrent payers; stop instead of spinning.
		if len(batch) < expireBatchSize || changed == 0 {
			return expired, nil
		}
	}
}

// RunExpirySweeper calls ExpireOverdue every interval until ctx is done.
func (s *PaymentRequestServiceImpl) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", interval).Msg("payment request expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("payment request expiry sweeper stopped")
			return
		case <-ticker.C:
			n, err := s.ExpireOverdue(ctx, s.now().UTC())
			if err != nil {
				s.log.Error().Err(err).Msg("expiry sweep failed")
				continue
			}
			if n > 0 {
				s.log.Info().Int("expired", n).Msg("expired overdue payment requests")
			}
		}
	}
}
