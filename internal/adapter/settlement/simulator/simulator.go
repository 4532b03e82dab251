// Package simulator is an in-process settlement provider with per-channel
// limits, latency and a configurable failure rate.
package simulator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"payrails/internal/core/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultFailureRate is the probability a within-limit transfer fails.
	DefaultFailureRate = 0.05

	// ReasonProcessingError is the failure reason of a randomly failed transfer.
	ReasonProcessingError = "Bank processing error (simulated)"
	reasonNotFound        = "Transfer not found"
)

// DefaultLatency is the simulated processing delay per channel.
var DefaultLatency = map[domain.Channel]time.Duration{
	domain.ChannelFedNow: 100 * time.Millisecond,
	domain.ChannelRTP:    100 * time.Millisecond,
	domain.ChannelACH:    500 * time.Millisecond,
	domain.ChannelCard:   200 * time.Millisecond,
}

// DefaultAvailableBalance is what GetAvailableBalance reports for every account.
var DefaultAvailableBalance = decimal.RequireFromString("100000.00")

// Options configures a Simulator. Zero values take the defaults above.
type Options struct {
	FailureRate      *float64
	Latency          map[domain.Channel]time.Duration
	Limits           map[domain.Channel]decimal.Decimal
	AvailableBalance *decimal.Decimal

	// Rand returns a float in [0, 1). Tests pin it to force an outcome.
	Rand func() float64
	// Sleep waits for the simulated latency.
	Sleep func(ctx context.Context, d time.Duration) error
	// NewID mints provider reference ids.
	NewID func() string
}

// Simulator implements ports.SettlementProvider.
type Simulator struct {
	failureRate float64
	latency     map[domain.Channel]time.Duration
	limits      map[domain.Channel]decimal.Decimal
	balance     decimal.Decimal
	rand        func() float64
	sleep       func(ctx context.Context, d time.Duration) error
	newID       func() string
	log         zerolog.Logger

	mu        sync.Mutex
	byKey     map[string]*domain.SettlementResult
	transfers map[string]*domain.SettlementResult
	inflight  singleflight.Group
}

// New creates a Simulator with its own result cache.
func New(opts Options, log zerolog.Logger) *Simulator {
	s := &Simulator{
		failureRate: DefaultFailureRate,
		latency:     DefaultLatency,
		limits:      domain.DefaultChannelLimits,
		balance:     DefaultAvailableBalance,
		rand:        rand.Float64,
		sleep:       sleepContext,
		newID:       func() string { return uuid.NewString() },
		log:         log,
		byKey:       make(map[string]*domain.SettlementResult),
		transfers:   make(map[string]*domain.SettlementResult),
	}
	if opts.FailureRate != nil {
		s.failureRate = *opts.FailureRate
	}
	if opts.Latency != nil {
		s.latency = opts.Latency
	}
	if opts.Limits != nil {
		s.limits = opts.Limits
	}
	if opts.AvailableBalance != nil {
		s.balance = *opts.AvailableBalance
	}
	if opts.Rand != nil {
		s.rand = opts.Rand
	}
	if opts.Sleep != nil {
		s.sleep = opts.Sleep
	}
	if opts.NewID != nil {
		s.newID = opts.NewID
	}
	return s
}

// InitiateTransfer settles req once per idempotency key. Replays, including
// concurrent ones, get the first call's result without re-running limit
// checks, latency or the failure roll.
func (s *Simulator) InitiateTransfer(ctx context.Context, req domain.TransferRequest) (*domain.SettlementResult, error) {
	if cached := s.cached(req.IdempotencyKey); cached != nil {
		return cached, nil
	}

	v, err, _ := s.inflight.Do(req.IdempotencyKey, func() (any, error) {
		if cached := s.cached(req.IdempotencyKey); cached != nil {
			return cached, nil
		}
		return s.settle(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*domain.SettlementResult)
	return &res, nil
}

func (s *Simulator) settle(ctx context.Context, req domain.TransferRequest) (*domain.SettlementResult, error) {
	limit, known := s.limits[req.Channel]
	if !known || req.Amount.GreaterThan(limit) {
		reason := fmt.Sprintf("Amount exceeds %s limit of $%s", req.Channel, limit.String())
		if !known {
			reason = fmt.Sprintf("Unsupported channel %s", req.Channel)
		}
		res := &domain.SettlementResult{
			ReferenceID:   s.newID(),
			Status:        domain.SettlementFailed,
			Channel:       req.Channel,
			Amount:        req.Amount,
			FailureReason: &reason,
		}
		s.store(req.IdempotencyKey, res, false)
		s.log.Info().Str("channel", string(req.Channel)).Str("amount", req.Amount.String()).Msg("simulator: transfer rejected over limit")
		return res, nil
	}

	if err := s.sleep(ctx, s.latency[req.Channel]); err != nil {
		return nil, fmt.Errorf("simulated settlement interrupted: %w", err)
	}

	res := &domain.SettlementResult{
		ReferenceID: s.newID(),
		Status:      domain.SettlementCompleted,
		Channel:     req.Channel,
		Amount:      req.Amount,
	}
	if s.rand() < s.failureRate {
		reason := ReasonProcessingError
		res.Status = domain.SettlementFailed
		res.FailureReason = &reason
	}
	s.store(req.IdempotencyKey, res, true)

	s.log.Debug().
		Str("reference_id", res.ReferenceID).
		Str("channel", string(req.Channel)).
		Str("status", string(res.Status)).
		Msg("simulator: transfer settled")
	return res, nil
}

// GetTransferStatus looks up a transfer by provider reference.
func (s *Simulator) GetTransferStatus(_ context.Context, referenceID string) (*domain.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.transfers[referenceID]; ok {
		cp := *res
		return &cp, nil
	}
	reason := reasonNotFound
	return &domain.SettlementResult{
		ReferenceID:   referenceID,
		Status:        domain.SettlementNotFound,
		Channel:       "unknown",
		Amount:        decimal.Zero,
		FailureReason: &reason,
	}, nil
}

// GetAvailableBalance returns the configured constant.
func (s *Simulator) GetAvailableBalance(_ context.Context, _ string) (decimal.Decimal, error) {
	return s.balance, nil
}

func (s *Simulator) cached(key string) *domain.SettlementResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.byKey[key]; ok {
		cp := *res
		return &cp
	}
	return nil
}

func (s *Simulator) store(key string, res *domain.SettlementResult, queryable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[key] = res
	if queryable {
		s.transfers[res.ReferenceID] = res
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
