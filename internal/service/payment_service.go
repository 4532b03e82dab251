package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"payrails/internal/core/domain"
	"payrails/internal/core/ports"
	"payrails/internal/core/rail"
	"payrails/pkg/apperror"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultRaceWait       = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour

	providerErrorPrefix     = "settlement provider error: "
	reasonFundsUnavailable  = "insufficient funds at settlement"
	reasonRequestNotPayable = "payment request no longer payable"
)

var errNotSettled = errors.New("payment not yet settled")

// PaymentDeps are the collaborators of the orchestrator. Cache and Notifier may be nil.
type PaymentDeps struct {
	Payments   ports.PaymentRepository
	Requests   ports.PaymentRequestRepository
	Ledger     ports.LedgerService
	Directory  ports.CounterpartyDirectory
	Channels   ports.ChannelConfigSource
	Provider   ports.SettlementProvider
	Cache      ports.IdempotencyCache
	Transactor ports.DBTransactor
	Audit      ports.AuditService
	Notifier   ports.Notifier
	Selector   *rail.Selector
}

// PaymentOptions tunes the orchestrator.
type PaymentOptions struct {
	// RaceWait bounds how long a duplicate request waits for the original to settle.
	RaceWait time.Duration
	// IdempotencyTTL is how long terminal intents stay in the cache.
	IdempotencyTTL time.Duration
	// DiscountRate applies to wallet payments settled on DiscountChannels. Zero disables it.
	DiscountRate     decimal.Decimal
	DiscountChannels []domain.Channel
}

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	payments   ports.PaymentRepository
	requests   ports.PaymentRequestRepository
	ledger     ports.LedgerService
	directory  ports.CounterpartyDirectory
	channels   ports.ChannelConfigSource
	provider   ports.SettlementProvider
	cache      ports.IdempotencyCache
	transactor ports.DBTransactor
	audit      ports.AuditService
	notifier   ports.Notifier
	selector   *rail.Selector
	opts       PaymentOptions
	log        zerolog.Logger
	now        func() time.Time
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(deps PaymentDeps, opts PaymentOptions, log zerolog.Logger) *PaymentServiceImpl {
	if opts.RaceWait <= 0 {
		opts.RaceWait = defaultRaceWait
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}
	if deps.Selector == nil {
		deps.Selector = rail.NewSelector(nil)
	}
	return &PaymentServiceImpl{
		payments:   deps.Payments,
		requests:   deps.Requests,
		ledger:     deps.Ledger,
		directory:  deps.Directory,
		channels:   deps.Channels,
		provider:   deps.Provider,
		cache:      deps.Cache,
		transactor: deps.Transactor,
		audit:      deps.Audit,
		notifier:   deps.Notifier,
		selector:   deps.Selector,
		opts:       opts,
		log:        log,
		now:        time.Now,
	}
}

// CreatePayment moves funds between two accounts exactly once per idempotency key.
func (s *PaymentServiceImpl) CreatePayment(ctx context.Context, req ports.CreatePaymentInput) (*domain.PaymentIntent, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return nil, apperror.Validation("idempotency key is required")
	}

	existing, err := s.lookup(ctx, key)
	if err != nil || existing != nil {
		return existing, err
	}

	amount := domain.RoundMinor(req.Amount)
	if !amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if req.SenderID == "" || req.ReceiverID == "" {
		return nil, apperror.Validation("sender and receiver are required")
	}
	if req.SenderID == req.ReceiverID {
		return nil, apperror.Validation("sender and receiver must differ")
	}

	if _, err := s.activeAccount(ctx, req.SenderID, ""); err != nil {
		return nil, err
	}
	if _, err := s.activeAccount(ctx, req.ReceiverID, ""); err != nil {
		return nil, err
	}

	channel, err := s.selectChannel(ctx, amount, req.PreferredChannel)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	intent := &domain.PaymentIntent{
		ID:               uuid.New(),
		Kind:             domain.PaymentKindTransfer,
		SenderID:         req.SenderID,
		ReceiverID:       req.ReceiverID,
		Amount:           amount,
		SettledAmount:    amount,
		Currency:         currency,
		IdempotencyKey:   key,
		PreferredChannel: req.PreferredChannel,
		Channel:          channel,
		Status:           domain.PaymentStatusProcessing,
		Memo:             req.Memo,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return s.execute(ctx, intent)
}

// PayRequest settles a merchant's payment request from a consumer wallet.
func (s *PaymentServiceImpl) PayRequest(ctx context.Context, req ports.PayRequestInput) (*domain.PaymentIntent, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return nil, apperror.Validation("idempotency key is required")
	}

	existing, err := s.lookup(ctx, key)
	if err != nil || existing != nil {
		return existing, err
	}

	pr, err := s.requests.GetByID(ctx, req.PaymentRequestID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if pr == nil {
		return nil, apperror.ErrNotFound("payment request")
	}

	now := s.now().UTC()
	if pr.Status != domain.PaymentRequestPending {
		return nil, apperror.ErrPaymentRequestNotPayable(string(pr.Status))
	}
	if pr.IsExpired(now) {
		s.expireRequest(ctx, pr, now)
		return nil, apperror.ErrPaymentRequestExpired()
	}
	if req.WalletID == pr.MerchantID {
		return nil, apperror.Validation("wallet and merchant must differ")
	}

	if _, err := s.activeAccount(ctx, req.WalletID, domain.AccountKindWallet); err != nil {
		return nil, err
	}
	if _, err := s.activeAccount(ctx, pr.MerchantID, ""); err != nil {
		return nil, err
	}

	channel, err := s.selectChannel(ctx, pr.Amount, req.PreferredChannel)
	if err != nil {
		return nil, err
	}

	prID := pr.ID
	intent := &domain.PaymentIntent{
		ID:               uuid.New(),
		Kind:             domain.PaymentKindWallet,
		SenderID:         req.WalletID,
		ReceiverID:       pr.MerchantID,
		Amount:           pr.Amount,
		SettledAmount:    pr.Amount,
		Currency:         pr.Currency,
		IdempotencyKey:   key,
		PreferredChannel: req.PreferredChannel,
		Channel:          channel,
		Status:           domain.PaymentStatusProcessing,
		PaymentRequestID: &prID,
		Memo:             pr.Description,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return s.execute(ctx, intent)
}

// GetPayment fetches an intent by id.
func (s *PaymentServiceImpl) GetPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if p == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	return p, nil
}

// ListPayments returns intents newest first.
func (s *PaymentServiceImpl) ListPayments(ctx context.Context, params ports.PaymentListParams) ([]domain.PaymentIntent, int64, error) {
	params.Page, params.PageSize = normalizePage(params.Page, params.PageSize)
	payments, total, err := s.payments.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(err)
	}
	return payments, total, nil
}

// CancelPayment moves a non-terminal intent to cancelled.
func (s *PaymentServiceImpl) CancelPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	p, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanCancel() {
		return nil, apperror.ErrIllegalTransition("cancel", string(p.Status))
	}

	now := s.now().UTC()
	if err := s.payments.Cancel(ctx, id, now); err != nil {
		if !errors.Is(err, domain.ErrStaleTransition) {
			return nil, apperror.ErrDatabaseError(err)
		}
		current, err := s.GetPayment(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperror.ErrIllegalTransition("cancel", string(current.Status))
	}

	p.Status = domain.PaymentStatusCancelled
	p.UpdatedAt = now

	ref := p.ID.String()
	s.audit.Record(ctx, domain.EventPaymentCancelled, domain.SourceOrchestrator, &ref, map[string]any{
		"idempotency_key": p.IdempotencyKey,
	})
	s.cacheTerminal(ctx, p)

	s.log.Info().Str("payment_id", ref).Msg("payment cancelled")
	return p, nil
}

// ReconcilePayment finishes an intent left in processing, for example after a
// failed commit. The provider is asked again under the same idempotency key,
// which replays the original result instead of moving funds twice.
func (s *PaymentServiceImpl) ReconcilePayment(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	p, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PaymentStatusProcessing {
		return p, nil
	}

	var result *domain.SettlementResult
	if p.ReferenceID != nil {
		result, err = s.provider.GetTransferStatus(ctx, *p.ReferenceID)
	} else {
		result, err = s.provider.InitiateTransfer(context.WithoutCancel(ctx), transferRequest(p))
	}
	if err != nil {
		return nil, apperror.ErrProviderUnavailable(err)
	}
	if !result.IsTerminal() {
		s.log.Info().Str("payment_id", p.ID.String()).Str("provider_status", string(result.Status)).
			Msg("reconcile: provider has no final result yet")
		return p, nil
	}
	return s.settle(ctx, p, result)
}

// HandleSettlementCallback applies an outcome the provider reports after the
// initiating call returned. Callbacks for intents no longer processing,
// including ones cancelled meanwhile, are acknowledged without effect.
func (s *PaymentServiceImpl) HandleSettlementCallback(ctx context.Context, cb ports.SettlementCallback) (*domain.PaymentIntent, bool, error) {
	refID := strings.TrimSpace(cb.ReferenceID)
	if refID == "" {
		return nil, false, apperror.Validation("reference_id is required")
	}
	result := &domain.SettlementResult{
		ReferenceID:   refID,
		Status:        cb.Status,
		FailureReason: cb.FailureReason,
	}
	if !result.IsTerminal() {
		return nil, false, apperror.Validation("status must be completed or failed")
	}

	p, err := s.payments.GetByReferenceID(ctx, refID)
	if err != nil {
		return nil, false, apperror.ErrDatabaseError(fmt.Errorf("reference lookup: %w", err))
	}
	if p == nil {
		return nil, false, apperror.ErrNotFound("payment")
	}

	ref := p.ID.String()
	s.audit.Record(ctx, domain.EventSettlementCallback+"."+string(cb.Status), domain.SourceWebhook, &ref, map[string]any{
		"reference_id":   refID,
		"failure_reason": cb.FailureReason,
		"intent_status":  p.Status,
	})
	if p.Status != domain.PaymentStatusProcessing {
		s.log.Info().Str("payment_id", ref).Str("status", string(p.Status)).
			Msg("settlement callback for settled intent ignored")
		return p, false, nil
	}

	result.Channel = p.Channel
	result.Amount = p.Amount
	return s.applySettlement(ctx, p, result)
}

// execute persists the intent, calls the provider and records the outcome.
func (s *PaymentServiceImpl) execute(ctx context.Context, intent *domain.PaymentIntent) (*domain.PaymentIntent, error) {
	if err := s.admit(ctx, intent); err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateIdempotencyKey):
			s.log.Info().Str("idempotency_key", intent.IdempotencyKey).Msg("lost idempotency race, waiting for winner")
			return s.awaitSettled(ctx, intent.IdempotencyKey)
		case errors.Is(err, domain.ErrRequestInFlight):
			return s.requestTaken(ctx, intent)
		}
		if _, ok := apperror.As(err); ok {
			return nil, err
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create payment: %w", err))
	}

	ref := intent.ID.String()
	s.audit.Record(ctx, domain.EventPaymentInitiated, domain.SourceOrchestrator, &ref, map[string]any{
		"kind":     intent.Kind,
		"channel":  intent.Channel,
		"amount":   intent.Amount,
		"currency": intent.Currency,
	})

	// The intent is durable now: the caller going away must not strand it.
	ctx = context.WithoutCancel(ctx)

	result, err := s.provider.InitiateTransfer(ctx, transferRequest(intent))
	if err != nil {
		s.log.Error().Err(err).Str("payment_id", ref).Msg("settlement provider call failed")
		result = failedResult(intent, providerErrorPrefix+err.Error())
	}
	if !result.IsTerminal() {
		return s.awaitCallback(ctx, intent, result)
	}
	return s.settle(ctx, intent, result)
}

// admit stores the processing intent. A wallet intent is admitted only if the
// wallet's balance, less the wallet intents already in flight, covers it; the
// wallet's ledger lock is held across the insert so concurrent admissions
// see each other.
func (s *PaymentServiceImpl) admit(ctx context.Context, intent *domain.PaymentIntent) error {
	if intent.Kind != domain.PaymentKindWallet {
		return s.payments.Create(ctx, intent)
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reservation: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	balance, err := s.ledger.LockBalance(ctx, tx, intent.SenderID)
	if err != nil {
		return err
	}
	reserved, err := s.payments.InFlightDebits(ctx, intent.SenderID)
	if err != nil {
		return fmt.Errorf("in-flight debits: %w", err)
	}
	if balance.Sub(reserved).LessThan(intent.Amount) {
		s.log.Info().
			Str("wallet_id", intent.SenderID).
			Str("balance", balance.StringFixed(domain.MinorUnits)).
			Str("reserved", reserved.StringFixed(domain.MinorUnits)).
			Msg("wallet payment refused, insufficient available funds")
		return apperror.ErrInsufficientFunds()
	}
	if err := s.payments.Create(ctx, intent); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		s.log.Warn().Err(err).Str("payment_id", intent.ID.String()).Msg("reservation lock release failed")
	}
	return nil
}

// requestTaken answers a pay attempt that found its request already held by
// another intent. A retry of the holder's own key replays the holder.
func (s *PaymentServiceImpl) requestTaken(ctx context.Context, intent *domain.PaymentIntent) (*domain.PaymentIntent, error) {
	existing, err := s.payments.GetByIdempotencyKey(ctx, intent.IdempotencyKey)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("idempotency lookup: %w", err))
	}
	if existing != nil {
		return s.awaitSettled(ctx, intent.IdempotencyKey)
	}
	s.log.Info().Str("payment_request_id", intent.PaymentRequestID.String()).
		Msg("payment request already being paid by another intent")
	return nil, apperror.ErrPaymentRequestNotPayable("already being paid")
}

// awaitCallback keeps an intent in processing while the provider finishes the
// transfer. The reference lets the settlement callback or a reconcile find it.
func (s *PaymentServiceImpl) awaitCallback(ctx context.Context, intent *domain.PaymentIntent, result *domain.SettlementResult) (*domain.PaymentIntent, error) {
	ref := intent.ID.String()
	if result.ReferenceID != "" {
		now := s.now().UTC()
		if err := s.payments.AttachReference(ctx, intent.ID, result.ReferenceID, now); err != nil {
			if !errors.Is(err, domain.ErrStaleTransition) {
				return nil, apperror.ErrDatabaseError(fmt.Errorf("attach reference: %w", err))
			}
			return s.GetPayment(ctx, intent.ID)
		}
		intent.ReferenceID = &result.ReferenceID
		intent.UpdatedAt = now
	}
	s.log.Info().Str("payment_id", ref).Str("provider_status", string(result.Status)).
		Msg("payment accepted by provider, awaiting settlement")
	return intent, nil
}

// settle applies a terminal provider result: status transition, ledger
// postings and payment request completion commit together or not at all.
func (s *PaymentServiceImpl) settle(ctx context.Context, intent *domain.PaymentIntent, result *domain.SettlementResult) (*domain.PaymentIntent, error) {
	p, _, err := s.applySettlement(ctx, intent, result)
	return p, err
}

// applySettlement is settle that also reports whether this call moved the
// intent out of processing.
func (s *PaymentServiceImpl) applySettlement(ctx context.Context, intent *domain.PaymentIntent, result *domain.SettlementResult) (*domain.PaymentIntent, bool, error) {
	ctx = context.WithoutCancel(ctx)
	now := s.now().UTC()
	ref := intent.ID.String()

	st := domain.Settlement{
		Status:        result.PaymentStatus(),
		ReferenceID:   result.ReferenceID,
		FailureReason: result.FailureReason,
		SettledAmount: intent.Amount,
		At:            now,
	}
	if st.Status == domain.PaymentStatusCompleted {
		st.SettledAmount = s.settledAmount(intent)
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, false, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.payments.ApplySettlement(ctx, tx, intent.ID, st); err != nil {
		if !errors.Is(err, domain.ErrStaleTransition) {
			return nil, false, apperror.ErrDatabaseError(fmt.Errorf("apply settlement: %w", err))
		}
		_ = tx.Rollback(ctx)
		p, err := s.discardSettlement(ctx, intent, st)
		return p, false, err
	}

	if st.Status == domain.PaymentStatusCompleted {
		requireFunds := intent.Kind == domain.PaymentKindWallet
		if _, err := s.ledger.PostTransfer(ctx, tx, intent.SenderID, intent.ReceiverID, st.SettledAmount, intent.ID, requireFunds); err != nil {
			if !errors.Is(err, domain.ErrInsufficientFunds) {
				return nil, false, apperror.ErrDatabaseError(fmt.Errorf("post ledger entries: %w", err))
			}
			return s.refuseSettlement(ctx, tx, intent, result, reasonFundsUnavailable)
		}
		if intent.PaymentRequestID != nil {
			err := s.requests.MarkCompleted(ctx, tx, *intent.PaymentRequestID, now)
			if err != nil && !errors.Is(err, domain.ErrStaleTransition) {
				return nil, false, apperror.ErrDatabaseError(fmt.Errorf("complete payment request: %w", err))
			}
			if err != nil {
				return s.refuseSettlement(ctx, tx, intent, result, reasonRequestNotPayable)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		s.log.Error().Err(err).Str("payment_id", ref).Msg("settlement commit failed, intent left processing")
		return nil, false, apperror.ErrDatabaseError(fmt.Errorf("commit settlement: %w", err))
	}

	intent.Status = st.Status
	if r := st.Reference(); r != nil {
		intent.ReferenceID = r
	}
	intent.FailureReason = st.FailureReason
	intent.SettledAmount = st.SettledAmount
	intent.UpdatedAt = now

	if intent.Status == domain.PaymentStatusCompleted {
		s.audit.Record(ctx, domain.EventPaymentCompleted, domain.SourceOrchestrator, &ref, map[string]any{
			"reference_id":   intent.ReferenceID,
			"channel":        intent.Channel,
			"settled_amount": st.SettledAmount,
		})
	} else {
		reason := ""
		if st.FailureReason != nil {
			reason = *st.FailureReason
		}
		s.audit.Record(ctx, domain.EventPaymentFailed, domain.SourceOrchestrator, &ref, map[string]any{
			"reference_id": intent.ReferenceID,
			"reason":       reason,
		})
	}

	s.cacheTerminal(ctx, intent)
	s.notify(ctx, intent)

	s.log.Info().
		Str("payment_id", ref).
		Str("channel", string(intent.Channel)).
		Str("status", string(intent.Status)).
		Str("settled_amount", intent.SettledAmount.StringFixed(domain.MinorUnits)).
		Msg("payment settled")
	return intent, true, nil
}

// refuseSettlement rolls back a completed settlement that the ledger or the
// payment request cannot honor and fails the intent instead.
func (s *PaymentServiceImpl) refuseSettlement(ctx context.Context, tx pgx.Tx, intent *domain.PaymentIntent, result *domain.SettlementResult, reason string) (*domain.PaymentIntent, bool, error) {
	if err := tx.Rollback(ctx); err != nil {
		return nil, false, apperror.ErrDatabaseError(fmt.Errorf("rollback settlement: %w", err))
	}
	s.log.Warn().Str("payment_id", intent.ID.String()).Str("reason", reason).
		Msg("completed settlement refused, failing intent")
	failed := failedResult(intent, reason)
	failed.ReferenceID = result.ReferenceID
	return s.applySettlement(ctx, intent, failed)
}

func (s *PaymentServiceImpl) discardSettlement(ctx context.Context, intent *domain.PaymentIntent, st domain.Settlement) (*domain.PaymentIntent, error) {
	ref := intent.ID.String()
	s.audit.Record(ctx, domain.EventSettlementDiscarded, domain.SourceOrchestrator, &ref, map[string]any{
		"reference_id":    st.ReferenceID,
		"provider_status": st.Status,
	})
	s.log.Warn().Str("payment_id", ref).Str("provider_status", string(st.Status)).
		Msg("settlement discarded, intent already terminal")

	current, err := s.GetPayment(ctx, intent.ID)
	if err != nil {
		return nil, err
	}
	return current, nil
}

// lookup returns the intent already recorded under key, waiting for it to
// settle if it is still in flight. A nil intent means the key is unused.
func (s *PaymentServiceImpl) lookup(ctx context.Context, key string) (*domain.PaymentIntent, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("idempotency cache read failed, falling through to DB")
		}
		if cached != nil {
			var p domain.PaymentIntent
			if err := json.Unmarshal(cached, &p); err == nil {
				return &p, nil
			}
			s.log.Warn().Str("key", key).Msg("ignoring undecodable cached intent")
		}
	}

	p, err := s.payments.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("idempotency lookup: %w", err))
	}
	if p == nil {
		return nil, nil
	}
	if p.IsTerminal() {
		s.cacheTerminal(ctx, p)
		return p, nil
	}
	return s.awaitSettled(ctx, key)
}

// awaitSettled polls with exponential backoff until the intent recorded under
// key is terminal or RaceWait elapses, then returns its latest state.
func (s *PaymentServiceImpl) awaitSettled(ctx context.Context, key string) (*domain.PaymentIntent, error) {
	var last *domain.PaymentIntent
	op := func() (*domain.PaymentIntent, error) {
		p, err := s.payments.GetByIdempotencyKey(ctx, key)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if p != nil {
			last = p
		}
		if p == nil || !p.IsTerminal() {
			return nil, errNotSettled
		}
		return p, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 25 * time.Millisecond
	eb.MaxInterval = time.Second

	p, err := backoff.Retry(ctx, op, backoff.WithBackOff(eb), backoff.WithMaxElapsedTime(s.opts.RaceWait))
	if err == nil {
		return p, nil
	}
	if errors.Is(err, errNotSettled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if last != nil {
			return last, nil
		}
		return nil, apperror.ErrNotFound("payment")
	}
	return nil, apperror.ErrDatabaseError(fmt.Errorf("await payment: %w", err))
}

func (s *PaymentServiceImpl) activeAccount(ctx context.Context, id string, kind domain.AccountKind) (*domain.Account, error) {
	acct, err := s.directory.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("counterparty lookup: %w", err))
	}
	if acct == nil || !acct.IsActive() || (kind != "" && acct.Kind != kind) {
		return nil, apperror.ErrCounterpartyInactive(id)
	}
	return acct, nil
}

func (s *PaymentServiceImpl) selectChannel(ctx context.Context, amount decimal.Decimal, preferred *domain.Channel) (domain.Channel, error) {
	cfg, err := s.channels.GetActive(ctx)
	if err != nil {
		return "", apperror.ErrDatabaseError(fmt.Errorf("channel config: %w", err))
	}
	if cfg == nil || !cfg.Active {
		return "", apperror.ErrNoActiveChannelConfig()
	}
	ch, ok := s.selector.Select(amount, cfg, preferred)
	if !ok {
		return "", apperror.ErrNoEligibleChannel()
	}
	return ch, nil
}

func (s *PaymentServiceImpl) settledAmount(intent *domain.PaymentIntent) decimal.Decimal {
	if intent.Kind != domain.PaymentKindWallet || !s.opts.DiscountRate.IsPositive() {
		return intent.Amount
	}
	if !slices.Contains(s.opts.DiscountChannels, intent.Channel) {
		return intent.Amount
	}
	return domain.RoundMinor(intent.Amount.Mul(s.opts.DiscountRate))
}

func (s *PaymentServiceImpl) expireRequest(ctx context.Context, pr *domain.PaymentRequest, now time.Time) {
	ok, err := s.requests.MarkExpired(ctx, pr.ID, now)
	if err != nil {
		s.log.Warn().Err(err).Str("payment_request_id", pr.ID.String()).Msg("failed to expire payment request")
		return
	}
	if ok {
		ref := pr.ID.String()
		s.audit.Record(ctx, domain.EventPaymentRequestExpired, domain.SourcePaymentReqs, &ref, map[string]any{
			"merchant_id": pr.MerchantID,
		})
	}
}

// cacheTerminal stores a settled intent for the fast replay path (best effort).
func (s *PaymentServiceImpl) cacheTerminal(ctx context.Context, p *domain.PaymentIntent) {
	if s.cache == nil || !p.IsTerminal() {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to marshal intent for cache")
		return
	}
	if err := s.cache.Set(ctx, p.IdempotencyKey, data, s.opts.IdempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", p.IdempotencyKey).Msg("failed to cache intent in redis")
	}
}

func (s *PaymentServiceImpl) notify(ctx context.Context, p *domain.PaymentIntent) {
	if s.notifier == nil {
		return
	}
	desc := "Payment " + string(p.Status)
	if p.FailureReason != nil {
		desc += ": " + *p.FailureReason
	}
	for _, acct := range []string{p.SenderID, p.ReceiverID} {
		n := domain.Notification{
			PaymentID:   p.ID,
			AccountID:   acct,
			Amount:      p.SettledAmount,
			Currency:    p.Currency,
			Channel:     p.Channel,
			Status:      p.Status,
			Description: desc,
			Timestamp:   p.UpdatedAt.Unix(),
		}
		if err := s.notifier.Notify(ctx, n); err != nil {
			s.log.Warn().Err(err).Str("payment_id", p.ID.String()).Str("account_id", acct).Msg("notification not sent")
		}
	}
}

func failedResult(p *domain.PaymentIntent, reason string) *domain.SettlementResult {
	return &domain.SettlementResult{
		Status:        domain.SettlementFailed,
		Channel:       p.Channel,
		Amount:        p.Amount,
		FailureReason: &reason,
	}
}

func transferRequest(p *domain.PaymentIntent) domain.TransferRequest {
	return domain.TransferRequest{
		SenderAccountID:   p.SenderID,
		ReceiverAccountID: p.ReceiverID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Channel:           p.Channel,
		IdempotencyKey:    p.IdempotencyKey,
		Memo:              p.Memo,
	}
}

func normalizeCurrency(c string) (string, error) {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return domain.DefaultCurrency, nil
	}
	if c != domain.DefaultCurrency {
		return "", apperror.Validation(fmt.Sprintf("unsupported currency %s", c))
	}
	return c, nil
}
