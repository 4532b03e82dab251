package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"payrails/api"
	"payrails/config"
	httpHandler "payrails/internal/adapter/http/handler"
	"payrails/internal/adapter/settlement/simulator"
	"payrails/internal/adapter/storage/memory"
	pgStorage "payrails/internal/adapter/storage/postgres"
	redisStorage "payrails/internal/adapter/storage/redis"
	"payrails/internal/core/domain"
	"payrails/internal/core/ports"
	"payrails/internal/core/rail"
	"payrails/internal/service"
	"payrails/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// storage is the set of repositories behind one storage driver.
type storage struct {
	accounts      ports.AccountRepository
	configs       ports.ChannelConfigRepository
	payments      ports.PaymentRepository
	requests      ports.PaymentRequestRepository
	ledger        ports.LedgerRepository
	audit         ports.AuditRepository
	notifications ports.NotificationRepository
	transactor    ports.DBTransactor
	health        ports.HealthChecker
	close         func()
}

func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case "memory":
		store := memory.NewStore()
		log.Warn().Msg("using in-memory storage, state is lost on exit")
		return &storage{
			accounts:      store.Accounts(),
			configs:       store.ChannelConfigs(),
			payments:      store.Payments(),
			requests:      store.PaymentRequests(),
			ledger:        store.Ledger(),
			audit:         store.Audit(),
			notifications: store.Notifications(),
			transactor:    store,
			health:        store,
			close:         func() {},
		}, nil
	case "postgres", "":
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if _, err := pgStorage.ApplyMigrations(ctx, pool, pgStorage.Migrations(), log); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return &storage{
			accounts:      pgStorage.NewAccountRepo(pool),
			configs:       pgStorage.NewChannelConfigRepo(pool),
			payments:      pgStorage.NewPaymentRepo(pool),
			requests:      pgStorage.NewPaymentRequestRepo(pool),
			ledger:        pgStorage.NewLedgerRepo(pool),
			audit:         pgStorage.NewAuditRepo(pool),
			notifications: pgStorage.NewNotificationRepo(pool),
			transactor:    pgStorage.NewTransactor(pool),
			health:        pgStorage.NewHealthCheck(pool),
			close:         pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// seed creates configured directory accounts and stores the routing config as the active one.
func seed(ctx context.Context, cfg *config.Config, st *storage) error {
	for _, sa := range cfg.Seed.Accounts {
		a := &domain.Account{
			ID:          sa.ID,
			Kind:        domain.AccountKind(sa.Kind),
			DisplayName: sa.DisplayName,
			Status:      domain.AccountStatus(sa.Status),
		}
		if a.Status == "" {
			a.Status = domain.AccountStatusActive
		}
		if a.Kind != domain.AccountKindMerchant && a.Kind != domain.AccountKindWallet {
			return fmt.Errorf("seed account %s: unknown kind %q", sa.ID, sa.Kind)
		}
		if sa.NotifyURL != "" {
			u := sa.NotifyURL
			a.NotifyURL = &u
		}
		a.CreatedAt = time.Now().UTC()
		a.UpdatedAt = a.CreatedAt
		if err := st.accounts.Create(ctx, a); err != nil {
			return fmt.Errorf("seed account %s: %w", sa.ID, err)
		}
	}

	cc, err := cfg.Routing.ChannelConfig()
	if err != nil {
		return err
	}
	if len(cc.Channels) == 0 {
		return errors.New("routing.channels must name at least one channel")
	}
	return st.configs.Upsert(ctx, cc)
}

func newSimulator(cfg config.ProviderConfig, log zerolog.Logger) (*simulator.Simulator, error) {
	limits, err := cfg.ProviderLimits()
	if err != nil {
		return nil, err
	}
	opts := simulator.Options{
		FailureRate: &cfg.FailureRate,
		Latency:     cfg.Latency.ByChannel(),
		Limits:      limits,
	}
	if cfg.AvailableBalance != "" {
		bal, err := decimal.NewFromString(cfg.AvailableBalance)
		if err != nil {
			return nil, fmt.Errorf("provider.available_balance: %w", err)
		}
		opts.AvailableBalance = &bal
	}
	return simulator.New(opts, logger.Component(log, "simulator")), nil
}

// app is the fully wired service graph.
type app struct {
	router   *gin.Engine
	requests *service.PaymentRequestServiceImpl
	notifier *service.NotificationServiceImpl
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	if cfg.JWT.Secret == "" {
		return nil, errors.New("jwt.secret must be set")
	}

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &app{closers: []func(){st.close}}

	if err := seed(ctx, cfg, st); err != nil {
		a.Close()
		return nil, err
	}

	checkers := []ports.HealthChecker{st.health}
	var cache ports.IdempotencyCache
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		cache = redisStorage.NewIdempotencyCache(rdb)
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	}

	provider, err := newSimulator(cfg.Provider, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	priority, err := cfg.Routing.PriorityChannels()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("routing.priority: %w", err)
	}
	rate, discountChannels, err := cfg.Settlement.Discount()
	if err != nil {
		a.Close()
		return nil, err
	}

	auditSvc := service.NewAuditService(st.audit, logger.Component(log, "audit"))
	ledgerSvc := service.NewLedgerService(st.ledger, st.transactor, st.accounts, auditSvc, logger.Component(log, "ledger"))
	requestSvc := service.NewPaymentRequestService(st.requests, st.accounts, auditSvc, logger.Component(log, "payment_requests"))
	signer := service.NewHMACSignatureService()
	notifier := service.NewNotificationService(
		st.accounts,
		st.notifications,
		signer,
		cfg.Notify.Secret,
		&http.Client{Timeout: cfg.Notify.Timeout},
		cfg.Notify.RetryIntervals,
		logger.Component(log, "notifier"),
	)
	a.closers = append(a.closers, notifier.Close)

	paymentSvc := service.NewPaymentService(service.PaymentDeps{
		Payments:   st.payments,
		Requests:   st.requests,
		Ledger:     ledgerSvc,
		Directory:  st.accounts,
		Channels:   st.configs,
		Provider:   provider,
		Cache:      cache,
		Transactor: st.transactor,
		Audit:      auditSvc,
		Notifier:   notifier,
		Selector:   rail.NewSelector(priority),
	}, service.PaymentOptions{
		RaceWait:         cfg.Orchestrator.RaceWait,
		IdempotencyTTL:   cfg.Orchestrator.IdempotencyTTL,
		DiscountRate:     rate,
		DiscountChannels: discountChannels,
	}, logger.Component(log, "orchestrator"))

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	a.router = httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:        paymentSvc,
		PaymentRequestSvc: requestSvc,
		LedgerSvc:         ledgerSvc,
		TokenSvc:          service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer),
		SignatureSvc:      signer,
		WebhookSecret:     cfg.Provider.WebhookSecret,
		AuditSvc:          auditSvc,
		HealthCheckers:    checkers,
		OpenAPISpec:       api.OpenAPI,
		Logger:            log,
	})
	a.requests = requestSvc
	a.notifier = notifier
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
