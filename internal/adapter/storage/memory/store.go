// Package memory is a process-local implementation of the storage ports.
// It backs the `memory` storage driver and the service tests.
package memory

import (
	"context"
	"errors"
	"sync"

	"payrails/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrForeignTx is returned when a repository receives a transaction it did not open.
var ErrForeignTx = errors.New("memory: transaction not opened by this store")

// Store holds every table. Reads take mu; transactions and the single-row
// writes that race with them (cancel, expire) hold the transaction slot.
type Store struct {
	mu   sync.RWMutex
	slot chan struct{}

	accounts   map[string]domain.Account
	configs    map[string]domain.ChannelConfig
	payments   map[uuid.UUID]domain.PaymentIntent
	byKey      map[string]uuid.UUID
	requests   map[uuid.UUID]domain.PaymentRequest
	entries    []domain.LedgerEntry
	seq        int64
	audit      []domain.AuditEvent
	deliveries map[uuid.UUID]domain.NotificationDelivery
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		slot:       make(chan struct{}, 1),
		accounts:   make(map[string]domain.Account),
		configs:    make(map[string]domain.ChannelConfig),
		payments:   make(map[uuid.UUID]domain.PaymentIntent),
		byKey:      make(map[string]uuid.UUID),
		requests:   make(map[uuid.UUID]domain.PaymentRequest),
		deliveries: make(map[uuid.UUID]domain.NotificationDelivery),
	}
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() { <-s.slot }

// Begin implements ports.DBTransactor. Transactions are serialized.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	return &Tx{store: s}, nil
}

// Tx stages writes and applies them on Commit. Only Commit and Rollback
// are implemented; the rest of pgx.Tx is unavailable.
type Tx struct {
	pgx.Tx

	store   *Store
	once    sync.Once
	closed  bool
	ops     []func(*Store)
	pending []domain.LedgerEntry
}

func (t *Tx) stage(op func(*Store)) { t.ops = append(t.ops, op) }

// Commit applies staged writes atomically with respect to readers.
func (t *Tx) Commit(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	for _, op := range t.ops {
		op(t.store)
	}
	t.store.mu.Unlock()
	t.finish()
	return nil
}

// Rollback discards staged writes.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.finish()
	return nil
}

func (t *Tx) finish() {
	t.once.Do(func() {
		t.closed = true
		t.ops = nil
		t.pending = nil
		t.store.release()
	})
}

func (s *Store) own(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s {
		return nil, ErrForeignTx
	}
	if t.closed {
		return nil, pgx.ErrTxClosed
	}
	return t, nil
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

func paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	start := 0
	if page > 1 {
		start = (page - 1) * pageSize
	}
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
