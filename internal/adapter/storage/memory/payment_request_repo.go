package memory

import (
	"context"
	"sort"
	"time"

	"payrails/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentRequestRepo implements ports.PaymentRequestRepository.
type PaymentRequestRepo struct{ s *Store }

// PaymentRequests returns the payment request view of the store.
func (s *Store) PaymentRequests() *PaymentRequestRepo { return &PaymentRequestRepo{s: s} }

func (r *PaymentRequestRepo) Create(ctx context.Context, pr *domain.PaymentRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.requests[pr.ID] = *pr
	return nil
}

func (r *PaymentRequestRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	pr, ok := r.s.requests[id]
	if !ok {
		return nil, nil
	}
	return &pr, nil
}

func (r *PaymentRequestRepo) MarkCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	t, err := r.s.own(tx)
	if err != nil {
		return err
	}
	r.s.mu.RLock()
	pr, ok := r.s.requests[id]
	r.s.mu.RUnlock()
	if !ok || pr.Status != domain.PaymentRequestPending {
		return domain.ErrStaleTransition
	}
	t.stage(func(s *Store) {
		pr := s.requests[id]
		pr.Status = domain.PaymentRequestCompleted
		pr.UpdatedAt = at
		s.requests[id] = pr
	})
	return nil
}

func (r *PaymentRequestRepo) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	if err := r.s.acquire(ctx); err != nil {
		return false, err
	}
	defer r.s.release()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pr, ok := r.s.requests[id]
	if !ok || pr.Status != domain.PaymentRequestPending || r.s.requestHeld(id, awaitingSettlement) {
		return false, nil
	}
	pr.Status = domain.PaymentRequestExpired
	pr.UpdatedAt = at
	r.s.requests[id] = pr
	return true, nil
}

func (r *PaymentRequestRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.PaymentRequest, error) {
	r.s.mu.RLock()
	var out []domain.PaymentRequest
	for _, pr := range r.s.requests {
		if pr.Status == domain.PaymentRequestPending && pr.ExpiresAt != nil && pr.ExpiresAt.Before(now) &&
			!r.s.requestHeld(pr.ID, awaitingSettlement) {
			out = append(out, pr)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
