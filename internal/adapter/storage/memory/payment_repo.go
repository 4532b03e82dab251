package memory

import (
	"context"
	"sort"
	"time"

	"payrails/internal/core/domain"
	"payrails/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// holdsRequest reports whether an intent in status keeps its payment request
// from being paid again.
func holdsRequest(status domain.PaymentStatus) bool {
	return status == domain.PaymentStatusProcessing || status == domain.PaymentStatusCompleted
}

func awaitingSettlement(status domain.PaymentStatus) bool {
	return status == domain.PaymentStatusProcessing
}

// requestHeld scans for an intent on requestID whose status matches. Callers hold mu.
func (s *Store) requestHeld(requestID uuid.UUID, match func(domain.PaymentStatus) bool) bool {
	for _, p := range s.payments {
		if p.PaymentRequestID != nil && *p.PaymentRequestID == requestID && match(p.Status) {
			return true
		}
	}
	return false
}

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct{ s *Store }

// Payments returns the payment repository view of the store.
func (s *Store) Payments() *PaymentRepo { return &PaymentRepo{s: s} }

// Create mirrors the unique indexes of the payments table.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.PaymentIntent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.byKey[p.IdempotencyKey]; ok {
		return domain.ErrDuplicateIdempotencyKey
	}
	if p.PaymentRequestID != nil && holdsRequest(p.Status) && r.s.requestHeld(*p.PaymentRequestID, holdsRequest) {
		return domain.ErrRequestInFlight
	}
	r.s.payments[p.ID] = *p
	r.s.byKey[p.IdempotencyKey] = p.ID
	return nil
}

func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentIntent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *PaymentRepo) GetByReferenceID(ctx context.Context, referenceID string) (*domain.PaymentIntent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.payments {
		if p.ReferenceID != nil && *p.ReferenceID == referenceID {
			return &p, nil
		}
	}
	return nil, nil
}

func (r *PaymentRepo) AttachReference(ctx context.Context, id uuid.UUID, referenceID string, at time.Time) error {
	if err := r.s.acquire(ctx); err != nil {
		return err
	}
	defer r.s.release()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || p.Status != domain.PaymentStatusProcessing {
		return domain.ErrStaleTransition
	}
	p.ReferenceID = &referenceID
	p.UpdatedAt = at
	r.s.payments[id] = p
	return nil
}

func (r *PaymentRepo) InFlightDebits(ctx context.Context, accountID string) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	total := decimal.Zero
	for _, p := range r.s.payments {
		if p.SenderID == accountID && p.Kind == domain.PaymentKindWallet && p.Status == domain.PaymentStatusProcessing {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

func (r *PaymentRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentIntent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.byKey[key]
	if !ok {
		return nil, nil
	}
	p := r.s.payments[id]
	return &p, nil
}

// ApplySettlement checks the processing precondition now and writes on commit.
// Writers that could invalidate the check wait for the transaction slot.
func (r *PaymentRepo) ApplySettlement(ctx context.Context, tx pgx.Tx, id uuid.UUID, st domain.Settlement) error {
	t, err := r.s.own(tx)
	if err != nil {
		return err
	}
	r.s.mu.RLock()
	p, ok := r.s.payments[id]
	r.s.mu.RUnlock()
	if !ok || p.Status != domain.PaymentStatusProcessing {
		return domain.ErrStaleTransition
	}

	ref := st.Reference()
	t.stage(func(s *Store) {
		p := s.payments[id]
		p.Status = st.Status
		if ref != nil {
			p.ReferenceID = ref
		}
		p.FailureReason = st.FailureReason
		p.SettledAmount = st.SettledAmount
		p.UpdatedAt = st.At
		s.payments[id] = p
	})
	return nil
}

func (r *PaymentRepo) Cancel(ctx context.Context, id uuid.UUID, at time.Time) error {
	if err := r.s.acquire(ctx); err != nil {
		return err
	}
	defer r.s.release()

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok || !p.CanCancel() {
		return domain.ErrStaleTransition
	}
	p.Status = domain.PaymentStatusCancelled
	p.UpdatedAt = at
	r.s.payments[id] = p
	return nil
}

func (r *PaymentRepo) List(ctx context.Context, params ports.PaymentListParams) ([]domain.PaymentIntent, int64, error) {
	r.s.mu.RLock()
	var out []domain.PaymentIntent
	for _, p := range r.s.payments {
		if params.AccountID != nil && p.SenderID != *params.AccountID && p.ReceiverID != *params.AccountID {
			continue
		}
		if params.Status != nil && p.Status != *params.Status {
			continue
		}
		if params.Channel != nil && p.Channel != *params.Channel {
			continue
		}
		out = append(out, p)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return paginate(out, params.Page, params.PageSize), int64(len(out)), nil
}
