package memory

import (
	"context"
	"sort"
	"time"

	"payrails/internal/core/domain"

	"github.com/google/uuid"
)

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct{ s *Store }

// Audit returns the audit sink view of the store.
func (s *Store) Audit() *AuditRepo { return &AuditRepo{s: s} }

func (r *AuditRepo) Create(ctx context.Context, e *domain.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.audit = append(r.s.audit, *e)
	return nil
}

func (r *AuditRepo) ListByReference(ctx context.Context, referenceID string) ([]domain.AuditEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.AuditEvent
	for _, e := range r.s.audit {
		if e.ReferenceID != nil && *e.ReferenceID == referenceID {
			out = append(out, e)
		}
	}
	return out, nil
}

// NotificationRepo implements ports.NotificationRepository.
type NotificationRepo struct{ s *Store }

// Notifications returns the delivery log view of the store.
func (s *Store) Notifications() *NotificationRepo { return &NotificationRepo{s: s} }

func (r *NotificationRepo) Create(ctx context.Context, d *domain.NotificationDelivery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.deliveries[d.ID] = *d
	return nil
}

func (r *NotificationRepo) Update(ctx context.Context, d *domain.NotificationDelivery) error {
	d.UpdatedAt = time.Now().UTC()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.deliveries[d.ID] = *d
	return nil
}

func (r *NotificationRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.NotificationDelivery, error) {
	r.s.mu.RLock()
	var out []domain.NotificationDelivery
	for _, d := range r.s.deliveries {
		if d.PaymentID == paymentID {
			out = append(out, d)
		}
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
