package postgres

import (
	"context"
	"fmt"

	"payrails/internal/core/domain"
)

// AuditRepo implements ports.AuditRepository. Events are never updated.
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a PostgreSQL-backed audit sink.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Create(ctx context.Context, e *domain.AuditEvent) error {
	var payload []byte
	if len(e.Payload) > 0 {
		payload = e.Payload
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_events (id, event_type, source, reference_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.EventType, e.Source, e.ReferenceID, payload, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByReference returns the events for a reference id in emission order.
func (r *AuditRepo) ListByReference(ctx context.Context, referenceID string) ([]domain.AuditEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, event_type, source, reference_id, payload, created_at
		FROM audit_events WHERE reference_id = $1 ORDER BY created_at, id`, referenceID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.Source, &e.ReferenceID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	return events, rows.Err()
}
