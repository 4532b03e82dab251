package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"payrails/internal/core/domain"
	"payrails/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuditServiceImpl implements ports.AuditService.
type AuditServiceImpl struct {
	repo ports.AuditRepository
	log  zerolog.Logger
	now  func() time.Time
}

// NewAuditService creates a new audit service.
// If repo is nil, events are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) *AuditServiceImpl {
	return &AuditServiceImpl{repo: repo, log: log, now: time.Now}
}

// Record persists an event synchronously. Failures are logged and swallowed
// so that auditing never changes a payment's outcome.
func (s *AuditServiceImpl) Record(ctx context.Context, eventType, source string, referenceID *string, payload any) {
	event := &domain.AuditEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		Source:      source,
		ReferenceID: referenceID,
		CreatedAt:   s.now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			s.log.Warn().Err(err).Str("event", eventType).Msg("audit payload not serializable")
		} else {
			event.Payload = raw
		}
	}

	l := s.log.Info().Str("event", eventType).Str("source", source)
	if referenceID != nil {
		l = l.Str("reference_id", *referenceID)
	}
	if len(event.Payload) > 0 {
		l = l.RawJSON("payload", event.Payload)
	}
	l.Msg("audit")

	if s.repo == nil {
		return
	}
	if err := s.repo.Create(context.WithoutCancel(ctx), event); err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("failed to persist audit event")
	}
}

// ListEvents returns the events recorded for a reference id, oldest first.
func (s *AuditServiceImpl) ListEvents(ctx context.Context, referenceID string) ([]domain.AuditEvent, error) {
	if s.repo == nil {
		return nil, nil
	}
	events, err := s.repo.ListByReference(ctx, referenceID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return events, nil
}
