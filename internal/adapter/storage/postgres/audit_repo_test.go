package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"payrails/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	ref := uuid.NewString()
	e := &domain.AuditEvent{
		ID:          uuid.New(),
		EventType:   domain.EventPaymentInitiated,
		Source:      domain.SourceOrchestrator,
		ReferenceID: &ref,
		Payload:     json.RawMessage(`{"channel":"fednow"}`),
		CreatedAt:   time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO audit_events").
		WithArgs(e.ID, e.EventType, e.Source, e.ReferenceID, []byte(e.Payload), e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_ListByReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepo(mock)
	ref := uuid.NewString()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM audit_events WHERE reference_id = \\$1 ORDER BY created_at, id").
		WithArgs(ref).
		WillReturnRows(pgxmock.NewRows([]string{"id", "event_type", "source", "reference_id", "payload", "created_at"}).
			AddRow(uuid.New(), domain.EventPaymentInitiated, domain.SourceOrchestrator, &ref, []byte(`{}`), now).
			AddRow(uuid.New(), domain.EventPaymentCompleted, domain.SourceOrchestrator, &ref, []byte(`{"reference_id":"x"}`), now))

	events, err := repo.ListByReference(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventPaymentCompleted, events[1].EventType)
	assert.JSONEq(t, `{"reference_id":"x"}`, string(events[1].Payload))
	assert.NoError(t, mock.ExpectationsWereMet())
}
