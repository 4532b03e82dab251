package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"payrails/internal/core/domain"
	"payrails/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultRetryIntervals is the wait before each redelivery attempt.
var DefaultRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// EventPaymentUpdate is the event type carried by every payment notification.
const EventPaymentUpdate = "PAYMENT_UPDATE"

// NotificationPayload is the JSON body posted to an account's notify URL.
type NotificationPayload struct {
	EventType string              `json:"event_type"`
	Data      domain.Notification `json:"data"`
	Signature string              `json:"signature"`
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NotificationServiceImpl implements ports.Notifier with signed HTTP callbacks.
// Deliveries run in the background; Close stops pending retries.
type NotificationServiceImpl struct {
	directory  ports.CounterpartyDirectory
	repo       ports.NotificationRepository
	sigSvc     ports.SignatureService
	secret     string
	httpClient HTTPClient
	intervals  []time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	log        zerolog.Logger
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotificationService creates a new notification service. repo may be nil.
func NewNotificationService(
	directory ports.CounterpartyDirectory,
	repo ports.NotificationRepository,
	sigSvc ports.SignatureService,
	secret string,
	httpClient HTTPClient,
	intervals []time.Duration,
	log zerolog.Logger,
) *NotificationServiceImpl {
	if intervals == nil {
		intervals = DefaultRetryIntervals
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &NotificationServiceImpl{
		directory:  directory,
		repo:       repo,
		sigSvc:     sigSvc,
		secret:     secret,
		httpClient: httpClient,
		intervals:  intervals,
		sleep:      sleepCtx,
		log:        log,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Notify looks up the account's notify URL and delivers n asynchronously.
// Accounts without a URL are skipped.
func (s *NotificationServiceImpl) Notify(ctx context.Context, n domain.Notification) error {
	acct, err := s.directory.GetByID(ctx, n.AccountID)
	if err != nil {
		return fmt.Errorf("notify: lookup account: %w", err)
	}
	if acct == nil || acct.NotifyURL == nil || *acct.NotifyURL == "" {
		s.log.Debug().Str("account_id", n.AccountID).Msg("notify: no notify URL configured, skipping")
		return nil
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: marshal data: %w", err)
	}
	body, err := json.Marshal(NotificationPayload{
		EventType: EventPaymentUpdate,
		Data:      n,
		Signature: s.sigSvc.Sign(s.secret, string(data)),
	})
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	now := s.now().UTC()
	d := &domain.NotificationDelivery{
		ID:        uuid.New(),
		PaymentID: n.PaymentID,
		AccountID: n.AccountID,
		URL:       *acct.NotifyURL,
		Payload:   string(body),
		Status:    domain.DeliveryStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.repo != nil {
		if err := s.repo.Create(ctx, d); err != nil {
			s.log.Warn().Err(err).Str("payment_id", n.PaymentID.String()).Msg("notify: failed to record delivery")
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliverWithRetries(d, s.sigSvc.Sign(s.secret, string(body)))
	}()
	return nil
}

// Wait blocks until every in-flight delivery has finished.
func (s *NotificationServiceImpl) Wait() {
	s.wg.Wait()
}

// Close abandons pending retries and waits for running deliveries to return.
func (s *NotificationServiceImpl) Close() {
	s.cancel()
	s.wg.Wait()
}

func (s *NotificationServiceImpl) deliverWithRetries(d *domain.NotificationDelivery, bodySig string) {
	l := s.log.With().Str("payment_id", d.PaymentID.String()).Str("account_id", d.AccountID).Logger()

	for attempt := 0; attempt <= len(s.intervals); attempt++ {
		if attempt > 0 {
			if err := s.sleep(s.ctx, s.intervals[attempt-1]); err != nil {
				l.Warn().Int("attempt", attempt).Msg("notify: shutting down, delivery abandoned")
				s.record(d, attempt, nil, domain.DeliveryStatusFailed, "abandoned on shutdown")
				return
			}
		}

		status, err := s.post(d, bodySig)
		switch {
		case err != nil:
			l.Warn().Err(err).Int("attempt", attempt+1).Msg("notify: delivery failed")
			s.record(d, attempt+1, nil, domain.DeliveryStatusPending, err.Error())
		case status >= 200 && status < 300:
			l.Info().Int("attempt", attempt+1).Int("status", status).Msg("notify: delivered")
			s.record(d, attempt+1, &status, domain.DeliveryStatusDelivered, "")
			return
		default:
			l.Warn().Int("attempt", attempt+1).Int("status", status).Msg("notify: non-2xx response, retrying")
			s.record(d, attempt+1, &status, domain.DeliveryStatusPending, fmt.Sprintf("HTTP %d", status))
		}
	}

	l.Error().Msg("notify: all retry attempts exhausted")
	s.record(d, d.Attempt, d.HTTPStatus, domain.DeliveryStatusFailed, derefOr(d.LastError, "retries exhausted"))
}

func (s *NotificationServiceImpl) post(d *domain.NotificationDelivery, bodySig string) (int, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, d.URL, bytes.NewReader([]byte(d.Payload)))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, bodySig)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (s *NotificationServiceImpl) record(d *domain.NotificationDelivery, attempt int, status *int, st domain.DeliveryStatus, lastErr string) {
	d.Attempt = attempt
	d.HTTPStatus = status
	d.Status = st
	d.LastError = nil
	if lastErr != "" {
		d.LastError = &lastErr
	}
	d.UpdatedAt = s.now().UTC()
	if s.repo == nil {
		return
	}
	if err := s.repo.Update(context.Background(), d); err != nil {
		s.log.Warn().Err(err).Str("delivery_id", d.ID.String()).Msg("notify: failed to update delivery")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}
