package handler

import (
	"strings"
	"time"

	"payrails/internal/adapter/http/dto"
	"payrails/internal/adapter/http/middleware"
	"payrails/internal/core/domain"
	"payrails/internal/core/ports"
	"payrails/pkg/apperror"
	"payrails/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderIdempotencyKey takes precedence over the body's idempotency_key.
const HeaderIdempotencyKey = "Idempotency-Key"

// PaymentHandler handles payment intent endpoints.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// Create handles POST /api/v1/payments.
func (h *PaymentHandler) Create(c *gin.Context) {
	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	req.Normalize()

	if err := requireSelf(c, req.SenderID); err != nil {
		response.Error(c, err)
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	p, err := h.paymentSvc.CreatePayment(c.Request.Context(), ports.CreatePaymentInput{
		SenderID:         req.SenderID,
		ReceiverID:       req.ReceiverID,
		Amount:           amount,
		Currency:         req.Currency,
		IdempotencyKey:   idempotencyKey(c, req.IdempotencyKey),
		PreferredChannel: parseChannel(req.PreferredChannel),
		Memo:             req.Memo,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toPaymentResponse(p))
}

// Get handles GET /api/v1/payments/:id.
func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}
	p, err := h.paymentSvc.GetPayment(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toPaymentResponse(p))
}

// List handles GET /api/v1/payments.
func (h *PaymentHandler) List(c *gin.Context) {
	var q dto.ListPaymentsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	params := ports.PaymentListParams{Page: q.Page, PageSize: q.PageSize}
	if q.AccountID != "" {
		params.AccountID = &q.AccountID
	}
	if q.Status != "" {
		st := domain.PaymentStatus(q.Status)
		params.Status = &st
	}
	if q.Channel != "" {
		params.Channel = parseChannel(&q.Channel)
	}

	payments, total, err := h.paymentSvc.ListPayments(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.PaymentResponse, 0, len(payments))
	for i := range payments {
		items = append(items, toPaymentResponse(&payments[i]))
	}
	page, size := pageOrDefault(q.Page, q.PageSize)
	response.Paged(c, items, page, size, total)
}

// Cancel handles POST /api/v1/payments/:id/cancel.
func (h *PaymentHandler) Cancel(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}
	p, err := h.paymentSvc.CancelPayment(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toPaymentResponse(p))
}

// Reconcile handles POST /api/v1/payments/:id/reconcile.
func (h *PaymentHandler) Reconcile(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}
	p, err := h.paymentSvc.ReconcilePayment(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toPaymentResponse(p))
}

func toPaymentResponse(p *domain.PaymentIntent) dto.PaymentResponse {
	resp := dto.PaymentResponse{
		ID:             p.ID.String(),
		Kind:           string(p.Kind),
		SenderID:       p.SenderID,
		ReceiverID:     p.ReceiverID,
		Amount:         p.Amount.StringFixed(domain.MinorUnits),
		SettledAmount:  p.SettledAmount.StringFixed(domain.MinorUnits),
		Currency:       p.Currency,
		IdempotencyKey: p.IdempotencyKey,
		Channel:        string(p.Channel),
		Status:         string(p.Status),
		ReferenceID:    p.ReferenceID,
		FailureReason:  p.FailureReason,
		Memo:           p.Memo,
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      p.UpdatedAt.Format(time.RFC3339),
	}
	if p.PaymentRequestID != nil {
		s := p.PaymentRequestID.String()
		resp.PaymentRequestID = &s
	}
	return resp
}

// requireSelf rejects callers acting for an account other than their own.
func requireSelf(c *gin.Context, accountID string) error {
	caller, ok := middleware.AccountID(c)
	if !ok {
		return apperror.ErrInvalidToken()
	}
	if caller != accountID {
		return apperror.ErrForbidden()
	}
	return nil
}

func idempotencyKey(c *gin.Context, fromBody string) string {
	if k := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey)); k != "" {
		return k
	}
	return fromBody
}

func parseChannel(s *string) *domain.Channel {
	if s == nil {
		return nil
	}
	ch, ok := domain.ParseChannel(strings.ToLower(*s))
	if !ok {
		return nil
	}
	return &ch
}

func pathUUID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("id must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func pageOrDefault(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	return page, size
}
