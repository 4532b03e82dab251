package handler

import (
	"time"

	"payrails/internal/adapter/http/dto"
	"payrails/internal/core/domain"
	"payrails/internal/core/ports"
	"payrails/pkg/apperror"
	"payrails/pkg/response"

	"github.com/gin-gonic/gin"
)

// PaymentRequestHandler handles merchant payment requests and wallet payment of them.
type PaymentRequestHandler struct {
	requestSvc ports.PaymentRequestService
	paymentSvc ports.PaymentService
}

// NewPaymentRequestHandler creates a new PaymentRequestHandler.
func NewPaymentRequestHandler(requestSvc ports.PaymentRequestService, paymentSvc ports.PaymentService) *PaymentRequestHandler {
	return &PaymentRequestHandler{requestSvc: requestSvc, paymentSvc: paymentSvc}
}

// Create handles POST /api/v1/payment-requests.
func (h *PaymentRequestHandler) Create(c *gin.Context) {
	var req dto.CreatePaymentRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	req.Normalize()

	if err := requireSelf(c, req.MerchantID); err != nil {
		response.Error(c, err)
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	pr, err := h.requestSvc.Create(c.Request.Context(), ports.CreatePaymentRequestInput{
		MerchantID:  req.MerchantID,
		Amount:      amount,
		Currency:    req.Currency,
		Description: req.Description,
		ExpiresIn:   time.Duration(req.ExpiresInSeconds) * time.Second,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toPaymentRequestResponse(pr))
}

// Get handles GET /api/v1/payment-requests/:id.
func (h *PaymentRequestHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}
	pr, err := h.requestSvc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toPaymentRequestResponse(pr))
}

// Pay handles POST /api/v1/payment-requests/:id/pay.
func (h *PaymentRequestHandler) Pay(c *gin.Context) {
	id, ok := pathUUID(c)
	if !ok {
		return
	}

	var req dto.PayRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	req.Normalize()

	if err := requireSelf(c, req.WalletID); err != nil {
		response.Error(c, err)
		return
	}

	p, err := h.paymentSvc.PayRequest(c.Request.Context(), ports.PayRequestInput{
		PaymentRequestID: id,
		WalletID:         req.WalletID,
		IdempotencyKey:   idempotencyKey(c, req.IdempotencyKey),
		PreferredChannel: parseChannel(req.PreferredChannel),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toPaymentResponse(p))
}

func toPaymentRequestResponse(pr *domain.PaymentRequest) dto.PaymentRequestResponse {
	resp := dto.PaymentRequestResponse{
		ID:          pr.ID.String(),
		MerchantID:  pr.MerchantID,
		Amount:      pr.Amount.StringFixed(domain.MinorUnits),
		Currency:    pr.Currency,
		Description: pr.Description,
		Status:      string(pr.Status),
		CreatedAt:   pr.CreatedAt.Format(time.RFC3339),
	}
	if pr.ExpiresAt != nil {
		s := pr.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &s
	}
	return resp
}
