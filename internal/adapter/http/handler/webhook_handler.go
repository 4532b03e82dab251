package handler

import (
	"io"

	"payrails/internal/adapter/http/dto"
	"payrails/internal/core/domain"
	"payrails/internal/core/ports"
	"payrails/pkg/apperror"
	"payrails/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

// HeaderSignature carries the provider's HMAC-SHA256 of the raw callback body.
const HeaderSignature = "X-Signature"

const (
	callbackProcessed        = "processed"
	callbackAlreadyProcessed = "already_processed"
)

// WebhookHandler accepts settlement callbacks from the provider. Callers
// authenticate with a body signature instead of a bearer token.
type WebhookHandler struct {
	paymentSvc ports.PaymentService
	signer     ports.SignatureService
	secret     string
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(paymentSvc ports.PaymentService, signer ports.SignatureService, secret string) *WebhookHandler {
	return &WebhookHandler{paymentSvc: paymentSvc, signer: signer, secret: secret}
}

// Settlement handles POST /api/v1/webhooks/settlement.
func (h *WebhookHandler) Settlement(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("unreadable request body"))
		return
	}
	if !h.signer.Verify(h.secret, string(body), c.GetHeader(HeaderSignature)) {
		response.Error(c, apperror.ErrInvalidSignature())
		return
	}

	var req dto.SettlementCallbackRequest
	if err := binding.JSON.BindBody(body, &req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	req.Normalize()

	p, applied, err := h.paymentSvc.HandleSettlementCallback(c.Request.Context(), ports.SettlementCallback{
		ReferenceID:   req.ReferenceID,
		Status:        domain.SettlementStatus(req.Status),
		FailureReason: req.FailureReason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	status := callbackAlreadyProcessed
	if applied {
		status = callbackProcessed
	}
	response.OK(c, dto.SettlementCallbackResponse{Status: status, Payment: toPaymentResponse(p)})
}
