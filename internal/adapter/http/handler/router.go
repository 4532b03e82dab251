package handler

import (
	"payrails/internal/adapter/http/middleware"
	"payrails/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PaymentSvc        ports.PaymentService
	PaymentRequestSvc ports.PaymentRequestService
	LedgerSvc         ports.LedgerService
	TokenSvc          ports.TokenService
	SignatureSvc      ports.SignatureService
	WebhookSecret     string // empty = settlement callbacks disabled
	AuditSvc          ports.AuditService // nil = no request-level audit events
	HealthCheckers    []ports.HealthChecker
	OpenAPISpec       []byte
	Logger            zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	docs := NewDocsHandler(deps.OpenAPISpec)
	swagger := r.Group("/swagger")
	{
		swagger.GET("", docs.UI)
		swagger.GET("/spec", docs.Spec)
	}

	if deps.WebhookSecret != "" && deps.SignatureSvc != nil {
		webhooks := NewWebhookHandler(deps.PaymentSvc, deps.SignatureSvc, deps.WebhookSecret)
		r.POST("/api/v1/webhooks/settlement", webhooks.Settlement)
	}

	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	paymentHandler := NewPaymentHandler(deps.PaymentSvc)
	payments := v1.Group("/payments")
	{
		payments.POST("", paymentHandler.Create)
		payments.GET("", paymentHandler.List)
		payments.GET("/:id", paymentHandler.Get)
		payments.POST("/:id/cancel", paymentHandler.Cancel)
		payments.POST("/:id/reconcile", paymentHandler.Reconcile)
	}

	requestHandler := NewPaymentRequestHandler(deps.PaymentRequestSvc, deps.PaymentSvc)
	requests := v1.Group("/payment-requests")
	{
		requests.POST("", requestHandler.Create)
		requests.GET("/:id", requestHandler.Get)
		requests.POST("/:id/pay", requestHandler.Pay)
	}

	accountHandler := NewAccountHandler(deps.LedgerSvc)
	v1.GET("/accounts/:id/balance", accountHandler.Balance)
	v1.GET("/accounts/:id/entries", accountHandler.Entries)
	v1.POST("/wallets/:id/topup", accountHandler.Topup)

	return r
}
