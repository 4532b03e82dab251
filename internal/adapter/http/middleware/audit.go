package middleware

import (
	"net/http"
	"strings"

	"payrails/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// SourceAPI is the audit source of request-level events.
const SourceAPI = "api"

// AuditLog records an "api.<action>" event for every successful write call,
// keyed by the calling account. Lifecycle events are recorded by the services.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			return
		}

		action := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var ref *string
		if id, ok := AccountID(c); ok {
			ref = &id
		}
		auditSvc.Record(c.Request.Context(), "api."+action, SourceAPI, ref, map[string]any{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString(CtxRequestID),
		})
	}
}

func mapRouteToAction(route, method string) string {
	if method != http.MethodPost {
		return ""
	}
	switch strings.TrimPrefix(route, "/api/v1") {
	case "/payments":
		return "payment_create"
	case "/payments/:id/cancel":
		return "payment_cancel"
	case "/payments/:id/reconcile":
		return "payment_reconcile"
	case "/payment-requests":
		return "payment_request_create"
	case "/payment-requests/:id/pay":
		return "payment_request_pay"
	case "/wallets/:id/topup":
		return "wallet_topup"
	case "/webhooks/settlement":
		return "settlement_callback"
	}
	return ""
}
