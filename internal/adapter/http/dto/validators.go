package dto

import (
	"html"
	"regexp"
	"strings"

	"payrails/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// account ids, idempotency keys and references: letters, digits and _-.:
var identifierRe = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

func init() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	for tag, fn := range map[string]validator.Func{
		"safe_id": func(fl validator.FieldLevel) bool { return identifierRe.MatchString(fl.Field().String()) },
		"amount":  isMinorAmount,
		"channel": func(fl validator.FieldLevel) bool {
			_, ok := domain.ParseChannel(strings.ToLower(fl.Field().String()))
			return ok
		},
	} {
		_ = v.RegisterValidation(tag, fn)
	}
}

// isMinorAmount accepts a positive decimal with at most two fractional digits.
func isMinorAmount(fl validator.FieldLevel) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
	return err == nil && d.IsPositive() && d.Exponent() >= -domain.MinorUnits
}

// Normalize trims identifiers, canonicalizes currency and channel case and
// escapes the free-text memo.
func (r *CreatePaymentRequest) Normalize() {
	r.SenderID = strings.TrimSpace(r.SenderID)
	r.ReceiverID = strings.TrimSpace(r.ReceiverID)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	lowerPtr(r.PreferredChannel)
	escapePtr(r.Memo)
}

func (r *PayRequestRequest) Normalize() {
	r.WalletID = strings.TrimSpace(r.WalletID)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	lowerPtr(r.PreferredChannel)
}

func (r *CreatePaymentRequestRequest) Normalize() {
	r.MerchantID = strings.TrimSpace(r.MerchantID)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	escapePtr(r.Description)
}

func (r *SettlementCallbackRequest) Normalize() {
	r.ReferenceID = strings.TrimSpace(r.ReferenceID)
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	escapePtr(r.FailureReason)
}

func lowerPtr(s *string) {
	if s != nil {
		*s = strings.ToLower(strings.TrimSpace(*s))
	}
}

func escapePtr(s *string) {
	if s != nil {
		*s = html.EscapeString(strings.TrimSpace(*s))
	}
}
