package dto

// CreatePaymentRequest is the request body for a direct transfer.
// The idempotency key may also arrive in the Idempotency-Key header.
type CreatePaymentRequest struct {
	SenderID         string  `json:"sender_id" binding:"required,max=64,safe_id"`
	ReceiverID       string  `json:"receiver_id" binding:"required,max=64,safe_id"`
	Amount           string  `json:"amount" binding:"required,amount"`
	Currency         string  `json:"currency" binding:"omitempty,len=3"`
	IdempotencyKey   string  `json:"idempotency_key" binding:"omitempty,max=128,safe_id"`
	PreferredChannel *string `json:"preferred_channel,omitempty" binding:"omitempty,channel"`
	Memo             *string `json:"memo,omitempty" binding:"omitempty,max=140"`
}

// PayRequestRequest is the request body for paying a payment request from a wallet.
type PayRequestRequest struct {
	WalletID         string  `json:"wallet_id" binding:"required,max=64,safe_id"`
	IdempotencyKey   string  `json:"idempotency_key" binding:"omitempty,max=128,safe_id"`
	PreferredChannel *string `json:"preferred_channel,omitempty" binding:"omitempty,channel"`
}

// CreatePaymentRequestRequest is the request body for a merchant payment request.
type CreatePaymentRequestRequest struct {
	MerchantID       string  `json:"merchant_id" binding:"required,max=64,safe_id"`
	Amount           string  `json:"amount" binding:"required,amount"`
	Currency         string  `json:"currency" binding:"omitempty,len=3"`
	Description      *string `json:"description,omitempty" binding:"omitempty,max=140"`
	ExpiresInSeconds int64   `json:"expires_in_seconds,omitempty" binding:"omitempty,gt=0,lte=604800"`
}

// TopupRequest is the request body for wallet topup.
type TopupRequest struct {
	Amount string `json:"amount" binding:"required,amount"`
}

// SettlementCallbackRequest is the signed body a settlement provider posts
// once a transfer it accepted as pending has finished.
type SettlementCallbackRequest struct {
	ReferenceID   string  `json:"reference_id" binding:"required,max=128,safe_id"`
	Status        string  `json:"status" binding:"required,oneof=completed failed"`
	FailureReason *string `json:"failure_reason,omitempty" binding:"omitempty,max=255"`
}

// ListPaymentsQuery binds the filters of GET /payments.
type ListPaymentsQuery struct {
	AccountID string `form:"account_id" binding:"omitempty,max=64,safe_id"`
	Status    string `form:"status" binding:"omitempty,oneof=received processing completed failed cancelled"`
	Channel   string `form:"channel" binding:"omitempty,channel"`
	Page      int    `form:"page" binding:"omitempty,gte=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,gte=1,lte=100"`
}

// PageQuery binds plain pagination parameters.
type PageQuery struct {
	Page     int `form:"page" binding:"omitempty,gte=1"`
	PageSize int `form:"page_size" binding:"omitempty,gte=1,lte=100"`
}

// SettlementCallbackResponse acknowledges a settlement callback. Status is
// "processed" when the callback settled the intent, "already_processed" otherwise.
type SettlementCallbackResponse struct {
	Status  string          `json:"status"`
	Payment PaymentResponse `json:"payment"`
}

// PaymentResponse is the response body for a payment intent. Amounts are
// decimal strings with two fractional digits.
type PaymentResponse struct {
	ID               string  `json:"id"`
	Kind             string  `json:"kind"`
	SenderID         string  `json:"sender_id"`
	ReceiverID       string  `json:"receiver_id"`
	Amount           string  `json:"amount"`
	SettledAmount    string  `json:"settled_amount"`
	Currency         string  `json:"currency"`
	IdempotencyKey   string  `json:"idempotency_key"`
	Channel          string  `json:"channel"`
	Status           string  `json:"status"`
	ReferenceID      *string `json:"reference_id,omitempty"`
	FailureReason    *string `json:"failure_reason,omitempty"`
	PaymentRequestID *string `json:"payment_request_id,omitempty"`
	Memo             *string `json:"memo,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// PaymentRequestResponse is the response body for a merchant payment request.
type PaymentRequestResponse struct {
	ID          string  `json:"id"`
	MerchantID  string  `json:"merchant_id"`
	Amount      string  `json:"amount"`
	Currency    string  `json:"currency"`
	Description *string `json:"description,omitempty"`
	Status      string  `json:"status"`
	ExpiresAt   *string `json:"expires_at,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// LedgerEntryResponse is one ledger entry.
type LedgerEntryResponse struct {
	ID           string  `json:"id"`
	AccountID    string  `json:"account_id"`
	PaymentID    *string `json:"payment_id,omitempty"`
	Direction    string  `json:"direction"`
	Amount       string  `json:"amount"`
	BalanceAfter string  `json:"balance_after"`
	Note         *string `json:"note,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

// BalanceResponse is the response for a balance query.
type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
}
