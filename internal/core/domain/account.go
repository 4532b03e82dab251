package domain

import "time"

// AccountKind distinguishes merchant accounts from consumer wallets.
type AccountKind string

const (
	AccountKindMerchant AccountKind = "merchant"
	AccountKindWallet   AccountKind = "wallet"
)

// AccountStatus represents the eligibility of an account.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusPending   AccountStatus = "pending"
	AccountStatusSuspended AccountStatus = "suspended"
)

// Account is a counterparty directory record.
type Account struct {
	ID          string        `json:"id"`
	Kind        AccountKind   `json:"kind"`
	DisplayName string        `json:"display_name"`
	Status      AccountStatus `json:"status"`
	NotifyURL   *string       `json:"notify_url,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IsActive returns true if the account may send or receive funds.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}
