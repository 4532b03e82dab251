package domain

import "errors"

// Storage sentinels shared by every repository implementation.
var (
	// ErrDuplicateIdempotencyKey is returned when an intent with the same key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	// ErrStaleTransition is returned when a compare-and-transition finds the row in another state.
	ErrStaleTransition = errors.New("stale status transition")
	ErrNotFound        = errors.New("not found")
	// ErrRequestInFlight is returned when a payment request already has a processing or completed intent.
	ErrRequestInFlight = errors.New("payment request already being paid")
	// ErrInsufficientFunds is returned by a funds-checked ledger posting.
	ErrInsufficientFunds = errors.New("insufficient funds")
)
