package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction is the side of a ledger entry.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Opposite returns the reversing direction.
func (d Direction) Opposite() Direction {
	if d == DirectionDebit {
		return DirectionCredit
	}
	return DirectionDebit
}

// LedgerEntry is one immutable movement against one account.
type LedgerEntry struct {
	ID           uuid.UUID       `json:"id"`
	Sequence     int64           `json:"sequence"`
	AccountID    string          `json:"account_id"`
	PaymentID    *uuid.UUID      `json:"payment_id,omitempty"`
	Direction    Direction       `json:"direction"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Note         *string         `json:"note,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Signed returns the entry's contribution to the account balance.
func (e *LedgerEntry) Signed() decimal.Decimal {
	if e.Direction == DirectionDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// FoldBalance sums entries, credits positive and debits negative.
func FoldBalance(entries []LedgerEntry) decimal.Decimal {
	sum := decimal.Zero
	for i := range entries {
		sum = sum.Add(entries[i].Signed())
	}
	return sum
}

// ReversalNote is the default note attached to a reversing entry.
func ReversalNote(entryID uuid.UUID) string {
	return "Reversal of " + entryID.String()
}
