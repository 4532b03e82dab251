package domain

import "github.com/shopspring/decimal"

// MinorUnits is the number of fractional digits carried by every amount.
const MinorUnits = 2

// DefaultCurrency is used when a request omits the currency.
const DefaultCurrency = "USD"

// RoundMinor rounds an amount to the currency's minor unit (half away from zero).
func RoundMinor(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnits)
}

// ParseAmount parses a decimal string and rounds it to cents.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return RoundMinor(d), nil
}

// MustAmount is ParseAmount for constants and tests.
func MustAmount(s string) decimal.Decimal {
	d, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return d
}
