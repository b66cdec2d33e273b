package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

// Parse converts a provider-supplied amount string into a decimal with at
// most two fractional digits. Providers send amounts as JSON strings to
// avoid float drift; anything else is rejected rather than rounded.
func Parse(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if value.Exponent() < -2 {
		return decimal.Zero, ErrTooManyDecimals
	}
	return value, nil
}

// Format renders a balance with exactly two fractional digits.
func Format(value decimal.Decimal) string {
	return value.StringFixed(2)
}

// Direction maps a signed amount to the transaction direction: outflows are
// negative on the wire.
func Direction(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "debit"
	}
	return "credit"
}
