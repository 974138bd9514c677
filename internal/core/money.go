package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string into a positive monetary amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Zero and
// negative values are rejected: a transaction amount is always positive, the
// sign comes from the transaction kind.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty amount", ErrInvalidInput)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q", ErrInvalidInput, s)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidInput, d)
	}
	return d, nil
}

// ParseBalance converts a decimal string into a signed balance. Unlike a
// transaction amount, a declared balance may be zero or negative.
func ParseBalance(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty balance", ErrInvalidInput)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: balance %q", ErrInvalidInput, s)
	}
	return d, nil
}

// Round2 rounds a monetary value to two decimal places for display.
// Internal arithmetic keeps full precision; rounding happens at the edge only.
func Round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
