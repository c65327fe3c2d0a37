// Package money converts between integer cents and the decimal strings used
// on the wire.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxCents bounds any single amount accepted on the wire (one billion in
// major units). Line and order totals stay well inside int64 under it.
const MaxCents int64 = 100_000_000_000

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(MaxCents)
)

// FormatCents renders cents as a two-decimal string, e.g. 1050 -> "10.50".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ParseCents parses a decimal amount into cents. More than two fractional
// digits is rejected rather than rounded.
func ParseCents(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, fmt.Errorf("amount is required")
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return 0, fmt.Errorf("amount %q has more than two decimal places", value)
	}
	cents := amount.Mul(hundred)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("invalid amount %q", value)
	}
	if cents.Abs().GreaterThan(maxCents) {
		return 0, fmt.Errorf("amount %q exceeds the maximum of %s", value, FormatCents(MaxCents))
	}
	return cents.IntPart(), nil
}

// PercentOf returns bps basis points of cents, rounded half away from zero.
func PercentOf(cents int64, bps int) int64 {
	if bps <= 0 || cents <= 0 {
		return 0
	}
	return decimal.NewFromInt(cents).
		Mul(decimal.NewFromInt(int64(bps))).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()
}
