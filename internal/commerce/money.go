// Package commerce holds checkout arithmetic and the scoring heuristics the
// tool handlers report to agents. Amounts are stored as integer cents and
// computed with decimal arithmetic.
package commerce

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FromCents converts minor units to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// ToCents rounds d half away from zero to whole cents.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// ParseAmount parses a decimal string such as "19.99" into cents.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return ToCents(d), nil
}

// FormatCents renders cents with exactly two decimals.
func FormatCents(cents int64) string {
	return FromCents(cents).StringFixed(2)
}

// FloatToCents converts a float amount, as sent in JSON bodies, to cents.
func FloatToCents(f float64) int64 {
	return ToCents(decimal.NewFromFloat(f))
}
