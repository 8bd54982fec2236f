package discount

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ValidatePercentage parses a raw percentage value and enforces the strict
// open interval (0, 100). Both 0 and 100 are rejected.
func ValidatePercentage(raw string) (decimal.Decimal, error) {
	pct, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, &ValidationError{Msg: "Discount must be a number"}
	}
	if !pct.IsPositive() || pct.GreaterThanOrEqual(hundred) {
		return decimal.Decimal{}, &ValidationError{Msg: "Discount must be between 0 and 100"}
	}
	return pct, nil
}

// ApplyPercentDiscount computes price * (100 - percent) / 100, rounded to
// 2 fractional digits with ties going away from zero (9.545 -> 9.55).
func ApplyPercentDiscount(price, percent decimal.Decimal) decimal.Decimal {
	return price.Mul(hundred.Sub(percent)).Div(hundred).Round(2)
}
