package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseMoney converts a Shopify decimal string into a nullable decimal. An
// empty string means the field was absent from the payload and maps to the
// invalid (NULL) value rather than zero.
func ParseMoney(value string) (decimal.NullDecimal, error) {
	if value == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parsing money value %q: %w", value, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

// Money wraps a known-present decimal value.
func Money(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
