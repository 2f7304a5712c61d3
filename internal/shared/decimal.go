package shared

import "github.com/shopspring/decimal"

const (
	// MoneyPlaces is the fractional precision of monetary fields.
	MoneyPlaces = 2
	// QuantityPlaces is the fractional precision of quantity fields.
	QuantityPlaces = 4
)

// Money is a monetary amount with full intermediate precision.
type Money = decimal.Decimal

// Quantity is a stock or line quantity.
type Quantity = decimal.Decimal

func init() {
	// Amounts travel as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// RoundMoney rounds half away from zero to two places.
func RoundMoney(d decimal.Decimal) Money {
	return d.Round(MoneyPlaces)
}

// RoundQty rounds half away from zero to four places.
func RoundQty(d decimal.Decimal) Quantity {
	return d.Round(QuantityPlaces)
}

// FitsMoney reports whether d carries no more than two fractional digits.
func FitsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces))
}

// FitsQty reports whether d carries no more than four fractional digits.
func FitsQty(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(QuantityPlaces))
}

// Dec parses a literal, panicking on malformed input. Use for constants and tests.
func Dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// SumMoney adds values exactly and rounds once at the end.
func SumMoney(values ...decimal.Decimal) Money {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return RoundMoney(total)
}
