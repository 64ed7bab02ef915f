package repository

import "github.com/shopspring/decimal"

// Amounts are persisted as integer cents so SQL aggregation stays exact;
// models expose decimal.Decimal.

func centsFromDecimal(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func decimalFromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
