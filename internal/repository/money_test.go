package repository

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMoneyConversion(t *testing.T) {
	require.EqualValues(t, 1250, centsFromDecimal(decimal.RequireFromString("12.50")))
	require.EqualValues(t, -99, centsFromDecimal(decimal.RequireFromString("-0.99")))
	require.True(t, decimalFromCents(1250).Equal(decimal.RequireFromString("12.50")))
	require.True(t, decimalFromCents(0).IsZero())
}

func TestMoneyRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(-1_000_000_000, 1_000_000_000).Draw(t, "cents")
		if got := centsFromDecimal(decimalFromCents(cents)); got != cents {
			t.Fatalf("cents must round-trip through decimal: %d != %d", got, cents)
		}
	})
}
