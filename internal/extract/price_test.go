package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in       string
		value    float64
		currency string
	}{
		{"$89.99", 89.99, "USD"},
		{"1,299.99", 1299.99, "USD"},
		{"€1.299,99", 1299.99, "EUR"},
		{"1 299,99 kr", 1299.99, "SEK"},
		{"£45", 45, "GBP"},
		{"¥12800", 12800, "JPY"},
		{"Price: 150.00 USD", 150, "USD"},
		{"EUR 99,90", 99.9, "EUR"},
		{"R$ 2.499,00", 2499, "BRL"},
		{"CHF 129.00", 129, "CHF"},
		{"₹2,999", 2999, "INR"},
		{"Now only $1,099", 1099, "USD"},
	}
	for _, tc := range cases {
		value, currency, ok := ParsePrice(tc.in)
		require.True(t, ok, tc.in)
		require.InDelta(t, tc.value, value, 0.001, tc.in)
		require.Equal(t, tc.currency, currency, tc.in)
	}
}

func TestParsePriceRejectsNonNumeric(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "call for price", "$", "sold out"} {
		_, _, ok := ParsePrice(in)
		require.False(t, ok, in)
	}
}

func TestParsePriceDefaultsToUSD(t *testing.T) {
	t.Parallel()

	_, currency, ok := ParsePrice("149.50")
	require.True(t, ok)
	require.Equal(t, "USD", currency)
}
