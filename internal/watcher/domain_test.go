package watcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDomain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"https://www.Example.com/product/1", "example.com"},
		{"https://shop.example.com:8443/p", "shop.example.com"},
		{"http://store.co.uk/item?x=1", "store.co.uk"},
		{"https://WWW.SHOP.EXAMPLE.COM", "shop.example.com"},
	}
	for _, tc := range cases {
		got, err := NormalizeDomain(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestNormalizeDomainRejectsHostless(t *testing.T) {
	t.Parallel()

	_, err := NormalizeDomain("not a url")
	require.Error(t, err)

	_, err = NormalizeDomain("/relative/path")
	require.Error(t, err)
}

func TestSnapshotHasSize(t *testing.T) {
	t.Parallel()

	var nilSnap *ProductSnapshot
	require.False(t, nilSnap.HasSize("M"))

	snap := &ProductSnapshot{Sizes: []string{"S", "M"}}
	require.True(t, snap.HasSize("M"))
	require.False(t, snap.HasSize("XL"))
}

func TestRuleSetEmpty(t *testing.T) {
	t.Parallel()

	require.True(t, RuleSet{}.Empty())
	require.False(t, RuleSet{BackInStock: true}.Empty())
	require.False(t, RuleSet{Sizes: []string{"M"}}.Empty())
	v := 10.0
	require.False(t, RuleSet{Price: &PriceRule{Mode: PriceBelow, Value: &v}}.Empty())
}
