package money

import "testing"

import "github.com/stretchr/testify/require"

func TestBands(t *testing.T) {
	lower, upper := Bands(3_450_000, 500) // 5%
	require.Equal(t, Price(3_277_500), lower)
	require.Equal(t, Price(3_622_500), upper)
}

func TestInBand(t *testing.T) {
	lower, upper := Bands(3_450_000, 500)
	require.True(t, InBand(3_622_500, lower, upper))
	require.False(t, InBand(3_700_000, lower, upper))
}

func TestApplyBpsNegative(t *testing.T) {
	require.Equal(t, int64(-10), ApplyBps(10000, -10))
}
