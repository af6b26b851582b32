package lmsr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceAtZeroSharesIsHalf(t *testing.T) {
	assert.Equal(t, 0.5, PriceYes(0, 0, 100))
	assert.Equal(t, 0.5, PriceNo(0, 0, 100))
	// Equal non-zero shares also price at 0.5.
	assert.InDelta(t, 0.5, PriceYes(5000, 5000, 100), 1e-12)
}

func TestBuyingMovesPrice(t *testing.T) {
	b := 100.0
	p0 := PriceYes(0, 0, b)

	pAfterYes := PriceYes(50, 0, b)
	assert.Greater(t, pAfterYes, p0, "buying YES must raise p_yes")

	pAfterNo := PriceYes(0, 50, b)
	assert.Less(t, pAfterNo, p0, "buying NO must lower p_yes")

	assert.InDelta(t, 1.0, PriceYes(50, 0, b)+PriceNo(50, 0, b), 1e-12)
}

func TestCostMonotone(t *testing.T) {
	b := 100.0
	prev := Cost(0, 0, b)
	for q := 10.0; q <= 1000; q += 10 {
		c := Cost(q, 0, b)
		require.GreaterOrEqual(t, c, prev, "cost must be non-decreasing in qYes")
		prev = c
	}
	prev = Cost(500, 0, b)
	for q := 10.0; q <= 1000; q += 10 {
		c := Cost(500, q, b)
		require.GreaterOrEqual(t, c, prev, "cost must be non-decreasing in qNo")
		prev = c
	}
}

func TestCostToBuyNonNegative(t *testing.T) {
	b := 50.0
	for _, tc := range []struct{ qy, qn, sh float64 }{
		{0, 0, 1},
		{100, 30, 25},
		{30, 100, 25},
		{0, 0, 0.000001},
		{1e6, 0, 100},
	} {
		assert.GreaterOrEqual(t, CostToBuy(tc.qy, tc.qn, b, true, tc.sh), 0.0)
		assert.GreaterOrEqual(t, CostToBuy(tc.qy, tc.qn, b, false, tc.sh), 0.0)
	}
}

func TestSellReversesBuy(t *testing.T) {
	b := 100.0
	cost := CostToBuy(0, 0, b, true, 40)
	payout := PayoutForSell(40, 0, b, true, 40)
	assert.InDelta(t, cost, payout, 1e-9, "selling all bought shares refunds the buy cost")
}

func TestPayoutBounded(t *testing.T) {
	b := 100.0
	payout := PayoutForSell(200, 150, b, true, 80)
	assert.GreaterOrEqual(t, payout, 0.0)
	assert.LessOrEqual(t, payout, Cost(200, 150, b))
}

func TestSaturationNoOverflow(t *testing.T) {
	b := 10.0
	// Exponent ~1e5: naive exp overflows, the shifted form must not.
	c := Cost(1e6, 0, b)
	require.False(t, math.IsInf(c, 0))
	require.False(t, math.IsNaN(c))
	assert.InDelta(t, 1e6, c, 1e-6, "cost collapses to the dominant side")

	assert.Equal(t, 1.0, PriceYes(1e6, 0, b))
	assert.Equal(t, 0.0, PriceYes(0, 1e6, b))
}

func TestPriceClamped(t *testing.T) {
	for x := -2000.0; x <= 2000; x += 37 {
		p := PriceYes(x, -x, 7)
		require.GreaterOrEqual(t, p, 0.0)
		require.LessOrEqual(t, p, 1.0)
	}
}
