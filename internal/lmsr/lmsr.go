// Package lmsr implements the logarithmic market scoring rule cost and
// price functions used by the outcome market. All functions are pure;
// share counts and the liquidity parameter are plain float64 here, with
// decimal conversion handled at the market-service boundary.
package lmsr

import "math"

// saturationExponent bounds exponent magnitudes. Beyond this the price is
// treated as fully saturated (0 or 1) and the cost collapses to the
// dominant term, avoiding float overflow at large share imbalances.
const saturationExponent = 130.0

// Cost is C(qYes, qNo) = b·ln(e^(qYes/b) + e^(qNo/b)), computed with a
// log-sum-exp shift so it never overflows for realistic share counts.
func Cost(qYes, qNo, b float64) float64 {
	if b <= 0 {
		return 0
	}
	a := qYes / b
	c := qNo / b
	hi := math.Max(a, c)
	lo := math.Min(a, c)
	d := lo - hi
	if d < -saturationExponent {
		return b * hi
	}
	return b * (hi + math.Log1p(math.Exp(d)))
}

// PriceYes is p_yes = 1 / (1 + e^((qNo − qYes)/b)), clamped to [0, 1] with
// saturation at extreme exponents.
func PriceYes(qYes, qNo, b float64) float64 {
	if b <= 0 {
		return 0.5
	}
	x := (qNo - qYes) / b
	switch {
	case x > saturationExponent:
		return 0
	case x < -saturationExponent:
		return 1
	}
	p := 1 / (1 + math.Exp(x))
	return clamp01(p)
}

// PriceNo is the complementary price.
func PriceNo(qYes, qNo, b float64) float64 {
	return clamp01(1 - PriceYes(qYes, qNo, b))
}

// CostToBuy is C(after) − C(before) for adding shares to one side.
// Always ≥ 0.
func CostToBuy(qYes, qNo, b float64, yes bool, shares float64) float64 {
	before := Cost(qYes, qNo, b)
	var after float64
	if yes {
		after = Cost(qYes+shares, qNo, b)
	} else {
		after = Cost(qYes, qNo+shares, b)
	}
	return math.Max(0, after-before)
}

// PayoutForSell is C(before) − C(after) for removing shares from one side.
// Always ≥ 0 and ≤ C(before).
func PayoutForSell(qYes, qNo, b float64, yes bool, shares float64) float64 {
	before := Cost(qYes, qNo, b)
	var after float64
	if yes {
		after = Cost(qYes-shares, qNo, b)
	} else {
		after = Cost(qYes, qNo-shares, b)
	}
	return math.Max(0, before-after)
}

func clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
