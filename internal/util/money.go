// Package util provides common utility functions for money handling.
package util

import "github.com/shopspring/decimal"

// RoundToCent rounds an amount to two decimal places, half away from zero.
// Broker stakes must be penny-accurate; compounded multiplier stakes like
// 1 × 2.5^3 = 15.625 become 15.63 on the wire.
func RoundToCent(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ClampStake bounds a stake to the broker's accepted range. Stakes below min
// snap to min; a non-positive max means no upper bound.
func ClampStake(stake, min, max decimal.Decimal) decimal.Decimal {
	if stake.LessThan(min) {
		return min
	}
	if max.Sign() > 0 && stake.GreaterThan(max) {
		return max
	}
	return stake
}
