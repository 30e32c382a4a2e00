package main

import "github.com/shopspring/decimal"

// decimalFromFloat converts config threshold values to decimal, rounded to
// cents so float noise never leaks into the session accounting.
func decimalFromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}
