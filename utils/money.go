package utils

import "github.com/shopspring/decimal"

// Round2 rounds x to 2 decimal places (half away from zero).
func Round2(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}
