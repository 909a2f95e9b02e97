// Package money provides GBP currency calculations and rounding utilities.
package money

import "math"

// RoundHalfUp rounds value to the specified decimals using HALF-UP mode
func RoundHalfUp(value float64, decimals int) float64 {
	mult := math.Pow(10, float64(decimals))
	if value >= 0 {
		return math.Floor(value*mult+0.5) / mult
	}
	return -math.Floor(-value*mult+0.5) / mult
}

// ToPence converts a pound amount to pence for processor APIs that
// take amounts in the smallest currency unit.
func ToPence(pounds float64) int64 {
	if pounds >= 0 {
		return int64(pounds*100.0 + 0.5)
	}
	return -int64(-pounds*100.0 + 0.5)
}

// FromPence converts a pence amount back to pounds.
func FromPence(pence int64) float64 {
	return float64(pence) / 100.0
}
