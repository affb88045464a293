package domain

import "math"

// LotPrecision is the decimal rounding granularity applied to volumes and
// profit ratios.
const LotPrecision = 3

// ERound rounds to 10 decimal places to absorb binary floating point noise
// from repeated additions and subtractions of sizes.
func ERound(n float64) float64 {
	return RoundTo(n, 10)
}

// FloorTo truncates n down to the given number of decimal places.
func FloorTo(n float64, places int) float64 {
	p := math.Pow10(places)
	return math.Floor(n*p) / p
}

// CeilTo rounds n up to the given number of decimal places.
func CeilTo(n float64, places int) float64 {
	p := math.Pow10(places)
	return math.Ceil(n*p) / p
}

// RoundTo rounds n half away from zero to the given number of decimal places.
func RoundTo(n float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(n*p) / p
}
