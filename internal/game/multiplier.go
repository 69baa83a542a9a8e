package game

import (
	"math"
	"time"
)

// MultiplierAt maps time elapsed since liftoff to the displayed multiplier:
// floor(exp(growthRate * elapsedMs) * 100) / 100. Pure and monotonic, so the
// crash check and the display always agree bit-for-bit on the same inputs.
func MultiplierAt(elapsed time.Duration, growthRate float64) float64 {
	if elapsed < 0 {
		return 1.00
	}
	ms := float64(elapsed.Milliseconds())
	return Floor2(math.Exp(growthRate * ms))
}

// Floor2 rounds a monetary or multiplier value down to 2 decimal places.
func Floor2(v float64) float64 {
	return math.Floor(v*100) / 100
}
