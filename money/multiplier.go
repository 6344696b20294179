package money

import (
	"math"
	"time"
)

// DefaultGrowthRate is the exponent applied per elapsed millisecond, tuned so
// the multiplier roughly doubles every ~11.5 seconds.
const DefaultGrowthRate = 6.0e-5

// Curve converts elapsed round time into a display multiplier:
// floor(100 * e^(rate*elapsedMs)) / 100. The curve is monotone in elapsed
// time, so successive ticks can never show a decreasing multiplier.
type Curve struct {
	rate float64
}

func NewCurve(rate float64) Curve {
	if rate <= 0 {
		rate = DefaultGrowthRate
	}
	return Curve{rate: rate}
}

// At returns the multiplier after the given elapsed time, quantized to two
// decimals and clamped to a minimum of 1.00.
func (c Curve) At(elapsed time.Duration) float64 {
	ms := float64(elapsed.Milliseconds())
	if ms < 0 {
		ms = 0
	}
	m := math.Floor(100*math.Exp(c.rate*ms)) / 100
	if m < 1.00 {
		m = 1.00
	}
	return m
}
