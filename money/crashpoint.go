package money

import "fmt"

// CrashPoint is the multiplier at which a round terminates. Always >= 1.00
// and quantized to two decimals by the derivation math.
type CrashPoint struct {
	value float64
}

var ErrCrashPointTooLow = fmt.Errorf("money: crash point must be >= 1.00")

func NewCrashPoint(value float64) (CrashPoint, error) {
	if value < 1.00 {
		return CrashPoint{}, ErrCrashPointTooLow
	}
	return CrashPoint{value: value}, nil
}

func (c CrashPoint) Value() float64 { return c.value }

// IsInstant reports an instant crash: the round busts at exactly 1.00 before
// any multiplier growth.
func (c CrashPoint) IsInstant() bool { return c.value == 1.00 }

// ReachedBy reports whether a running multiplier has hit the crash threshold.
func (c CrashPoint) ReachedBy(multiplier float64) bool {
	return multiplier >= c.value
}

func (c CrashPoint) String() string {
	return fmt.Sprintf("%.2fx", c.value)
}
