package money

import (
	"fmt"
	"math"
)

// Money is an integer-cents amount. All game payouts floor toward zero so the
// house edge baked into the crash-point math is never rounded away.
type Money struct {
	cents int64
}

var ErrNegativeAmount = fmt.Errorf("money: amount must not be negative")

func FromCents(cents int64) (Money, error) {
	if cents < 0 {
		return Money{}, ErrNegativeAmount
	}
	return Money{cents: cents}, nil
}

// MustFromCents panics on a negative amount. For constants and tests.
func MustFromCents(cents int64) Money {
	m, err := FromCents(cents)
	if err != nil {
		panic(err)
	}
	return m
}

func Zero() Money { return Money{} }

func (m Money) Cents() int64 { return m.cents }

func (m Money) IsZero() bool { return m.cents == 0 }

func (m Money) Add(other Money) Money {
	return Money{cents: m.cents + other.cents}
}

// MultiplyByMultiplier returns floor(cents * multiplier). Never rounds up.
func (m Money) MultiplyByMultiplier(multiplier float64) Money {
	if multiplier < 0 {
		multiplier = 0
	}
	return Money{cents: int64(math.Floor(float64(m.cents) * multiplier))}
}

func (m Money) String() string {
	return fmt.Sprintf("%d.%02d", m.cents/100, m.cents%100)
}
