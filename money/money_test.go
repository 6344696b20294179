package money

import (
	"testing"
	"time"
)

func TestFromCents_RejectsNegative(t *testing.T) {
	if _, err := FromCents(-1); err == nil {
		t.Fatal("negative cents should be rejected")
	}
	m, err := FromCents(0)
	if err != nil {
		t.Fatalf("zero cents: %v", err)
	}
	if !m.IsZero() {
		t.Error("zero money should report IsZero")
	}
}

func TestMultiplyByMultiplier_Floors(t *testing.T) {
	// 333 * 1.5 = 499.5 -> floor to 499, never round to 500.
	m := MustFromCents(333).MultiplyByMultiplier(1.5)
	if m.Cents() != 499 {
		t.Errorf("333 * 1.5 = %d cents, want 499", m.Cents())
	}
	if got := MustFromCents(100).MultiplyByMultiplier(1.0).Cents(); got != 100 {
		t.Errorf("100 * 1.0 = %d, want 100", got)
	}
	if got := MustFromCents(250).MultiplyByMultiplier(0).Cents(); got != 0 {
		t.Errorf("250 * 0 = %d, want 0", got)
	}
}

func TestNewCrashPoint_Bounds(t *testing.T) {
	if _, err := NewCrashPoint(0.99); err == nil {
		t.Fatal("crash point below 1.00 should be rejected")
	}
	cp, err := NewCrashPoint(1.00)
	if err != nil {
		t.Fatalf("1.00 crash point: %v", err)
	}
	if !cp.IsInstant() {
		t.Error("1.00 crash point should be instant")
	}
	if !cp.ReachedBy(1.00) {
		t.Error("1.00 multiplier should reach a 1.00 crash point")
	}
	cp, _ = NewCrashPoint(2.50)
	if cp.ReachedBy(2.49) {
		t.Error("2.49 should not reach 2.50")
	}
	if !cp.ReachedBy(2.50) {
		t.Error("2.50 should reach 2.50")
	}
}

func TestCurve_MonotoneAndClamped(t *testing.T) {
	c := NewCurve(DefaultGrowthRate)
	if got := c.At(0); got != 1.00 {
		t.Errorf("multiplier at t=0 = %v, want 1.00", got)
	}
	if got := c.At(-time.Second); got != 1.00 {
		t.Errorf("negative elapsed = %v, want 1.00", got)
	}
	prev := 0.0
	for ms := 0; ms <= 30_000; ms += 100 {
		m := c.At(time.Duration(ms) * time.Millisecond)
		if m < prev {
			t.Fatalf("curve not monotone: %v after %v at %dms", m, prev, ms)
		}
		prev = m
	}
	if prev <= 1.00 {
		t.Error("multiplier should grow beyond 1.00 within 30s")
	}
}
