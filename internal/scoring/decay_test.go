package scoring

import (
	"math"
	"testing"
)

func TestDecayMilestones(t *testing.T) {
	cases := []struct {
		days int
		want float64
	}{
		{0, 1.00},
		{3, 1.00},
		{6, 1.00},
		{7, 0.93},
		{13, 0.93},
		{14, 0.87},
		{28, 0.80},
		{56, 0.70},
		{112, 0.58},
		{182, 0.50},
	}
	for _, c := range cases {
		if got := DecayFactor(c.days); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("DecayFactor(%d) = %g, want %g", c.days, got, c.want)
		}
	}
}

func TestDecayHalfLifeBeyondMilestones(t *testing.T) {
	// Day 364 is two half-lives: factor must be 0.25.
	if got := DecayFactor(364); math.Abs(got-0.25) > 1e-9 {
		t.Errorf("DecayFactor(364) = %g, want 0.25", got)
	}
}

func TestDecayMonotonic(t *testing.T) {
	prev := DecayFactor(0)
	for d := 1; d <= 730; d++ {
		cur := DecayFactor(d)
		if cur > prev {
			t.Fatalf("decay increased at day %d: %g > %g", d, cur, prev)
		}
		prev = cur
	}
}

func TestDecayNegativeDaysClamped(t *testing.T) {
	if got := DecayFactor(-5); got != 1.0 {
		t.Errorf("DecayFactor(-5) = %g, want 1.0", got)
	}
}
