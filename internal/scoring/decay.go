package scoring

import "math"

// decayHalfLifeDays is tuned so the decay factor reaches 0.5 at day 182.
const decayHalfLifeDays = 182.0

// decayMilestones are the stepped decay factors keyed to days since the
// last positive signal. Within a step the factor is flat; beyond the
// last milestone decay continues exponentially with the same half-life.
var decayMilestones = []struct {
	days   int
	factor float64
}{
	{0, 1.00},
	{7, 0.93},
	{14, 0.87},
	{28, 0.80},
	{56, 0.70},
	{112, 0.58},
	{182, 0.50},
}

// DecayFactor returns the multiplier for a score given the number of
// whole days since the entity's last positive signal.
func DecayFactor(days int) float64 {
	if days < 0 {
		days = 0
	}
	if days >= int(decayHalfLifeDays) {
		return math.Pow(0.5, float64(days)/decayHalfLifeDays)
	}
	factor := 1.0
	for _, m := range decayMilestones {
		if days >= m.days {
			factor = m.factor
		}
	}
	return factor
}
