package scoring

import (
	"sort"
	"time"

	"github.com/ppiankov/trustgate/internal/model"
)

// computeScore derives (score, tier) from a signal history and a
// reference time. Pure: identical inputs always produce identical
// outputs, which is what makes point-in-time recomputation and audit
// possible. Wall-clock time never enters here.
func computeScore(history []StoredSignal, at time.Time, cfg *Config) (int, model.Tier) {
	if len(history) == 0 {
		score := clampScore(cfg.InitialScore)
		return score, model.TierForScore(score)
	}

	base := baseScore(history, cfg)
	decay := DecayFactor(daysSinceLastPositive(history, at, cfg))
	adjust := pointAdjustments(history, cfg)

	score := clampScore(int(base*decay*float64(model.MaxScore)) + adjust)
	return score, model.TierForScore(score)
}

// baseScore is the weighted category aggregate in [0,1]. Every signal
// type starts at the neutral prior (InitialScore/1000); observations
// pull its aggregate toward their normalized mean, weighted by the
// per-signal anti-gaming multipliers. Types nobody has emitted stay at
// the prior, so a single maxed signal cannot dominate a sparse history.
func baseScore(history []StoredSignal, cfg *Config) float64 {
	type acc struct{ sum, weight float64 }
	byType := make(map[model.Category]map[string]*acc)

	for _, sig := range history {
		spec, ok := cfg.Spec(sig.Category, sig.Type)
		if !ok || spec.Weight == 0 {
			continue
		}
		if byType[sig.Category] == nil {
			byType[sig.Category] = make(map[string]*acc)
		}
		a := byType[sig.Category][sig.Type]
		if a == nil {
			a = &acc{}
			byType[sig.Category][sig.Type] = a
		}
		w := sig.Multiplier
		if w <= 0 {
			w = 1
		}
		a.sum += normalize(sig.Value, spec) * w
		a.weight += w
	}

	prior := float64(cfg.InitialScore) / float64(model.MaxScore)
	priorW := cfg.PriorWeight
	if priorW <= 0 {
		priorW = 1
	}

	var total float64
	for cat, cs := range cfg.Categories {
		var catSum float64
		for name, spec := range cs.Signals {
			agg := prior
			if a, ok := byType[cat][name]; ok && a.weight > 0 {
				agg = (prior*priorW + a.sum) / (priorW + a.weight)
			}
			catSum += agg * spec.Weight
		}
		total += catSum * cs.Weight
	}
	return total
}

// normalize maps a raw signal value into [0,1] per its declared range;
// inverted types (violations, risk) read high raw values as bad.
func normalize(value float64, spec SignalSpec) float64 {
	if spec.Max <= spec.Min {
		return 0
	}
	n := (value - spec.Min) / (spec.Max - spec.Min)
	if n < 0 {
		n = 0
	}
	if n > 1 {
		n = 1
	}
	if spec.Invert {
		n = 1 - n
	}
	return n
}

// daysSinceLastPositive returns whole days from the most recent
// positive signal to at. No positive signal ever: decay runs from the
// first signal.
func daysSinceLastPositive(history []StoredSignal, at time.Time, cfg *Config) int {
	var last time.Time
	for _, sig := range history {
		spec, ok := cfg.Spec(sig.Category, sig.Type)
		if ok && spec.Positive && sig.Timestamp.After(last) {
			last = sig.Timestamp
		}
	}
	if last.IsZero() {
		last = history[0].Timestamp
	}
	d := at.Sub(last)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// pointAdjustments sums bonus and penalty points across the history.
// One-time signal types count once regardless of repetition. Positive
// points are velocity-capped: within any calendar day (and rolling
// week/month) the cumulative positive delta cannot exceed the
// configured ceilings; excess is dropped, which is how "+2/day over 30
// days" accrues exactly 60 points and a burst of bonus signals does not.
func pointAdjustments(history []StoredSignal, cfg *Config) int {
	sorted := make([]StoredSignal, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var (
		total        float64
		seenOneTime  = make(map[string]bool)
		dayTotals    = make(map[string]float64) // positive points granted per UTC day
	)

	grantPositive := func(ts time.Time, points float64) float64 {
		day := ts.UTC().Format("2006-01-02")

		remaining := cfg.Velocity.Daily - dayTotals[day]
		if cfg.Velocity.Weekly > 0 {
			if r := cfg.Velocity.Weekly - windowTotal(dayTotals, ts, 7); r < remaining {
				remaining = r
			}
		}
		if cfg.Velocity.Monthly > 0 {
			if r := cfg.Velocity.Monthly - windowTotal(dayTotals, ts, 30); r < remaining {
				remaining = r
			}
		}
		if remaining <= 0 {
			return 0
		}
		if points > remaining {
			points = remaining
		}
		dayTotals[day] += points
		return points
	}

	for _, sig := range sorted {
		spec, ok := cfg.Spec(sig.Category, sig.Type)
		if !ok || spec.Points == 0 {
			continue
		}
		if spec.OneTime {
			if seenOneTime[sig.Type] {
				continue
			}
			seenOneTime[sig.Type] = true
		}

		// One-time bonuses bypass velocity caps: they cannot be
		// repeated, so they cannot be farmed.
		points := spec.Points * sig.Multiplier
		if points > 0 && cfg.Velocity.Daily > 0 && !spec.OneTime {
			points = grantPositive(sig.Timestamp, points)
		}
		total += points
	}

	return int(total)
}

// windowTotal sums positive grants over the trailing n days ending at ts.
func windowTotal(dayTotals map[string]float64, ts time.Time, days int) float64 {
	var sum float64
	day := ts.UTC().Truncate(24 * time.Hour)
	for i := 0; i < days; i++ {
		sum += dayTotals[day.AddDate(0, 0, -i).Format("2006-01-02")]
	}
	return sum
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > model.MaxScore {
		return model.MaxScore
	}
	return score
}
