package scoring

import (
	"fmt"
	"time"

	"github.com/ppiankov/trustgate/internal/model"
)

// minBaselineSignals is the minimum trailing history before the rate
// detector has a usable baseline.
const minBaselineSignals = 10

// gamingVerdict is the anti-gaming assessment for one incoming signal.
// Dampening is never a hard error: the verdict always yields a usable
// multiplier, and the flag travels to the evidence chain.
type gamingVerdict struct {
	Flagged    bool
	Multiplier float64
	Reasons    []string
}

// assessSignal applies diminishing returns and anomaly detection to an
// incoming signal given the entity's prior history. Deterministic: the
// verdict depends only on history, the signal, and its timestamp, and
// is persisted on the signal row so recomputation sees the same values.
func assessSignal(history []StoredSignal, sig model.Signal, cfg *Config) gamingVerdict {
	v := gamingVerdict{Multiplier: 1.0}

	// Diminishing returns: each repeat of the same signal type within
	// the repeat window decays the weight multiplicatively.
	repeats := 0
	windowStart := sig.Timestamp.Add(-cfg.RepeatWindow.Std())
	for _, h := range history {
		if h.Type == sig.Type && !h.Timestamp.Before(windowStart) {
			repeats++
		}
	}
	for i := 0; i < repeats; i++ {
		v.Multiplier *= cfg.RepeatDecay
	}
	if repeats > 0 {
		v.Reasons = append(v.Reasons, fmt.Sprintf("repeat x%d within %s", repeats, cfg.RepeatWindow))
	}

	if rateAnomaly(history, sig.Timestamp, cfg) {
		v.Flagged = true
		v.Multiplier *= cfg.Anomaly.DampenFactor
		v.Reasons = append(v.Reasons, fmt.Sprintf("rate exceeds %.0fx trailing average", cfg.Anomaly.RateFactor))
	}

	if perfectComplianceAnomaly(history, sig, cfg) {
		v.Flagged = true
		v.Multiplier *= cfg.Anomaly.DampenFactor
		v.Reasons = append(v.Reasons, fmt.Sprintf("perfect compliance streak >= %d", cfg.Anomaly.PerfectStreak))
	}

	return v
}

// rateAnomaly reports whether today's signal volume exceeds the
// configured factor over the entity's trailing daily average.
// Entities with under a day of history have no baseline and never trip.
func rateAnomaly(history []StoredSignal, now time.Time, cfg *Config) bool {
	if len(history) == 0 {
		return false
	}
	trailingStart := now.AddDate(0, 0, -cfg.Anomaly.TrailingWindow)
	dayStart := now.Add(-24 * time.Hour)

	trailing, today := 0, 0
	for _, h := range history {
		if h.Timestamp.Before(trailingStart) {
			continue
		}
		trailing++
		if !h.Timestamp.Before(dayStart) {
			today++
		}
	}
	baseline := trailing - today
	// Too little history to call anything anomalous.
	if baseline < minBaselineSignals {
		return false
	}
	dailyAvg := float64(baseline) / float64(cfg.Anomaly.TrailingWindow)
	if dailyAvg <= 0 {
		return false
	}
	return float64(today+1) > cfg.Anomaly.RateFactor*dailyAvg
}

// perfectComplianceAnomaly reports whether the entity has an unusually
// long unbroken run of maximum-value compliance signals ending in sig.
// A perfect record over a long window is itself a gaming indicator.
func perfectComplianceAnomaly(history []StoredSignal, sig model.Signal, cfg *Config) bool {
	if sig.Category != model.CategoryCompliance {
		return false
	}
	spec, ok := cfg.Spec(sig.Category, sig.Type)
	if !ok || sig.Value < spec.Max {
		return false
	}

	streak := 1 // the incoming signal itself
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.Category != model.CategoryCompliance {
			continue
		}
		hs, ok := cfg.Spec(h.Category, h.Type)
		if !ok || h.Value < hs.Max {
			return false
		}
		streak++
		if streak >= cfg.Anomaly.PerfectStreak {
			return true
		}
	}
	return streak >= cfg.Anomaly.PerfectStreak
}
