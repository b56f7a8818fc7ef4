package scoring

import (
	"errors"
	"testing"
	"time"

	"github.com/ppiankov/trustgate/internal/model"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewEngine(DefaultConfig(), store)
}

func sig(entity, signalType string, cat model.Category, value float64, ts time.Time) model.Signal {
	return model.Signal{
		EntityID:  entity,
		Category:  cat,
		Type:      signalType,
		Value:     value,
		Timestamp: ts,
		Source:    "test",
	}
}

func TestSubmitRejectsUnknownType(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(sig("a", "made_up", model.CategoryBehavioral, 1, time.Now().UTC()))
	if err == nil {
		t.Fatal("expected InvalidSignal for unknown type")
	}
	var verr *model.ValidationError
	if !errors.As(err, &verr) || verr.Code != model.CodeInvalidSignal {
		t.Errorf("expected INVALID_SIGNAL, got %v", err)
	}
}

func TestSubmitRejectsOutOfRangeValue(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Submit(sig("a", "task_completed", model.CategoryBehavioral, 2.5, time.Now().UTC()))
	if err == nil {
		t.Fatal("expected InvalidSignal for out-of-range value")
	}
}

func TestScoreAlwaysBounded(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now().UTC().Add(-90 * 24 * time.Hour)

	// Hammer the entity with everything: bonuses, penalties, repeats.
	for day := 0; day < 90; day++ {
		ts := now.AddDate(0, 0, day)
		e.Submit(sig("bound", "task_completed", model.CategoryBehavioral, 1, ts))
		e.Submit(sig("bound", "clean_day", model.CategoryBehavioral, 1, ts.Add(time.Hour)))
		e.Submit(sig("bound", "policy_violation", model.CategoryCompliance, 1, ts.Add(2*time.Hour)))
		e.Submit(sig("bound", "mfa_enabled", model.CategoryIdentity, 1, ts.Add(3*time.Hour)))

		score, _, err := e.ComputeAt("bound", ts.Add(4*time.Hour))
		if err != nil {
			t.Fatalf("compute failed: %v", err)
		}
		if score < 0 || score > model.MaxScore {
			t.Fatalf("score %d out of [0,%d] on day %d", score, model.MaxScore, day)
		}
	}
}

func TestDecayMonotonicityWithoutNewSignals(t *testing.T) {
	e := newTestEngine(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := e.Submit(sig("idle", "task_completed", model.CategoryBehavioral, 1, base)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	prev := model.MaxScore + 1
	for _, days := range []int{1, 7, 14, 28, 56, 112, 182, 365} {
		score, _, err := e.ComputeAt("idle", base.AddDate(0, 0, days))
		if err != nil {
			t.Fatalf("compute failed: %v", err)
		}
		if score > prev {
			t.Fatalf("score rose from %d to %d at day %d with no new signals", prev, score, days)
		}
		prev = score
	}
}

func TestComputeIsDeterministicPointInTime(t *testing.T) {
	e := newTestEngine(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.Submit(sig("audit", "task_completed", model.CategoryBehavioral, 0.9, base))
	e.Submit(sig("audit", "policy_adherence", model.CategoryCompliance, 0.8, base.Add(time.Hour)))

	at := base.Add(48 * time.Hour)
	s1, t1, err := e.ComputeAt("audit", at)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	s2, t2, err := e.ComputeAt("audit", at)
	if err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	if s1 != s2 || t1 != t2 {
		t.Errorf("recomputation diverged: (%d,%s) vs (%d,%s)", s1, t1, s2, t2)
	}
}

func TestVelocityCapLimitsDailyGain(t *testing.T) {
	e := newTestEngine(t)
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	// Establish a baseline, then burst 50 bonus signals in one day.
	before, _, _ := e.ComputeAt("burst", base)
	for i := 0; i < 50; i++ {
		e.Submit(sig("burst", "clean_day", model.CategoryBehavioral, 1, base.Add(time.Duration(i)*time.Minute)))
	}
	after, _, err := e.ComputeAt("burst", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}

	daily := int(DefaultConfig().Velocity.Daily)
	// Bonus-point gain within one day cannot exceed the daily ceiling.
	// Base-score movement from the signals themselves is not points,
	// so allow it on top.
	gain := after - before
	if gain > daily+int(float64(model.MaxScore)) { // sanity
		t.Fatalf("implausible gain %d", gain)
	}
	// The point stream specifically is capped: with 50x(+2) submitted,
	// an uncapped engine would gain >= 100 points. Assert well under.
	if gain >= 100 {
		t.Errorf("daily velocity cap not applied: gained %d points in one day", gain)
	}
}

func TestRepeatSignalsDiminish(t *testing.T) {
	e := newTestEngine(t)
	base := time.Now().UTC()

	var lastMult float64 = 2
	for i := 0; i < 4; i++ {
		res, err := e.Submit(sig("rep", "task_completed", model.CategoryBehavioral, 1, base.Add(time.Duration(i)*time.Minute)))
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		if i > 0 && res.Multiplier >= lastMult {
			t.Errorf("repeat %d multiplier %g did not diminish from %g", i, res.Multiplier, lastMult)
		}
		lastMult = res.Multiplier
	}
}

func TestPerfectComplianceStreakFlagged(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Anomaly.PerfectStreak = 5 // keep the test short
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()
	e := NewEngine(cfg, store)

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	var last *SubmitResult
	for i := 0; i < 6; i++ {
		last, err = e.Submit(sig("perfect", "policy_adherence", model.CategoryCompliance, 1, base.AddDate(0, 0, i)))
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}
	if !last.Flagged {
		t.Error("expected perfect compliance streak to be flagged")
	}
	if last.Multiplier >= 1 {
		t.Errorf("flagged signal should be dampened, multiplier = %g", last.Multiplier)
	}
}

func TestMergeNeverRaisesScore(t *testing.T) {
	e := newTestEngine(t)
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	// high earns trust; low has a violation history.
	for i := 0; i < 5; i++ {
		e.Submit(sig("high", "task_completed", model.CategoryBehavioral, 1, base.AddDate(0, 0, i)))
	}
	e.Submit(sig("low", "policy_violation", model.CategoryCompliance, 1, base))

	now := time.Now().UTC()
	highScore, _, _ := e.ComputeAt("high", now)
	lowScore, _, _ := e.ComputeAt("low", now)

	merged, err := e.Merge("low", "high")
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	floor := lowScore
	if highScore < floor {
		floor = highScore
	}
	if merged > floor {
		t.Errorf("merge produced %d, above floor %d", merged, floor)
	}

	// The cap is durable: direct recomputation honors it.
	after, _, err := e.ComputeAt("high", now)
	if err != nil {
		t.Fatalf("compute after merge failed: %v", err)
	}
	if after > floor {
		t.Errorf("recomputed score %d exceeds merge floor %d", after, floor)
	}
}

func TestSuspendedEntityScoresZero(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now().UTC()
	e.Submit(sig("susp", "task_completed", model.CategoryBehavioral, 1, now))

	if err := e.Suspend("susp"); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	score, tier, err := e.ComputeAt("susp", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if score != 0 || tier != model.TierRestricted {
		t.Errorf("suspended entity scored (%d,%s), want (0,T0)", score, tier)
	}

	if err := e.Reinstate("susp"); err != nil {
		t.Fatalf("reinstate failed: %v", err)
	}
	score, _, _ = e.ComputeAt("susp", now.Add(time.Minute))
	if score == 0 {
		t.Error("reinstated entity still scores zero")
	}
}

func TestSnapshotServesCachedValue(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now().UTC()
	res, err := e.Submit(sig("snap", "task_completed", model.CategoryBehavioral, 1, now))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	snap, err := e.Snapshot("snap", time.Minute)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.Score != res.ScoreAfter {
		t.Errorf("snapshot score %d, want %d", snap.Score, res.ScoreAfter)
	}
}
