package scoring

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/trustgate/internal/model"
)

// SubmitResult is the acknowledged outcome of one signal submission.
// Dampening is visible here (and in the evidence record), never hidden.
type SubmitResult struct {
	AckID       string     `json:"ack_id"`
	EntityID    string     `json:"entity_id"`
	ScoreBefore int        `json:"score_before"`
	ScoreAfter  int        `json:"score_after"`
	Tier        model.Tier `json:"tier"`
	Flagged     bool       `json:"flagged"`
	Multiplier  float64    `json:"multiplier"`
	Reason      string     `json:"reason,omitempty"`
}

// Engine is the trust scorer: it ingests signals, maintains per-entity
// scores, and serves bounded-staleness snapshots to readers.
//
// Profile mutation is serialized per entity via keyed locks and fully
// parallel across entities. The score itself is derived state: it is
// always recomputable from the signal history plus a reference time.
type Engine struct {
	cfg   *Config
	store *Store

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	snapMu sync.RWMutex
	snaps  map[string]model.TrustSnapshot
}

// NewEngine creates a scoring engine over the given store.
func NewEngine(cfg *Config, store *Store) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{
		cfg:   cfg,
		store: store,
		locks: make(map[string]*sync.Mutex),
		snaps: make(map[string]model.TrustSnapshot),
	}
}

// Config returns the engine's scoring configuration.
func (e *Engine) Config() *Config { return e.cfg }

func (e *Engine) lockFor(entityID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mu, ok := e.locks[entityID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[entityID] = mu
	}
	return mu
}

// Submit validates and applies one signal. The anti-gaming verdict is
// fixed here and persisted with the row, so later recomputation sees
// exactly what the live path saw. Never returns an error for dampened
// signals — dampening is a recorded outcome, not a failure.
func (e *Engine) Submit(sig model.Signal) (*SubmitResult, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}
	spec, ok := e.cfg.Spec(sig.Category, sig.Type)
	if !ok {
		return nil, &model.ValidationError{
			Code:    model.CodeInvalidSignal,
			Message: fmt.Sprintf("unknown signal type %q in category %q", sig.Type, sig.Category),
		}
	}
	if sig.Value < spec.Min || sig.Value > spec.Max {
		return nil, &model.ValidationError{
			Code:    model.CodeInvalidSignal,
			Message: fmt.Sprintf("value %g outside declared range [%g,%g] for %q", sig.Value, spec.Min, spec.Max, sig.Type),
		}
	}
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now().UTC()
	}

	mu := e.lockFor(sig.EntityID)
	mu.Lock()
	defer mu.Unlock()

	if err := e.store.EnsureEntity(sig.EntityID, sig.Timestamp); err != nil {
		return nil, err
	}

	history, err := e.store.SignalsUpTo(sig.EntityID, sig.Timestamp)
	if err != nil {
		return nil, err
	}
	before, _ := computeScore(history, sig.Timestamp, e.cfg)

	verdict := assessSignal(history, sig, e.cfg)
	row := StoredSignal{Signal: sig, Flagged: verdict.Flagged, Multiplier: verdict.Multiplier}
	if err := e.store.AppendSignal(row); err != nil {
		return nil, err
	}

	after, tier := computeScore(append(history, row), sig.Timestamp, e.cfg)
	e.cacheSnapshot(sig.EntityID, after, tier, sig.Timestamp)

	return &SubmitResult{
		AckID:       uuid.NewString(),
		EntityID:    sig.EntityID,
		ScoreBefore: before,
		ScoreAfter:  after,
		Tier:        tier,
		Flagged:     verdict.Flagged,
		Multiplier:  verdict.Multiplier,
		Reason:      strings.Join(verdict.Reasons, "; "),
	}, nil
}

// ComputeAt recomputes (score, tier) as of an arbitrary reference time.
// Suspended entities score zero until reinstated.
func (e *Engine) ComputeAt(entityID string, at time.Time) (int, model.Tier, error) {
	suspended, err := e.store.Suspended(entityID)
	if err != nil {
		return 0, 0, err
	}
	if suspended {
		return 0, model.TierRestricted, nil
	}
	history, err := e.store.SignalsUpTo(entityID, at)
	if err != nil {
		return 0, 0, err
	}
	score, tier := computeScore(history, at, e.cfg)
	if cap, ok, err := e.store.ScoreCap(entityID); err != nil {
		return 0, 0, err
	} else if ok && score > cap {
		score = cap
		tier = model.TierForScore(score)
	}
	return score, tier, nil
}

// Snapshot returns a score snapshot no older than maxAge, recomputing
// when the cache is stale. Readers never block a concurrent writer
// beyond the per-entity lock held during recompute.
func (e *Engine) Snapshot(entityID string, maxAge time.Duration) (model.TrustSnapshot, error) {
	now := time.Now().UTC()

	e.snapMu.RLock()
	snap, ok := e.snaps[entityID]
	e.snapMu.RUnlock()
	if ok && now.Sub(time.Unix(snap.ComputedAt, 0)) <= maxAge {
		return snap, nil
	}

	score, tier, err := e.ComputeAt(entityID, now)
	if err != nil {
		return model.TrustSnapshot{}, &model.AvailabilityError{
			Code:    model.CodeStaleTrustScore,
			Message: fmt.Sprintf("failed to refresh score for %q", entityID),
			Err:     err,
		}
	}
	return e.cacheSnapshot(entityID, score, tier, now), nil
}

func (e *Engine) cacheSnapshot(entityID string, score int, tier model.Tier, at time.Time) model.TrustSnapshot {
	snap := model.TrustSnapshot{
		EntityID:   entityID,
		Score:      score,
		Tier:       tier,
		ComputedAt: at.Unix(),
	}
	e.snapMu.Lock()
	e.snaps[entityID] = snap
	e.snapMu.Unlock()
	return snap
}

// Suspend soft-suspends an entity. Its profile and history remain.
func (e *Engine) Suspend(entityID string) error {
	mu := e.lockFor(entityID)
	mu.Lock()
	defer mu.Unlock()
	if err := e.store.SetSuspended(entityID, true); err != nil {
		return err
	}
	e.cacheSnapshot(entityID, 0, model.TierRestricted, time.Now().UTC())
	return nil
}

// Reinstate lifts a suspension.
func (e *Engine) Reinstate(entityID string) error {
	mu := e.lockFor(entityID)
	mu.Lock()
	defer mu.Unlock()
	if err := e.store.SetSuspended(entityID, false); err != nil {
		return err
	}
	e.snapMu.Lock()
	delete(e.snaps, entityID)
	e.snapMu.Unlock()
	return nil
}

// Merge folds src into dst. Trust is non-transferable upward: the
// surviving entity's score is durably capped at the lower of the two
// prior scores, and the source entity is suspended.
func (e *Engine) Merge(src, dst string) (int, error) {
	// Lock ordering by entity ID avoids deadlock on concurrent merges.
	first, second := src, dst
	if first > second {
		first, second = second, first
	}
	muA := e.lockFor(first)
	muA.Lock()
	defer muA.Unlock()
	muB := e.lockFor(second)
	muB.Lock()
	defer muB.Unlock()

	now := time.Now().UTC()
	srcScore, _, err := e.computeLocked(src, now)
	if err != nil {
		return 0, err
	}
	dstScore, _, err := e.computeLocked(dst, now)
	if err != nil {
		return 0, err
	}

	floor := srcScore
	if dstScore < floor {
		floor = dstScore
	}

	if err := e.store.MarkMerged(src, dst); err != nil {
		return 0, err
	}
	if err := e.store.SetSuspended(src, true); err != nil {
		return 0, err
	}
	if err := e.store.SetScoreCap(dst, floor); err != nil {
		return 0, err
	}

	tier := model.TierForScore(floor)
	e.cacheSnapshot(dst, floor, tier, now)
	e.cacheSnapshot(src, 0, model.TierRestricted, now)
	return floor, nil
}

func (e *Engine) computeLocked(entityID string, at time.Time) (int, model.Tier, error) {
	if err := e.store.EnsureEntity(entityID, at); err != nil {
		return 0, 0, err
	}
	history, err := e.store.SignalsUpTo(entityID, at)
	if err != nil {
		return 0, 0, err
	}
	score, tier := computeScore(history, at, e.cfg)
	if cap, ok, err := e.store.ScoreCap(entityID); err != nil {
		return 0, 0, err
	} else if ok && score > cap {
		score = cap
		tier = model.TierForScore(score)
	}
	return score, tier, nil
}

// flagActiveWindow is how long an anti-gaming flag keeps elevating the
// entity's evaluation risk after the flagged signal.
const flagActiveWindow = 7 * 24 * time.Hour

// RecentlyFlagged reports whether the entity carries an active
// anti-gaming flag. Feeds the gate's anomaly risk factor.
func (e *Engine) RecentlyFlagged(entityID string) (bool, error) {
	return e.store.HasFlaggedSince(entityID, time.Now().UTC().Add(-flagActiveWindow))
}
