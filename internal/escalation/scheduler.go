package escalation

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/trustgate/internal/constraint"
	"github.com/ppiankov/trustgate/internal/model"
)

// TierReader resolves an entity's current tier for the default_trust
// fallback. Nil readers make default_trust behave as auto_deny.
type TierReader interface {
	CurrentTier(entityID string) (model.Tier, error)
}

// Scheduler owns the deadline timers for pending escalations. The
// store's conditional settle is the arbiter: a timer firing after a
// human resolution (or the reverse) loses the race and does nothing.
type Scheduler struct {
	store *Store
	tiers TierReader

	// OnSettled is invoked exactly once per escalation, after the
	// winning transition has committed. Wired to evidence and alerts.
	OnSettled func(*Escalation, bool)

	mu     sync.Mutex
	timers map[string]*time.Timer
	now    func() time.Time
}

// NewScheduler creates a scheduler over the given store. Call Restore
// afterwards to rearm timers for escalations pending from a previous
// run.
func NewScheduler(store *Store, tiers TierReader) *Scheduler {
	return &Scheduler{
		store:  store,
		tiers:  tiers,
		timers: make(map[string]*time.Timer),
		now:    time.Now,
	}
}

// Open creates a pending escalation from a decision and arms its
// deadline timer.
func (s *Scheduler) Open(dec *model.Decision, spec *constraint.EscalateSpec) (*Escalation, error) {
	if dec.EscalationDeadline == nil {
		return nil, fmt.Errorf("decision %s has no escalation deadline", dec.DecisionID)
	}
	e := &Escalation{
		ID:                   uuid.NewString(),
		DecisionID:           dec.DecisionID,
		RequestID:            dec.RequestID,
		EntityID:             dec.EntityID,
		Action:               dec.Action,
		Route:                spec.Route,
		Fallback:             spec.Fallback,
		RequireJustification: spec.RequireJustification,
		Status:               StatusPending,
		CreatedAt:            dec.CreatedAt,
		Deadline:             *dec.EscalationDeadline,
	}
	if e.Fallback == "" {
		e.Fallback = FallbackAutoDeny
	}
	if err := s.store.Create(e); err != nil {
		return nil, err
	}
	s.arm(e.ID, e.Deadline)
	return e, nil
}

// Restore rearms timers for every pending escalation. Deadlines that
// passed while the process was down expire immediately.
func (s *Scheduler) Restore() (int, error) {
	pending, err := s.store.Pending("")
	if err != nil {
		return 0, err
	}
	for _, e := range pending {
		s.arm(e.ID, e.Deadline)
	}
	return len(pending), nil
}

// Resolve settles an escalation on behalf of a human approver.
// Resolving an already-settled escalation returns the settled record
// and no error, so retried approvals stay harmless.
func (s *Scheduler) Resolve(id, resolution, resolvedBy, justification string) (*Escalation, error) {
	if resolution != ResolutionApprove && resolution != ResolutionDeny {
		return nil, &model.ValidationError{
			Code:    model.CodeInvalidAction,
			Message: fmt.Sprintf("resolution must be %q or %q", ResolutionApprove, ResolutionDeny),
		}
	}

	e, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if e.RequireJustification && justification == "" {
		return nil, &model.ValidationError{
			Code:    model.CodeInvalidAction,
			Message: fmt.Sprintf("route %q requires a justification", e.Route),
		}
	}

	status := StatusApproved
	if resolution == ResolutionDeny {
		status = StatusDenied
	}
	won, err := s.store.settle(id, status, resolution, resolvedBy, justification, s.now())
	if err != nil {
		return nil, err
	}
	if !won {
		// Timer or another approver got there first.
		return s.store.Get(id)
	}

	s.disarm(id)
	settled, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if s.OnSettled != nil {
		s.OnSettled(settled, false)
	}
	return settled, nil
}

// Stop cancels all armed timers without settling anything.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) arm(id string, deadline time.Time) {
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[id]; ok {
		old.Stop()
	}
	s.timers[id] = time.AfterFunc(d, func() { s.expire(id) })
}

func (s *Scheduler) disarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// expire applies the fallback at deadline. auto_deny denies;
// default_trust approves only entities currently at standard tier or
// above.
func (s *Scheduler) expire(id string) {
	s.disarm(id)

	e, err := s.store.Get(id)
	if err != nil {
		return
	}

	resolution := ResolutionDeny
	if e.Fallback == FallbackDefaultTrust && s.tiers != nil {
		if tier, err := s.tiers.CurrentTier(e.EntityID); err == nil && tier >= model.TierStandard {
			resolution = ResolutionApprove
		}
	}

	won, err := s.store.settle(id, StatusExpired, resolution, "deadline", "", s.now())
	if err != nil || !won {
		return
	}
	settled, err := s.store.Get(id)
	if err != nil {
		return
	}
	if s.OnSettled != nil {
		s.OnSettled(settled, true)
	}
}
