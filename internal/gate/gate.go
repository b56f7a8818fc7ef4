// Package gate evaluates proposed actions against the active
// constraint set and the entity's trust standing, producing one
// immutable Decision per request. The gate is a pure policy layer: it
// never mutates trust profiles, and every evaluation is deterministic
// given the same set, snapshot, and flags.
package gate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/trustgate/internal/constraint"
	"github.com/ppiankov/trustgate/internal/model"
	"github.com/ppiankov/trustgate/internal/ratelimit"
)

// Flags carries per-request observations the gate cannot derive from
// the action alone. The caller resolves them before evaluation.
type Flags struct {
	// FirstTime is set when the entity has never performed this
	// action before.
	FirstTime bool
	// Anomalous is set when the entity currently carries an active
	// anti-gaming flag on its trust profile.
	Anomalous bool
}

// SetSource provides the active constraint set. Satisfied by
// *constraint.Store.
type SetSource interface {
	Active() (*constraint.Set, error)
}

// Evaluator is the decision gate. Safe for concurrent use: all state
// it reads is immutable or atomically swapped.
type Evaluator struct {
	source SetSource
	risk   RiskWeights
	limits *ratelimit.Tracker
	now    func() time.Time
}

// New creates an evaluator over the given constraint source using the
// default risk weights.
func New(source SetSource) *Evaluator {
	return &Evaluator{
		source: source,
		risk:   DefaultRiskWeights(),
		limits: ratelimit.NewTracker(),
		now:    time.Now,
	}
}

// Evaluate runs one action request through the gate. The returned
// EscalateSpec is non-nil exactly when the decision outcome is
// Escalate; it tells the caller how to route and bound the escalation.
//
// An unavailable constraint source fails closed: the request is denied
// with a recorded reason, never silently allowed.
func (e *Evaluator) Evaluate(req *model.ActionRequest, trust model.TrustSnapshot, flags Flags) (*model.Decision, *constraint.EscalateSpec, error) {
	if err := validateRequest(req); err != nil {
		return nil, nil, err
	}

	now := e.now().UTC()
	dec := &model.Decision{
		DecisionID: uuid.NewString(),
		RequestID:  req.RequestID,
		EntityID:   req.EntityID,
		Action:     req.Action,
		TrustScore: trust.Score,
		Tier:       trust.Tier,
		CreatedAt:  now,
	}

	set, err := e.source.Active()
	if err != nil {
		dec.Outcome = model.Deny
		dec.Code = model.CodeConstraintSetUnavailable
		dec.Reason = "constraint set unavailable, failing closed"
		dec.RiskScore = maxRisk
		return dec, nil, nil
	}
	dec.ConstraintSet = set.Version

	if res, exceeded := e.takeLimit(set, req, now); exceeded {
		dec.Outcome = model.Deny
		dec.Code = model.CodeRateLimitExceeded
		dec.Reason = res.Reason
		dec.RiskScore = maxRisk
		return dec, nil, nil
	}

	dec.RiskScore = e.risk.Score(RiskInput{
		Action:      req.Action,
		Trust:       trust,
		FirstTime:   flags.FirstTime,
		Anomalous:   flags.Anomalous,
		Amount:      req.ContextFloat("amount"),
		Sensitivity: req.ContextFloat("target_sensitivity"),
	})

	matched := set.Matching(req.Action)
	if len(matched) == 0 {
		if set.DefaultDeny() {
			dec.Outcome = model.Deny
			dec.Code = model.CodeConstraintViolation
			dec.Reason = fmt.Sprintf("no constraint matches action %q and default policy is deny", req.Action)
		} else {
			dec.Outcome = model.Allow
			dec.Reason = fmt.Sprintf("no constraint matches action %q, default policy allows", req.Action)
		}
		return dec, e.specFor(dec), nil
	}

	fields := flatten(req, trust)

	// All matching constraints must pass. Matched is already ordered
	// by priority then ID; within one priority band the most
	// restrictive failure wins, so a tied escalate never masks a deny.
	var failed *constraint.Constraint
	for i := range matched {
		c := &matched[i]
		dec.EvaluatedIDs = append(dec.EvaluatedIDs, c.ID)
		if passes(c, fields) {
			continue
		}
		if failed == nil {
			failed = c
			continue
		}
		if c.Priority == failed.Priority && model.MoreRestrictive(c.FailureOutcome(), failed.FailureOutcome()) {
			failed = c
		}
	}

	if failed != nil {
		dec.ConstraintID = failed.ID
		dec.Outcome = failed.FailureOutcome()
		dec.Reason = failureReason(failed)
		if dec.Outcome == model.Escalate {
			spec := *failed.OnEscalate
			e.applyEscalation(dec, &spec)
			return dec, &spec, nil
		}
		dec.Code = model.CodeConstraintViolation
		if failed.OnDeny != nil && failed.OnDeny.Code != "" {
			dec.Code = failed.OnDeny.Code
		}
		return dec, nil, nil
	}

	// Constraints pass; the risk band decides how much supervision
	// the action still needs.
	outcome, spec := e.risk.Band(dec.RiskScore)
	dec.Outcome = outcome
	dec.Reason = bandReason(outcome, dec.RiskScore)

	// A passing constraint may still pin a floor on the outcome via
	// on_match, e.g. limit to force monitoring of a sensitive scope.
	for i := range matched {
		c := &matched[i]
		if model.MoreRestrictive(c.OnMatch, dec.Outcome) {
			dec.Outcome = c.OnMatch
			dec.ConstraintID = c.ID
			dec.Reason = fmt.Sprintf("constraint %s pins outcome %s for this scope", c.ID, c.OnMatch)
			if c.OnMatch == model.Escalate && c.OnEscalate != nil {
				spec = c.OnEscalate
			}
		}
	}

	if dec.Outcome == model.Escalate {
		if spec == nil {
			spec = defaultSupervisorSpec()
		}
		out := *spec
		e.applyEscalation(dec, &out)
		return dec, &out, nil
	}
	return dec, nil, nil
}

// specFor covers the default-policy path, where a risk band can still
// demand escalation despite no constraint matching.
func (e *Evaluator) specFor(dec *model.Decision) *constraint.EscalateSpec {
	if dec.Outcome != model.Allow {
		return nil
	}
	outcome, spec := e.risk.Band(dec.RiskScore)
	if outcome == model.Allow {
		return nil
	}
	dec.Outcome = outcome
	dec.Reason = bandReason(outcome, dec.RiskScore)
	if outcome == model.Escalate {
		if spec == nil {
			spec = defaultSupervisorSpec()
		}
		out := *spec
		e.applyEscalation(dec, &out)
		return &out
	}
	return nil
}

func (e *Evaluator) applyEscalation(dec *model.Decision, spec *constraint.EscalateSpec) {
	if spec.Route == "" {
		spec.Route = "supervisor"
	}
	if spec.Timeout.Std() <= 0 {
		spec.Timeout = model.Duration(2 * time.Hour)
	}
	deadline := dec.CreatedAt.Add(spec.Timeout.Std())
	dec.EscalationRoute = spec.Route
	dec.EscalationDeadline = &deadline
}

// takeLimit charges the request against every rate limit whose pattern
// matches the action, keyed per entity. Patterns are walked in sorted
// order so repeated evaluations charge windows deterministically.
func (e *Evaluator) takeLimit(set *constraint.Set, req *model.ActionRequest, now time.Time) (ratelimit.Result, bool) {
	if len(set.RateLimits) == 0 {
		return ratelimit.Result{}, false
	}
	patterns := make([]string, 0, len(set.RateLimits))
	for p := range set.RateLimits {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	for _, p := range patterns {
		if !constraint.MatchPattern(p, req.Action) {
			continue
		}
		key := req.EntityID + "\x00" + p
		if res, exceeded := e.limits.Take(key, set.RateLimits[p], now); exceeded {
			return res, true
		}
	}
	return ratelimit.Result{}, false
}

func passes(c *constraint.Constraint, fields map[string]any) bool {
	for i := range c.Conditions {
		if !c.Conditions[i].Eval(fields) {
			return false
		}
	}
	return true
}

func validateRequest(req *model.ActionRequest) error {
	if req == nil || req.EntityID == "" {
		return &model.ValidationError{Code: model.CodeInvalidAction, Message: "missing entity_id"}
	}
	if req.Action == "" {
		return &model.ValidationError{Code: model.CodeInvalidAction, Message: "missing action"}
	}
	return nil
}

// flatten builds the field map constraint conditions evaluate against.
// Context values are exposed under a context. prefix so caller data
// can never shadow trust fields.
func flatten(req *model.ActionRequest, trust model.TrustSnapshot) map[string]any {
	fields := map[string]any{
		"action":      req.Action,
		"entity_id":   req.EntityID,
		"trust_score": trust.Score,
		"tier":        trust.Tier.String(),
		"tier_num":    int(trust.Tier),
	}
	for k, v := range req.Context {
		fields["context."+k] = v
	}
	return fields
}

func failureReason(c *constraint.Constraint) string {
	if c.OnDeny != nil && c.OnDeny.Message != "" {
		return c.OnDeny.Message
	}
	if c.OnEscalate != nil {
		return fmt.Sprintf("constraint %s requires approval via %s", c.ID, c.OnEscalate.Route)
	}
	return fmt.Sprintf("constraint %s not satisfied", c.ID)
}

func bandReason(outcome model.Outcome, risk int) string {
	switch outcome {
	case model.Limit:
		return fmt.Sprintf("risk score %d, allowed under monitoring", risk)
	case model.Escalate:
		return fmt.Sprintf("risk score %d requires human approval", risk)
	default:
		return fmt.Sprintf("all constraints satisfied, risk score %d", risk)
	}
}

func defaultSupervisorSpec() *constraint.EscalateSpec {
	return &constraint.EscalateSpec{
		Route:    "supervisor",
		Timeout:  model.Duration(2 * time.Hour),
		Fallback: "auto_deny",
	}
}

// DenyStatus returns the HTTP status a denying constraint configured,
// defaulting to 403.
func DenyStatus(set *constraint.Set, constraintID string) int {
	for i := range set.Constraints {
		c := &set.Constraints[i]
		if c.ID == constraintID && c.OnDeny != nil && c.OnDeny.Status != 0 {
			return c.OnDeny.Status
		}
	}
	return 403
}

// ActionClass buckets an action name by its first dotted segment.
func ActionClass(action string) string {
	if i := strings.IndexByte(action, '.'); i > 0 {
		return action[:i]
	}
	return action
}
