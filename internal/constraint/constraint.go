// Package constraint holds the declarative rule model evaluated by the
// decision gate. Constraints are data, not code: a tagged condition
// tree interpreted by one evaluator, which keeps decisions
// deterministic and auditable. Sets are immutable once loaded; the
// active set swaps behind an atomic pointer.
package constraint

import (
	"github.com/ppiankov/trustgate/internal/model"
	"github.com/ppiankov/trustgate/internal/ratelimit"
)

// DenySpec shapes the response when a constraint denies an action.
type DenySpec struct {
	Code    string `yaml:"code" json:"code"`
	Status  int    `yaml:"status" json:"status"`
	Message string `yaml:"message" json:"message"`
}

// EscalateSpec routes a failed constraint to a human approver.
type EscalateSpec struct {
	Route                string         `yaml:"route" json:"route"`
	Timeout              model.Duration `yaml:"timeout" json:"timeout"`
	Fallback             string         `yaml:"fallback" json:"fallback"` // auto_deny | default_trust
	RequireJustification bool           `yaml:"require_justification" json:"require_justification"`
}

// Constraint is one versioned, immutable rule. Priority is ascending:
// priority 1 outranks priority 10. Scope patterns select which actions
// the constraint applies to; conditions are evaluated in order and must
// all hold for the constraint to pass.
type Constraint struct {
	ID         string        `yaml:"id" json:"id"`
	Version    int           `yaml:"version" json:"version"`
	Priority   int           `yaml:"priority" json:"priority"`
	Scope      []string      `yaml:"scope" json:"scope"`
	Conditions []Condition   `yaml:"conditions" json:"conditions"`
	OnMatch    model.Outcome `yaml:"on_match" json:"on_match"`
	OnDeny     *DenySpec     `yaml:"on_deny,omitempty" json:"on_deny,omitempty"`
	OnEscalate *EscalateSpec `yaml:"on_escalate,omitempty" json:"on_escalate,omitempty"`
}

// FailureOutcome is what a failed constraint demands: escalate when an
// escalation spec exists, deny otherwise.
func (c *Constraint) FailureOutcome() model.Outcome {
	if c.OnEscalate != nil {
		return model.Escalate
	}
	return model.Deny
}

// AppliesTo reports whether any scope pattern matches the action name.
// An empty scope matches nothing: unscoped rules are configuration
// mistakes and must not silently become global.
func (c *Constraint) AppliesTo(action string) bool {
	for _, pattern := range c.Scope {
		if MatchPattern(pattern, action) {
			return true
		}
	}
	return false
}

// Set is a named, versioned collection of constraints. Immutable once
// published: evaluations never contend on constraint data.
type Set struct {
	Name          string       `yaml:"name" json:"name"`
	Version       string       `yaml:"version" json:"version"`
	DefaultPolicy string       `yaml:"default_policy" json:"default_policy"` // allow | deny for unmatched actions
	Constraints   []Constraint `yaml:"constraints" json:"constraints"`

	// RateLimits caps per-entity attempts by action pattern. Checked
	// by the gate before constraints; an exceeded limit denies.
	RateLimits map[string]ratelimit.Limit `yaml:"rate_limits,omitempty" json:"rate_limits,omitempty"`

	// Hash is the SHA-256 of the raw set bytes, set by the loader.
	Hash string `yaml:"-" json:"hash,omitempty"`
}

// Matching returns the constraints in priority order whose scope
// matches the action.
func (s *Set) Matching(action string) []Constraint {
	var out []Constraint
	for _, c := range s.Constraints {
		if c.AppliesTo(action) {
			out = append(out, c)
		}
	}
	return out
}

// DefaultDeny reports whether unmatched actions fail closed.
// Unset default policy denies: the conservative reading.
func (s *Set) DefaultDeny() bool {
	return s.DefaultPolicy != "allow"
}
