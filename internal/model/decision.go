package model

import "time"

// Outcome is the result of evaluating an action against the active
// constraint set.
type Outcome string

const (
	// Allow permits the action.
	Allow Outcome = "allow"
	// Deny blocks the action.
	Deny Outcome = "deny"
	// Escalate defers to a human approver with a bounded deadline.
	Escalate Outcome = "escalate"
	// Limit permits the action under monitoring.
	Limit Outcome = "limit"
)

// restrictiveness orders outcomes for tie-breaking: when constraints at
// equal priority disagree, the most restrictive outcome wins.
var restrictiveness = map[Outcome]int{
	Deny:     3,
	Escalate: 2,
	Limit:    1,
	Allow:    0,
}

// MoreRestrictive reports whether a is strictly more restrictive than b.
func MoreRestrictive(a, b Outcome) bool {
	return restrictiveness[a] > restrictiveness[b]
}

// Decision is the immutable record of one evaluation. Created once per
// action request and always paired with an evidence chain entry.
type Decision struct {
	DecisionID         string     `json:"decision_id"`
	RequestID          string     `json:"request_id"`
	EntityID           string     `json:"entity_id"`
	Action             string     `json:"action"`
	TrustScore         int        `json:"trust_score"`
	Tier               Tier       `json:"tier"`
	EvaluatedIDs       []string   `json:"evaluated_constraint_ids"`
	ConstraintID       string     `json:"constraint_id,omitempty"`
	ConstraintSet      string     `json:"constraint_set_version,omitempty"`
	RiskScore          int        `json:"risk_score"`
	Outcome            Outcome    `json:"outcome"`
	Code               string     `json:"code,omitempty"`
	Reason             string     `json:"reason"`
	EscalationID       string     `json:"escalation_id,omitempty"`
	EscalationRoute    string     `json:"escalation_route,omitempty"`
	EscalationDeadline *time.Time `json:"escalation_deadline,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}
