// Package escalation tracks decisions deferred to a human approver.
// Each escalation carries a hard deadline; expiry and human resolution
// race, and whichever commits first wins. The loser is a no-op, so a
// decision is never resolved twice.
package escalation

import "time"

// Escalation statuses.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
	StatusExpired  = "expired"
)

// Resolutions accepted from approvers.
const (
	ResolutionApprove = "approve"
	ResolutionDeny    = "deny"
)

// Fallbacks applied at deadline expiry.
const (
	FallbackAutoDeny     = "auto_deny"
	FallbackDefaultTrust = "default_trust"
)

// Escalation is one pending (or settled) approval request.
type Escalation struct {
	ID                   string     `json:"escalation_id"`
	DecisionID           string     `json:"decision_id"`
	RequestID            string     `json:"request_id,omitempty"`
	EntityID             string     `json:"entity_id"`
	Action               string     `json:"action"`
	Route                string     `json:"route"`
	Fallback             string     `json:"fallback"`
	RequireJustification bool       `json:"require_justification"`
	Status               string     `json:"status"`
	Resolution           string     `json:"resolution,omitempty"`
	ResolvedBy           string     `json:"resolved_by,omitempty"`
	Justification        string     `json:"justification,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	Deadline             time.Time  `json:"deadline"`
	ResolvedAt           *time.Time `json:"resolved_at,omitempty"`
}

// Settled reports whether the escalation has left the pending state.
func (e *Escalation) Settled() bool {
	return e.Status != StatusPending
}

// Approved reports whether the final outcome permits the action.
func (e *Escalation) Approved() bool {
	return e.Status == StatusApproved || (e.Status == StatusExpired && e.Resolution == ResolutionApprove)
}
