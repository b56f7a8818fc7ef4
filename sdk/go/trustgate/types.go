package trustgate

import (
	"fmt"
	"time"

	"github.com/ppiankov/trustgate/internal/model"
)

// Outcome is the governance verdict for an action.
type Outcome string

const (
	Allow    Outcome = Outcome(model.Allow)
	Deny     Outcome = Outcome(model.Deny)
	Escalate Outcome = Outcome(model.Escalate)
	Limit    Outcome = Outcome(model.Limit)
)

// Action describes what a tool intends to do. Entity may be left empty
// when the client or wrap options carry a default.
type Action struct {
	Entity  string         // acting entity, e.g. "agent-7"
	Name    string         // dotted action name: "payment.send", "file.read"
	Context map[string]any // typed facts for constraints: amount, destination, target_sensitivity
}

// Result is one evaluation outcome.
type Result struct {
	DecisionID         string
	Outcome            Outcome
	Code               string
	Reason             string
	RiskScore          int
	TrustScore         int
	Tier               string
	EscalationID       string
	EscalationRoute    string
	EscalationDeadline *time.Time
}

// Allowed reports whether the decision permits the action. Limit
// permits under monitoring.
func (r Result) Allowed() bool {
	return r.Outcome == Allow || r.Outcome == Limit
}

// Standing is an entity's current trust position.
type Standing struct {
	Entity string
	Score  int
	Tier   string
}

// Receipt acknowledges an ingested trust signal.
type Receipt struct {
	AckID       string
	ScoreBefore int
	ScoreAfter  int
	Tier        string
	Flagged     bool
}

// Pending is an escalation awaiting an approver.
type Pending struct {
	ID       string
	Entity   string
	Action   string
	Route    string
	Deadline time.Time
}

// BlockedError is returned when an evaluation denies or escalates a
// wrapped call. Escalated calls carry the escalation ID so the caller
// can surface it to an approver.
type BlockedError struct {
	Action Action
	Result Result
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("trustgate blocked (%s): %s", e.Result.Outcome, e.Result.Reason)
}

func toResult(dec *model.Decision) Result {
	return Result{
		DecisionID:         dec.DecisionID,
		Outcome:            Outcome(dec.Outcome),
		Code:               dec.Code,
		Reason:             dec.Reason,
		RiskScore:          dec.RiskScore,
		TrustScore:         dec.TrustScore,
		Tier:               dec.Tier.String(),
		EscalationID:       dec.EscalationID,
		EscalationRoute:    dec.EscalationRoute,
		EscalationDeadline: dec.EscalationDeadline,
	}
}
