package server

import (
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/trustgate/internal/alert"
	"github.com/ppiankov/trustgate/internal/chain"
	"github.com/ppiankov/trustgate/internal/gate"
	"github.com/ppiankov/trustgate/internal/model"
	"github.com/ppiankov/trustgate/internal/scoring"
)

// SubmitSignal scores a trust signal, records it on the evidence chain,
// and raises an alert when anti-gaming flags it. Shared by the HTTP and
// MCP surfaces.
func (s *Server) SubmitSignal(sig model.Signal) (*scoring.SubmitResult, error) {
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now().UTC()
	}

	res, err := s.deps.Engine.Submit(sig)
	if err != nil {
		return nil, err
	}

	// The evidence record must land before the caller is acknowledged;
	// a scored signal with no evidence is a failed submission.
	if _, err := s.deps.Ledger.Append(chain.Meta{Kind: chain.KindSignal, EntityID: sig.EntityID}, map[string]any{
		"signal":       sig,
		"ack_id":       res.AckID,
		"score_before": res.ScoreBefore,
		"score_after":  res.ScoreAfter,
		"flagged":      res.Flagged,
		"multiplier":   res.Multiplier,
		"reason":       res.Reason,
	}); err != nil {
		return nil, &model.AvailabilityError{
			Code:    model.CodeInternal,
			Message: "failed to record signal evidence",
			Err:     err,
		}
	}

	if res.Flagged {
		s.deps.Alerts.Dispatch(alert.Event{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Type:      alert.EventSignalFlagged,
			EntityID:  sig.EntityID,
			Reason:    res.Reason,
			Tier:      res.Tier.String(),
		})
	}
	return res, nil
}

// EvaluateAction runs an action request through the full pipeline:
// trust snapshot, gate evaluation, escalation opening, evidence record,
// and alerting. Every call appends exactly one decision record.
func (s *Server) EvaluateAction(req *model.ActionRequest) (*model.Decision, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	// Staleness degrades conservatively: if the score cannot be
	// refreshed, the entity is evaluated at the restricted tier
	// rather than its last known standing.
	snap, err := s.deps.Engine.Snapshot(req.EntityID, s.cfg.SnapshotMaxAge)
	if err != nil {
		snap = model.TrustSnapshot{
			EntityID:   req.EntityID,
			Score:      0,
			Tier:       model.TierRestricted,
			ComputedAt: time.Now().Unix(),
		}
	}

	seen, err := s.deps.Ledger.SeenAction(req.EntityID, req.Action)
	if err != nil {
		seen = false
	}
	anomalous, err := s.deps.Engine.RecentlyFlagged(req.EntityID)
	if err != nil {
		anomalous = true
	}

	dec, spec, err := s.deps.Gate.Evaluate(req, snap, gate.Flags{FirstTime: !seen, Anomalous: anomalous})
	if err != nil {
		return nil, err
	}

	if dec.Outcome == model.Escalate && spec != nil {
		esc, err := s.deps.Scheduler.Open(dec, spec)
		if err != nil {
			return nil, &model.AvailabilityError{
				Code:    model.CodeInternal,
				Message: "failed to open escalation",
				Err:     err,
			}
		}
		dec.EscalationID = esc.ID
	}

	if _, err := s.deps.Ledger.Append(chain.Meta{
		Kind:       chain.KindDecision,
		EntityID:   dec.EntityID,
		DecisionID: dec.DecisionID,
		Action:     dec.Action,
	}, dec); err != nil {
		return nil, &model.AvailabilityError{
			Code:    model.CodeInternal,
			Message: "failed to record decision",
			Err:     err,
		}
	}

	switch dec.Outcome {
	case model.Deny:
		s.dispatchDecision(alert.EventDeny, dec)
	case model.Escalate:
		s.dispatchDecision(alert.EventEscalate, dec)
	}
	return dec, nil
}
