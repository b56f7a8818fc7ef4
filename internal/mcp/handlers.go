package mcp

import (
	"context"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/trustgate/internal/model"
)

// --- Input/Output types ---

// EvaluateInput defines parameters for the trustgate_evaluate tool.
type EvaluateInput struct {
	EntityID  string         `json:"entity_id" jsonschema:"entity proposing the action"`
	Action    string         `json:"action" jsonschema:"dotted action name, e.g. payment.send"`
	Context   map[string]any `json:"context,omitempty" jsonschema:"typed context fields (amount, target, target_sensitivity)"`
	RequestID string         `json:"request_id,omitempty" jsonschema:"idempotency key, generated when omitted"`
}

// EvaluateOutput contains the decision for a proposed action.
type EvaluateOutput struct {
	DecisionID         string `json:"decision_id"`
	Outcome            string `json:"outcome"`
	Reason             string `json:"reason"`
	RiskScore          int    `json:"risk_score"`
	TrustScore         int    `json:"trust_score"`
	Tier               string `json:"tier"`
	ConstraintID       string `json:"constraint_id,omitempty"`
	EscalationID       string `json:"escalation_id,omitempty"`
	EscalationRoute    string `json:"escalation_route,omitempty"`
	EscalationDeadline string `json:"escalation_deadline,omitempty"`
}

// SignalInput defines parameters for the trustgate_signal tool.
type SignalInput struct {
	EntityID   string  `json:"entity_id" jsonschema:"entity the signal is about"`
	Category   string  `json:"category" jsonschema:"signal category (behavioral/compliance/identity/context)"`
	SignalType string  `json:"signal_type" jsonschema:"signal type within the category, e.g. task_completed"`
	Value      float64 `json:"value" jsonschema:"signal value in [-1, 1]"`
	Source     string  `json:"source,omitempty" jsonschema:"reporting system"`
}

// SignalOutput reports the score movement caused by a signal.
type SignalOutput struct {
	AckID       string `json:"ack_id"`
	ScoreBefore int    `json:"score_before"`
	ScoreAfter  int    `json:"score_after"`
	Tier        string `json:"tier"`
	Flagged     bool   `json:"flagged"`
	Reason      string `json:"reason,omitempty"`
}

// ScoreInput defines parameters for the trustgate_score tool.
type ScoreInput struct {
	EntityID string `json:"entity_id" jsonschema:"entity to look up"`
}

// ScoreOutput contains an entity's current standing.
type ScoreOutput struct {
	EntityID  string `json:"entity_id"`
	Score     int    `json:"score"`
	Tier      string `json:"tier"`
	TierLabel string `json:"tier_label"`
}

// PendingInput defines parameters for the trustgate_pending tool.
type PendingInput struct {
	Route string `json:"route,omitempty" jsonschema:"filter by escalation route (supervisor/security)"`
}

// PendingOutput lists escalations awaiting resolution.
type PendingOutput struct {
	Escalations []PendingItem `json:"escalations"`
	Count       int           `json:"count"`
}

// PendingItem describes a single pending escalation.
type PendingItem struct {
	EscalationID         string `json:"escalation_id"`
	EntityID             string `json:"entity_id"`
	Action               string `json:"action"`
	Route                string `json:"route"`
	Deadline             string `json:"deadline"`
	RequireJustification bool   `json:"require_justification,omitempty"`
}

// ResolveInput defines parameters for the trustgate_resolve tool.
type ResolveInput struct {
	EscalationID  string `json:"escalation_id" jsonschema:"escalation to settle"`
	Resolution    string `json:"resolution" jsonschema:"approve or deny"`
	ResolvedBy    string `json:"resolved_by,omitempty" jsonschema:"identity of the approver"`
	Justification string `json:"justification,omitempty" jsonschema:"required when the escalation demands one"`
}

// ResolveOutput confirms the settlement.
type ResolveOutput struct {
	EscalationID string `json:"escalation_id"`
	Status       string `json:"status"`
	ResolvedAt   string `json:"resolved_at,omitempty"`
}

// VerifyInput is empty: verification always covers the full chain.
type VerifyInput struct{}

// VerifyOutput reports chain integrity.
type VerifyOutput struct {
	Valid      bool   `json:"valid"`
	Checked    int    `json:"checked"`
	FirstBreak int64  `json:"first_break,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// --- Handlers ---

func (s *Server) handleEvaluate(ctx context.Context, req *mcpsdk.CallToolRequest, input EvaluateInput) (*mcpsdk.CallToolResult, EvaluateOutput, error) {
	dec, err := s.core.EvaluateAction(&model.ActionRequest{
		RequestID: input.RequestID,
		EntityID:  input.EntityID,
		Action:    input.Action,
		Context:   input.Context,
	})
	if err != nil {
		return nil, EvaluateOutput{}, err
	}

	out := EvaluateOutput{
		DecisionID:      dec.DecisionID,
		Outcome:         string(dec.Outcome),
		Reason:          dec.Reason,
		RiskScore:       dec.RiskScore,
		TrustScore:      dec.TrustScore,
		Tier:            dec.Tier.String(),
		ConstraintID:    dec.ConstraintID,
		EscalationID:    dec.EscalationID,
		EscalationRoute: dec.EscalationRoute,
	}
	if dec.EscalationDeadline != nil {
		out.EscalationDeadline = dec.EscalationDeadline.Format(time.RFC3339)
	}
	if dec.Outcome == model.Deny {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleSignal(ctx context.Context, req *mcpsdk.CallToolRequest, input SignalInput) (*mcpsdk.CallToolResult, SignalOutput, error) {
	res, err := s.core.SubmitSignal(model.Signal{
		EntityID:  input.EntityID,
		Category:  model.Category(input.Category),
		Type:      input.SignalType,
		Value:     input.Value,
		Source:    input.Source,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, SignalOutput{}, err
	}

	return nil, SignalOutput{
		AckID:       res.AckID,
		ScoreBefore: res.ScoreBefore,
		ScoreAfter:  res.ScoreAfter,
		Tier:        res.Tier.String(),
		Flagged:     res.Flagged,
		Reason:      res.Reason,
	}, nil
}

func (s *Server) handleScore(ctx context.Context, req *mcpsdk.CallToolRequest, input ScoreInput) (*mcpsdk.CallToolResult, ScoreOutput, error) {
	snap, err := s.deps.Engine.Snapshot(input.EntityID, s.cfg.SnapshotMaxAge)
	if err != nil {
		return nil, ScoreOutput{}, err
	}
	return nil, ScoreOutput{
		EntityID:  snap.EntityID,
		Score:     snap.Score,
		Tier:      snap.Tier.String(),
		TierLabel: snap.Tier.Label(),
	}, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	pending, err := s.deps.Escalations.Pending(input.Route)
	if err != nil {
		return nil, PendingOutput{}, err
	}

	items := make([]PendingItem, len(pending))
	for i, esc := range pending {
		items[i] = PendingItem{
			EscalationID:         esc.ID,
			EntityID:             esc.EntityID,
			Action:               esc.Action,
			Route:                esc.Route,
			Deadline:             esc.Deadline.Format(time.RFC3339),
			RequireJustification: esc.RequireJustification,
		}
	}
	return nil, PendingOutput{Escalations: items, Count: len(items)}, nil
}

func (s *Server) handleResolve(ctx context.Context, req *mcpsdk.CallToolRequest, input ResolveInput) (*mcpsdk.CallToolResult, ResolveOutput, error) {
	settled, err := s.deps.Scheduler.Resolve(input.EscalationID, input.Resolution, input.ResolvedBy, input.Justification)
	if err != nil {
		return nil, ResolveOutput{}, err
	}

	out := ResolveOutput{
		EscalationID: settled.ID,
		Status:       settled.Status,
	}
	if settled.ResolvedAt != nil {
		out.ResolvedAt = settled.ResolvedAt.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input VerifyInput) (*mcpsdk.CallToolResult, VerifyOutput, error) {
	report, err := s.deps.Ledger.Verify(0, 0)
	if err != nil {
		return nil, VerifyOutput{}, err
	}

	out := VerifyOutput{
		Valid:      report.Valid,
		Checked:    report.Checked,
		FirstBreak: report.FirstBreak,
		Reason:     report.Reason,
	}
	if !report.Valid {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}
