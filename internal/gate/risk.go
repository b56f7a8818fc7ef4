package gate

import (
	"math"
	"time"

	"github.com/ppiankov/trustgate/internal/constraint"
	"github.com/ppiankov/trustgate/internal/model"
)

const maxRisk = 100

// RiskInput is everything the risk model looks at for one request.
type RiskInput struct {
	Action      string
	Trust       model.TrustSnapshot
	FirstTime   bool
	Anomalous   bool
	Amount      float64 // context.amount, monetary value if any
	Sensitivity float64 // context.target_sensitivity in [0,1]
}

// RiskWeights defines the contribution of each factor to the 0-100
// risk score. Weights should sum to 1; Score normalizes regardless so
// a tuned config cannot push the score out of range.
type RiskWeights struct {
	Inherent    float64 `yaml:"inherent"`
	FirstTime   float64 `yaml:"first_time"`
	Anomaly     float64 `yaml:"anomaly"`
	Monetary    float64 `yaml:"monetary"`
	Sensitivity float64 `yaml:"sensitivity"`
	LowTrust    float64 `yaml:"low_trust"`

	// AmountCeiling is the monetary value that saturates the
	// monetary factor at 1.0.
	AmountCeiling float64 `yaml:"amount_ceiling"`
}

// DefaultRiskWeights weight inherent action risk highest, with trust
// standing and per-request signals filling the rest.
func DefaultRiskWeights() RiskWeights {
	return RiskWeights{
		Inherent:      0.30,
		FirstTime:     0.10,
		Anomaly:       0.15,
		Monetary:      0.15,
		Sensitivity:   0.15,
		LowTrust:      0.15,
		AmountCeiling: 10000,
	}
}

// actionClassRisk maps the leading action segment to inherent risk.
// Unlisted classes get mediumRisk: unknown surface is not safe surface.
var actionClassRisk = map[string]float64{
	"read":        0.10,
	"list":        0.10,
	"get":         0.10,
	"query":       0.15,
	"search":      0.15,
	"write":       0.50,
	"update":      0.50,
	"create":      0.45,
	"exec":        0.65,
	"deploy":      0.70,
	"payment":     0.75,
	"transfer":    0.75,
	"delete":      0.85,
	"admin":       0.90,
	"secrets":     0.95,
	"credentials": 0.95,
}

const mediumRisk = 0.40

// Score computes the 0-100 risk score as a normalized weighted sum.
// Deterministic for identical input.
func (w RiskWeights) Score(in RiskInput) int {
	inherent, ok := actionClassRisk[ActionClass(in.Action)]
	if !ok {
		inherent = mediumRisk
	}

	factors := []struct{ weight, value float64 }{
		{w.Inherent, inherent},
		{w.FirstTime, boolFactor(in.FirstTime)},
		{w.Anomaly, boolFactor(in.Anomalous)},
		{w.Monetary, ratio(in.Amount, w.AmountCeiling)},
		{w.Sensitivity, clamp01(in.Sensitivity)},
		{w.LowTrust, clamp01(float64(model.MaxScore-in.Trust.Score) / model.MaxScore)},
	}

	var sum, total float64
	for _, f := range factors {
		sum += f.weight * f.value
		total += f.weight
	}
	if total <= 0 {
		return 0
	}
	score := int(math.Round(maxRisk * sum / total))
	if score < 0 {
		return 0
	}
	if score > maxRisk {
		return maxRisk
	}
	return score
}

// Band maps a risk score to the outcome it demands when no constraint
// has already failed. The two escalation bands differ in route,
// urgency, and whether the approver must attach a justification.
func (w RiskWeights) Band(risk int) (model.Outcome, *constraint.EscalateSpec) {
	switch {
	case risk <= 30:
		return model.Allow, nil
	case risk <= 60:
		return model.Limit, nil
	case risk <= 80:
		return model.Escalate, defaultSupervisorSpec()
	default:
		return model.Escalate, &constraint.EscalateSpec{
			Route:                "security",
			Timeout:              model.Duration(time.Hour),
			Fallback:             "auto_deny",
			RequireJustification: true,
		}
	}
}

func boolFactor(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func ratio(v, ceiling float64) float64 {
	if ceiling <= 0 || v <= 0 {
		return 0
	}
	return clamp01(v / ceiling)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
