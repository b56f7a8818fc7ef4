package model

import "fmt"

// Tier is a discrete autonomy band derived from the trust score.
// Higher tier = more autonomy.
type Tier int

const (
	TierRestricted  Tier = 0 // [0,200) — no autonomy
	TierProbation   Tier = 1 // [200,400) — supervised
	TierStandard    Tier = 2 // [400,600) — normal operations
	TierTrusted     Tier = 3 // [600,800) — extended autonomy
	TierAutonomous  Tier = 4 // [800,1000] — full autonomy
	MaxScore             = 1000
	tierBandWidth        = 200
)

// TierForScore maps a clamped score to its tier. The top band is
// closed: a perfect 1000 is still T4.
func TierForScore(score int) Tier {
	if score < 0 {
		score = 0
	}
	if score >= MaxScore {
		return TierAutonomous
	}
	return Tier(score / tierBandWidth)
}

// Label returns a human-readable tier name.
func (t Tier) Label() string {
	switch t {
	case TierRestricted:
		return "restricted"
	case TierProbation:
		return "probation"
	case TierStandard:
		return "standard"
	case TierTrusted:
		return "trusted"
	case TierAutonomous:
		return "autonomous"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// String returns the short form used in constraint conditions and logs.
func (t Tier) String() string {
	return fmt.Sprintf("T%d", int(t))
}

// TrustSnapshot is a point-in-time score read handed to the gate.
// Readers accept bounded staleness instead of blocking the writer.
type TrustSnapshot struct {
	EntityID   string `json:"entity_id"`
	Score      int    `json:"score"`
	Tier       Tier   `json:"tier"`
	ComputedAt int64  `json:"computed_at_unix"`
}
