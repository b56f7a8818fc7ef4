package model

import (
	"testing"
	"time"
)

func TestTierBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  Tier
	}{
		{0, TierRestricted},
		{199, TierRestricted},
		{200, TierProbation},
		{399, TierProbation},
		{400, TierStandard},
		{599, TierStandard},
		{600, TierTrusted},
		{799, TierTrusted},
		{800, TierAutonomous},
		{1000, TierAutonomous},
	}
	for _, c := range cases {
		if got := TierForScore(c.score); got != c.want {
			t.Errorf("TierForScore(%d) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestTierForScoreClampsNegative(t *testing.T) {
	if got := TierForScore(-50); got != TierRestricted {
		t.Errorf("expected restricted tier for negative score, got %s", got)
	}
}

func TestMoreRestrictiveOrdering(t *testing.T) {
	if !MoreRestrictive(Deny, Escalate) {
		t.Error("deny should outrank escalate")
	}
	if !MoreRestrictive(Escalate, Limit) {
		t.Error("escalate should outrank limit")
	}
	if !MoreRestrictive(Limit, Allow) {
		t.Error("limit should outrank allow")
	}
	if MoreRestrictive(Allow, Allow) {
		t.Error("equal outcomes are not more restrictive")
	}
}

func TestSignalValidate(t *testing.T) {
	sig := Signal{
		EntityID:  "agent-7",
		Category:  CategoryBehavioral,
		Type:      "task_completed",
		Value:     1,
		Timestamp: time.Now().UTC(),
		Source:    "runtime",
	}
	if err := sig.Validate(); err != nil {
		t.Fatalf("valid signal rejected: %v", err)
	}

	bad := sig
	bad.Category = "vibes"
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown category")
	}

	bad = sig
	bad.EntityID = ""
	if err := bad.Validate(); err == nil {
		t.Error("expected error for missing entity_id")
	}
}
