package constraint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/trustgate/internal/model"
)

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, action string
		want            bool
	}{
		{"*", "anything.at.all", true},
		{"payment.*", "payment.send", true},
		{"payment.*", "report.read", false},
		{"*.delete", "records.delete", true},
		{"*credential*", "read_credentials_file", true},
		{"payment.send", "PAYMENT.SEND", true},
		{"", "payment.send", false},
	}
	for _, c := range cases {
		if got := MatchPattern(c.pattern, c.action); got != c.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", c.pattern, c.action, got, c.want)
		}
	}
}

func TestConditionLeafOperators(t *testing.T) {
	fields := map[string]any{
		"tier_num":       2,
		"trust_score":    450,
		"action":         "payment.send",
		"context.target": "prod-db",
	}

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"gte pass", Condition{Field: "tier_num", Op: OpGte, Value: 2}, true},
		{"gte fail", Condition{Field: "tier_num", Op: OpGte, Value: 3}, false},
		{"eq string", Condition{Field: "action", Op: OpEq, Value: "payment.send"}, true},
		{"ne", Condition{Field: "action", Op: OpNe, Value: "report.read"}, true},
		{"lt", Condition{Field: "trust_score", Op: OpLt, Value: 600}, true},
		{"in", Condition{Field: "context.target", Op: OpIn, Value: []any{"prod-db", "prod-api"}}, true},
		{"in miss", Condition{Field: "context.target", Op: OpIn, Value: []any{"staging"}}, false},
		{"contains", Condition{Field: "context.target", Op: OpContains, Value: "prod"}, true},
		{"prefix", Condition{Field: "action", Op: OpPrefix, Value: "payment."}, true},
		{"missing field fails", Condition{Field: "context.amount", Op: OpGt, Value: 0}, false},
	}
	for _, c := range cases {
		if got := c.cond.Eval(fields); got != c.want {
			t.Errorf("%s: Eval = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestConditionCombinators(t *testing.T) {
	fields := map[string]any{"tier_num": 3, "context.amount": 250.0}

	and := Condition{All: []Condition{
		{Field: "tier_num", Op: OpGte, Value: 2},
		{Field: "context.amount", Op: OpLte, Value: 1000},
	}}
	if !and.Eval(fields) {
		t.Error("expected all-combinator to pass")
	}

	or := Condition{Any: []Condition{
		{Field: "tier_num", Op: OpGte, Value: 4},
		{Field: "context.amount", Op: OpLt, Value: 500},
	}}
	if !or.Eval(fields) {
		t.Error("expected any-combinator to pass on second branch")
	}

	not := Condition{Not: &Condition{Field: "tier_num", Op: OpEq, Value: 0}}
	if !not.Eval(fields) {
		t.Error("expected not-combinator to pass")
	}
}

func TestConditionValidate(t *testing.T) {
	bad := Condition{Field: "x", Op: "frobnicate", Value: 1}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown operator")
	}

	both := Condition{Field: "x", Op: OpEq, Value: 1, All: []Condition{{Field: "y", Op: OpEq, Value: 2}}}
	if err := both.Validate(); err == nil {
		t.Error("expected error for leaf+combinator node")
	}

	ok := Condition{All: []Condition{{Field: "x", Op: OpEq, Value: 1}}}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid condition rejected: %v", err)
	}
}

func TestParseDefaultSet(t *testing.T) {
	set, err := Parse([]byte(DefaultSetYAML()))
	if err != nil {
		t.Fatalf("default set failed to parse: %v", err)
	}
	if set.Version != "1" {
		t.Errorf("version = %q, want 1", set.Version)
	}
	if !set.DefaultDeny() {
		t.Error("default set should fail closed on unmatched actions")
	}
	if set.Hash == "" {
		t.Error("loader must stamp the set hash")
	}

	// Priority ordering: payments (1) before credentials (2) before baseline (10).
	ids := make([]string, len(set.Constraints))
	for i, c := range set.Constraints {
		ids[i] = c.ID
	}
	if ids[0] != "payments-need-standing" || ids[len(ids)-1] != "baseline-trust" {
		t.Errorf("constraints not in priority order: %v", ids)
	}
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	y := `
name: dup
version: "1"
constraints:
  - id: a
    priority: 1
    scope: ["*"]
  - id: a
    priority: 2
    scope: ["*"]
`
	if _, err := Parse([]byte(y)); err == nil {
		t.Error("expected error for duplicate ids")
	}
}

func TestParseRejectsEmptyScope(t *testing.T) {
	y := `
name: noscope
version: "1"
constraints:
  - id: a
    priority: 1
`
	if _, err := Parse([]byte(y)); err == nil {
		t.Error("expected error for empty scope")
	}
}

func TestParseRateLimits(t *testing.T) {
	y := `
name: limited
version: "1"
constraints:
  - id: a
    priority: 1
    scope: ["*"]
rate_limits:
  "deploy.*":
    max: 5
    window: 1h
`
	set, err := Parse([]byte(y))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	limit := set.RateLimits["deploy.*"]
	if limit.Max != 5 || limit.Window.Std() != time.Hour {
		t.Errorf("limit = %d per %s, want 5 per 1h", limit.Max, limit.Window)
	}
}

func TestParseRejectsDisabledRateLimit(t *testing.T) {
	y := `
name: limited
version: "1"
constraints:
  - id: a
    priority: 1
    scope: ["*"]
rate_limits:
  "deploy.*":
    max: 0
    window: 1h
`
	if _, err := Parse([]byte(y)); err == nil {
		t.Error("expected error for rate limit with max 0")
	}
}

func TestEscalationTimeoutParsesFromYAML(t *testing.T) {
	set, err := Parse([]byte(DefaultSetYAML()))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	for _, c := range set.Constraints {
		if c.ID == "baseline-trust" {
			if c.OnEscalate == nil {
				t.Fatal("baseline-trust missing on_escalate")
			}
			if c.OnEscalate.Timeout.Std().Hours() != 2 {
				t.Errorf("timeout = %s, want 2h", c.OnEscalate.Timeout)
			}
		}
	}
}

func TestStoreFailsClosedWhenNeverLoaded(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing.yaml"), 0)
	_, err := s.Active()
	if err == nil {
		t.Fatal("expected ConstraintSetUnavailable")
	}
	var aerr *model.AvailabilityError
	if !errors.As(err, &aerr) || aerr.Code != model.CodeConstraintSetUnavailable {
		t.Errorf("expected CONSTRAINT_SET_UNAVAILABLE, got %v", err)
	}
}

func TestStoreServesCachedSetOnReloadFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "set.yaml")
	if err := os.WriteFile(path, []byte(DefaultSetYAML()), 0600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, 0)
	if err := s.Reload(); err != nil {
		t.Fatalf("initial load failed: %v", err)
	}

	// Corrupt the file; Active must keep serving the loaded set.
	if err := os.WriteFile(path, []byte(":::not yaml"), 0600); err != nil {
		t.Fatal(err)
	}
	set, err := s.Active()
	if err != nil {
		t.Fatalf("expected cached set, got error: %v", err)
	}
	if set.Name != "default" {
		t.Errorf("unexpected set %q", set.Name)
	}
}
