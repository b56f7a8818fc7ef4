package cli

import "testing"

func TestParseContext(t *testing.T) {
	ctx, err := parseContext([]string{"amount=2500", "dry_run=true", "target=prod-db"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx["amount"] != 2500.0 {
		t.Errorf("amount = %v, want 2500.0", ctx["amount"])
	}
	if ctx["dry_run"] != true {
		t.Errorf("dry_run = %v, want true", ctx["dry_run"])
	}
	if ctx["target"] != "prod-db" {
		t.Errorf("target = %v, want prod-db", ctx["target"])
	}
}

func TestParseContextRejectsMalformedPairs(t *testing.T) {
	for _, bad := range []string{"noequals", "=value"} {
		if _, err := parseContext([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestParseContextEmpty(t *testing.T) {
	ctx, err := parseContext(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx != nil {
		t.Fatalf("expected nil context, got %v", ctx)
	}
}
