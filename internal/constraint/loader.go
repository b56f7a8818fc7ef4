package constraint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/trustgate/internal/model"
)

// Load reads a constraint set from a YAML file, validates it, and
// orders constraints by priority (ascending), breaking ties by ID.
// The returned set carries the SHA-256 hash of the raw bytes.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read constraint set: %w", err)
	}
	return Parse(data)
}

// Parse validates and orders a constraint set from raw YAML bytes.
func Parse(data []byte) (*Set, error) {
	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse constraint set: %w", err)
	}
	if err := validate(&set); err != nil {
		return nil, err
	}

	sort.SliceStable(set.Constraints, func(i, j int) bool {
		a, b := set.Constraints[i], set.Constraints[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})

	h := sha256.Sum256(data)
	set.Hash = "sha256:" + hex.EncodeToString(h[:])
	return &set, nil
}

func validate(set *Set) error {
	if set.Version == "" {
		return fmt.Errorf("constraint set missing version")
	}
	switch set.DefaultPolicy {
	case "", "allow", "deny":
	default:
		return fmt.Errorf("unknown default_policy %q", set.DefaultPolicy)
	}

	seen := make(map[string]bool, len(set.Constraints))
	for i := range set.Constraints {
		c := &set.Constraints[i]
		if c.ID == "" {
			return fmt.Errorf("constraint %d missing id", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate constraint id %q", c.ID)
		}
		seen[c.ID] = true

		if len(c.Scope) == 0 {
			return fmt.Errorf("constraint %q has empty scope", c.ID)
		}
		if c.OnMatch == "" {
			c.OnMatch = model.Allow
		}
		switch c.OnMatch {
		case model.Allow, model.Deny, model.Escalate, model.Limit:
		default:
			return fmt.Errorf("constraint %q has unknown on_match %q", c.ID, c.OnMatch)
		}
		if c.OnEscalate != nil {
			switch c.OnEscalate.Fallback {
			case "", "auto_deny", "default_trust":
			default:
				return fmt.Errorf("constraint %q has unknown escalation fallback %q", c.ID, c.OnEscalate.Fallback)
			}
		}
		for j := range c.Conditions {
			if err := c.Conditions[j].Validate(); err != nil {
				return fmt.Errorf("constraint %q condition %d: %w", c.ID, j, err)
			}
		}
	}

	for pattern, limit := range set.RateLimits {
		if pattern == "" {
			return fmt.Errorf("rate limit with empty action pattern")
		}
		if !limit.Enabled() {
			return fmt.Errorf("rate limit %q needs max > 0 and a positive window", pattern)
		}
	}
	return nil
}

// DefaultSetYAML returns a commented starter constraint set for
// init-policy.
func DefaultSetYAML() string {
	return `# trustgate constraint set
# Generated by: trustgate init-policy
#
# Constraints are evaluated in priority order (1 = highest). All
# matching constraints must pass for an action to be allowed; the first
# failing constraint determines the outcome. Condition fields:
#   action, entity_id, trust_score (0-1000), tier (T0-T4), tier_num,
#   and context.* for caller-supplied context values.
name: default
version: "1"
default_policy: deny

constraints:
  - id: baseline-trust
    version: 1
    priority: 10
    scope: ["*"]
    conditions:
      - field: tier_num
        op: gte
        value: 1
    on_escalate:
      route: supervisor
      timeout: 2h
      fallback: auto_deny

  - id: payments-need-standing
    version: 1
    priority: 1
    scope: ["payment.*", "transfer.*"]
    conditions:
      - all:
          - field: tier_num
            op: gte
            value: 2
          - field: context.amount
            op: lte
            value: 1000
    on_escalate:
      route: security
      timeout: 1h
      fallback: auto_deny
      require_justification: true

  - id: no-credential-reads
    version: 1
    priority: 2
    scope: ["secrets.read", "credentials.*"]
    conditions:
      - field: tier_num
        op: gte
        value: 4
    on_deny:
      code: CONSTRAINT_VIOLATION
      status: 403
      message: credential access requires full autonomy tier

# Per-entity attempt caps by action pattern. Exceeding a cap denies
# until the window rolls over.
rate_limits:
  "deploy.*":
    max: 5
    window: 1h
`
}
