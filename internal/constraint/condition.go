package constraint

import (
	"fmt"
	"strings"
)

// Condition is one node of the predicate tree: either a leaf
// (field/op/value) or a combinator (all/any/not). Exactly one form may
// be populated per node.
type Condition struct {
	Field string `yaml:"field,omitempty" json:"field,omitempty"`
	Op    string `yaml:"op,omitempty" json:"op,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`

	All []Condition `yaml:"all,omitempty" json:"all,omitempty"`
	Any []Condition `yaml:"any,omitempty" json:"any,omitempty"`
	Not *Condition  `yaml:"not,omitempty" json:"not,omitempty"`
}

// Supported leaf operators.
const (
	OpEq       = "eq"
	OpNe       = "ne"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpIn       = "in"
	OpContains = "contains"
	OpPrefix   = "prefix"
)

// Eval interprets the condition against a flat field map. Missing
// fields fail the leaf rather than erroring: a constraint written
// against a field the caller did not supply must not pass by accident.
func (c *Condition) Eval(fields map[string]any) bool {
	switch {
	case len(c.All) > 0:
		for i := range c.All {
			if !c.All[i].Eval(fields) {
				return false
			}
		}
		return true
	case len(c.Any) > 0:
		for i := range c.Any {
			if c.Any[i].Eval(fields) {
				return true
			}
		}
		return false
	case c.Not != nil:
		return !c.Not.Eval(fields)
	}

	actual, ok := fields[c.Field]
	if !ok {
		return false
	}
	return evalLeaf(c.Op, actual, c.Value)
}

// Validate checks the node is well-formed: exactly one form, known
// operator, no empty combinators below.
func (c *Condition) Validate() error {
	forms := 0
	if c.Field != "" || c.Op != "" {
		forms++
	}
	if len(c.All) > 0 {
		forms++
	}
	if len(c.Any) > 0 {
		forms++
	}
	if c.Not != nil {
		forms++
	}
	if forms != 1 {
		return fmt.Errorf("condition must be exactly one of leaf/all/any/not")
	}

	if c.Field != "" || c.Op != "" {
		switch c.Op {
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpContains, OpPrefix:
		default:
			return fmt.Errorf("unknown operator %q", c.Op)
		}
		if c.Field == "" {
			return fmt.Errorf("leaf condition missing field")
		}
		return nil
	}

	for i := range c.All {
		if err := c.All[i].Validate(); err != nil {
			return err
		}
	}
	for i := range c.Any {
		if err := c.Any[i].Validate(); err != nil {
			return err
		}
	}
	if c.Not != nil {
		return c.Not.Validate()
	}
	return nil
}

func evalLeaf(op string, actual, expected any) bool {
	switch op {
	case OpEq:
		return compareEq(actual, expected)
	case OpNe:
		return !compareEq(actual, expected)
	case OpGt, OpGte, OpLt, OpLte:
		a, aok := toFloat(actual)
		b, bok := toFloat(expected)
		if !aok || !bok {
			return false
		}
		switch op {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	case OpIn:
		list, ok := expected.([]any)
		if !ok {
			return false
		}
		for _, v := range list {
			if compareEq(actual, v) {
				return true
			}
		}
		return false
	case OpContains:
		return strings.Contains(toString(actual), toString(expected))
	case OpPrefix:
		return strings.HasPrefix(toString(actual), toString(expected))
	default:
		return false
	}
}

// compareEq compares numerically when both sides are numeric, otherwise
// as case-sensitive strings. YAML ints and JSON float64s must agree.
func compareEq(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return toString(a) == toString(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
