package constraint

import "strings"

// MatchPattern matches an action name against a scope pattern.
// Patterns: "*" any, "*x*" contains, "*suffix" suffix, "prefix*"
// prefix, exact otherwise. Matching is case-insensitive.
func MatchPattern(pattern, action string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}

	p := strings.ToLower(pattern)
	a := strings.ToLower(action)

	if strings.HasPrefix(p, "*") && strings.HasSuffix(p, "*") {
		return strings.Contains(a, p[1:len(p)-1])
	}
	if strings.HasPrefix(p, "*") {
		return strings.HasSuffix(a, p[1:])
	}
	if strings.HasSuffix(p, "*") {
		return strings.HasPrefix(a, p[:len(p)-1])
	}
	return a == p
}
