package model

// ActionRequest is an already-structured action proposed by an entity.
// Free-form intent interpretation happens upstream; by the time a
// request reaches the gate it has a name and typed context fields.
type ActionRequest struct {
	RequestID string         `json:"request_id"`
	EntityID  string         `json:"entity_id"`
	Action    string         `json:"action"`
	Context   map[string]any `json:"context,omitempty"`
}

// ContextString returns a string context field, or "" if absent.
func (a *ActionRequest) ContextString(key string) string {
	if a.Context == nil {
		return ""
	}
	s, _ := a.Context[key].(string)
	return s
}

// ContextFloat returns a numeric context field, or 0 if absent.
// JSON numbers decode as float64; ints are accepted for direct callers.
func (a *ActionRequest) ContextFloat(key string) float64 {
	if a.Context == nil {
		return 0
	}
	switch v := a.Context[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
