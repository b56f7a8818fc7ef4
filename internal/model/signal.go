package model

import (
	"fmt"
	"time"
)

// Category groups signals by what they say about an entity.
type Category string

const (
	CategoryBehavioral Category = "behavioral"
	CategoryCompliance Category = "compliance"
	CategoryIdentity   Category = "identity"
	CategoryContext    Category = "context"
)

// Categories lists all valid signal categories in weight order.
var Categories = []Category{
	CategoryBehavioral,
	CategoryCompliance,
	CategoryIdentity,
	CategoryContext,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryBehavioral, CategoryCompliance, CategoryIdentity, CategoryContext:
		return true
	}
	return false
}

// Signal is one immutable observation about an entity. Signals are
// produced by external collaborators (execution runtime, auth system,
// audit system), consumed once by the scorer, and then live forever in
// the evidence chain.
type Signal struct {
	EntityID  string    `json:"entity_id"`
	Category  Category  `json:"category"`
	Type      string    `json:"signal_type"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// Validate checks signal shape: entity, category, type, and that the
// value is inside the declared range for its type. Range bounds come
// from the scoring config; this checks only what the model layer knows.
func (s *Signal) Validate() error {
	if s.EntityID == "" {
		return &ValidationError{Code: CodeInvalidSignal, Message: "entity_id is required"}
	}
	if !s.Category.Valid() {
		return &ValidationError{Code: CodeInvalidSignal, Message: fmt.Sprintf("unknown category %q", s.Category)}
	}
	if s.Type == "" {
		return &ValidationError{Code: CodeInvalidSignal, Message: "signal_type is required"}
	}
	return nil
}
