package alert

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Event types dispatched to webhooks.
const (
	EventDeny          = "deny"
	EventEscalate      = "escalate"
	EventSignalFlagged = "signal_flagged"
	EventChainBreach   = "chain_breach"
	EventResolved      = "escalation_resolved"
)

// Config defines a webhook alert destination.
type Config struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // subset of the Event* types
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// LoadConfig reads webhook destinations from a YAML file holding a
// top-level "alerts" list.
func LoadConfig(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alert config: %w", err)
	}
	var doc struct {
		Alerts []Config `yaml:"alerts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse alert config: %w", err)
	}
	for i, c := range doc.Alerts {
		if c.URL == "" {
			return nil, fmt.Errorf("alert %d: url is required", i)
		}
	}
	return doc.Alerts, nil
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp  string `json:"timestamp"`
	Type       string `json:"type"`
	EntityID   string `json:"entity_id,omitempty"`
	Action     string `json:"action,omitempty"`
	DecisionID string `json:"decision_id,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Reason     string `json:"reason"`
	RiskScore  int    `json:"risk_score,omitempty"`
	Tier       string `json:"tier,omitempty"`
}
