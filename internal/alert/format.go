package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("trustgate: %s", event.Type),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Entity:* %s", event.EntityID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Action:* %s", event.Action)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Risk:* %d (%s)", event.RiskScore, event.Tier)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "info"
	switch {
	case event.Type == EventChainBreach || event.RiskScore > 80:
		severity = "critical"
	case event.RiskScore > 60:
		severity = "error"
	case event.RiskScore > 30 || event.Type == EventDeny:
		severity = "warning"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("trustgate %s: %s %s", event.Type, event.EntityID, event.Action),
			"severity": severity,
			"source":   "trustgate",
			"custom_details": map[string]any{
				"entity_id":   event.EntityID,
				"action":      event.Action,
				"decision_id": event.DecisionID,
				"outcome":     event.Outcome,
				"risk_score":  event.RiskScore,
				"reason":      event.Reason,
			},
		},
	}
	return json.Marshal(payload)
}
