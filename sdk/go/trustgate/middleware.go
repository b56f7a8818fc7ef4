package trustgate

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// EntityHeader names the acting entity on incoming requests. Absent
// header falls back to the client-level entity.
const EntityHeader = "X-Trustgate-Entity"

// Middleware returns an http.Handler that evaluates each request
// before passing to the next handler. Blocked requests receive a 403
// with a JSON body; escalated requests include the escalation ID.
func (c *Client) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := c.Check(actionFromRequest(r))
		if err != nil {
			http.Error(w, "evaluation failed", http.StatusInternalServerError)
			return
		}

		if !result.Allowed() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{
				"blocked":       true,
				"outcome":       string(result.Outcome),
				"code":          result.Code,
				"reason":        result.Reason,
				"escalation_id": result.EscalationID,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// actionFromRequest maps an HTTP request to an SDK Action. The action
// name buckets by method: "http.get", "http.post".
func actionFromRequest(r *http.Request) Action {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	egress := "external"
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		egress = "internal"
	}

	var bytes float64
	if r.ContentLength > 0 {
		bytes = float64(r.ContentLength)
	}

	return Action{
		Entity: r.Header.Get(EntityHeader),
		Name:   "http." + strings.ToLower(r.Method),
		Context: map[string]any{
			"path":        r.URL.Path,
			"destination": host,
			"egress":      egress,
			"bytes":       bytes,
		},
	}
}
