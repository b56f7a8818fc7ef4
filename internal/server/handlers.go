package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/trustgate/internal/alert"
	"github.com/ppiankov/trustgate/internal/chain"
	"github.com/ppiankov/trustgate/internal/model"
)

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var sig model.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		writeError(w, r, http.StatusBadRequest, model.CodeInvalidSignal, "malformed signal body", err.Error())
		return
	}

	res, err := s.SubmitSignal(sig)
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req model.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.CodeInvalidAction, "malformed action request", err.Error())
		return
	}

	dec, err := s.EvaluateAction(&req)
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

func (s *Server) dispatchDecision(eventType string, dec *model.Decision) {
	s.deps.Alerts.Dispatch(alert.Event{
		Timestamp:  dec.CreatedAt.Format(time.RFC3339),
		Type:       eventType,
		EntityID:   dec.EntityID,
		Action:     dec.Action,
		DecisionID: dec.DecisionID,
		Outcome:    string(dec.Outcome),
		Reason:     dec.Reason,
		RiskScore:  dec.RiskScore,
		Tier:       dec.Tier.String(),
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Resolution    string `json:"resolution"`
		ResolvedBy    string `json:"resolved_by"`
		Justification string `json:"justification"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, model.CodeInvalidAction, "malformed resolution body", err.Error())
		return
	}

	settled, err := s.deps.Scheduler.Resolve(id, body.Resolution, body.ResolvedBy, body.Justification)
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settled)
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	pending, err := s.deps.Escalations.Pending(r.URL.Query().Get("route"))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.CodeInternal, "failed to list escalations", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"escalations": pending, "count": len(pending)})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	entityID := r.PathValue("entity_id")
	snap, err := s.deps.Engine.Snapshot(entityID, s.cfg.SnapshotMaxAge)
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entity_id":        snap.EntityID,
		"score":            snap.Score,
		"tier":             snap.Tier.String(),
		"tier_label":       snap.Tier.Label(),
		"computed_at_unix": snap.ComputedAt,
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	from := queryInt(r, "from")
	to := queryInt(r, "to")
	report, err := s.deps.Ledger.Verify(from, to)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.CodeInternal, "verification failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode == chain.ModeZK {
		seq := queryInt(r, "seq")
		field := r.URL.Query().Get("field")
		threshold, err := strconv.ParseFloat(r.URL.Query().Get("threshold"), 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.CodeInvalidAction, "zk export requires a numeric threshold", "")
			return
		}
		claim, err := s.deps.Ledger.ExportClaim(seq, field, threshold)
		if err != nil {
			writeModelError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, claim)
		return
	}

	var redact []string
	if raw := r.URL.Query().Get("redact"); raw != "" {
		redact = strings.Split(raw, ",")
	}
	export, err := s.deps.Ledger.ExportRange(queryInt(r, "from"), queryInt(r, "to"), mode, redact)
	if err != nil {
		writeModelError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	if n, err := s.deps.Ledger.Len(); err == nil {
		health["chain_length"] = n
	}
	if set, err := s.deps.Constraints.Active(); err == nil {
		health["constraint_set"] = set.Version
		health["constraint_hash"] = set.Hash
	} else {
		health["status"] = "degraded"
		health["constraint_error"] = err.Error()
	}
	status := http.StatusOK
	if health["status"] != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func queryInt(r *http.Request, key string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeModelError maps the error taxonomy to HTTP statuses: validation
// to 400 (404 for missing resources), availability to 503, everything
// else to 500.
func writeModelError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		status := http.StatusBadRequest
		if verr.Code == model.CodeNotFound {
			status = http.StatusNotFound
		}
		writeError(w, r, status, verr.Code, verr.Message, "")
		return
	}
	var aerr *model.AvailabilityError
	if errors.As(err, &aerr) {
		details := ""
		if aerr.Err != nil {
			details = aerr.Err.Error()
		}
		writeError(w, r, http.StatusServiceUnavailable, aerr.Code, aerr.Message, details)
		return
	}
	writeError(w, r, http.StatusInternalServerError, model.CodeInternal, "internal error", err.Error())
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message, details string) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	writeJSON(w, status, map[string]any{
		"error": model.NewAPIError(code, message, details, requestID),
	})
}
