// Package server exposes the governance core over HTTP JSON. Every
// endpoint shares one error envelope, and every decision or signal that
// passes through lands in the evidence chain before the response is
// written.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ppiankov/trustgate/internal/alert"
	"github.com/ppiankov/trustgate/internal/chain"
	"github.com/ppiankov/trustgate/internal/constraint"
	"github.com/ppiankov/trustgate/internal/escalation"
	"github.com/ppiankov/trustgate/internal/gate"
	"github.com/ppiankov/trustgate/internal/model"
	"github.com/ppiankov/trustgate/internal/scoring"
)

// Config holds HTTP server configuration.
type Config struct {
	Port int

	// SnapshotMaxAge bounds how stale a trust snapshot may be when
	// the gate reads it. Zero means 60 seconds.
	SnapshotMaxAge time.Duration
}

// Deps are the wired governance components the server fronts.
type Deps struct {
	Engine      *scoring.Engine
	Gate        *gate.Evaluator
	Constraints *constraint.Store
	Ledger      *chain.Ledger
	Scheduler   *escalation.Scheduler
	Escalations *escalation.Store
	Alerts      *alert.Dispatcher
}

// Server is the HTTP front of the governance core.
type Server struct {
	cfg  Config
	deps Deps
	srv  *http.Server
}

// New creates the server and hooks escalation settlement and chain
// breach events into evidence and alerting.
func New(cfg Config, deps Deps) *Server {
	if cfg.SnapshotMaxAge <= 0 {
		cfg.SnapshotMaxAge = 60 * time.Second
	}
	s := &Server{cfg: cfg, deps: deps}

	if deps.Scheduler != nil {
		deps.Scheduler.OnSettled = s.onEscalationSettled
	}
	if deps.Ledger != nil {
		deps.Ledger.OnBreach = s.onChainBreach
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/signal", s.handleSignal)
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("POST /v1/escalation/{id}/resolve", s.handleResolve)
	mux.HandleFunc("GET /v1/escalations", s.handlePending)
	mux.HandleFunc("GET /v1/score/{entity_id}", s.handleScore)
	mux.HandleFunc("GET /v1/chain/verify", s.handleVerify)
	mux.HandleFunc("GET /v1/chain/export", s.handleExport)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}
	return s
}

// Handler returns the route table, for tests and embedders.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins listening. Blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	err = s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) onEscalationSettled(e *escalation.Escalation, timedOut bool) {
	payload := map[string]any{
		"escalation_id": e.ID,
		"decision_id":   e.DecisionID,
		"entity_id":     e.EntityID,
		"action":        e.Action,
		"route":         e.Route,
		"status":        e.Status,
		"resolution":    e.Resolution,
		"resolved_by":   e.ResolvedBy,
		"justification": e.Justification,
		"timed_out":     timedOut,
	}
	if timedOut {
		payload["code"] = model.CodeEscalationTimeout
	}
	if _, err := s.deps.Ledger.Append(chain.Meta{
		Kind:       chain.KindEscalationResolution,
		EntityID:   e.EntityID,
		DecisionID: e.DecisionID,
		Action:     e.Action,
	}, payload); err != nil {
		// The settlement already committed; an unrecordable resolution
		// is an evidence gap operators must hear about.
		s.deps.Alerts.Dispatch(alert.Event{
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Type:       alert.EventChainBreach,
			EntityID:   e.EntityID,
			Action:     e.Action,
			DecisionID: e.DecisionID,
			RiskScore:  100,
			Reason:     fmt.Sprintf("failed to record resolution evidence for escalation %s: %v", e.ID, err),
		})
	}

	s.deps.Alerts.Dispatch(alert.Event{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Type:       alert.EventResolved,
		EntityID:   e.EntityID,
		Action:     e.Action,
		DecisionID: e.DecisionID,
		Outcome:    e.Status,
		Reason:     fmt.Sprintf("escalation %s settled: %s by %s", e.ID, e.Resolution, e.ResolvedBy),
	})
}

func (s *Server) onChainBreach(report chain.VerificationReport) {
	s.deps.Alerts.Dispatch(alert.Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Type:      alert.EventChainBreach,
		Reason:    fmt.Sprintf("evidence chain broken at seq %d: %s", report.FirstBreak, report.Reason),
		RiskScore: 100,
	})
}
