package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/trustgate/internal/alert"
	"github.com/ppiankov/trustgate/internal/chain"
	"github.com/ppiankov/trustgate/internal/constraint"
	"github.com/ppiankov/trustgate/internal/escalation"
	"github.com/ppiankov/trustgate/internal/gate"
	"github.com/ppiankov/trustgate/internal/model"
	"github.com/ppiankov/trustgate/internal/scoring"
	"github.com/ppiankov/trustgate/internal/server"
)

var (
	flagDataDir     string
	flagConstraints string
	flagAlerts      string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Data directory (default ~/.trustgate)")
	rootCmd.PersistentFlags().StringVar(&flagConstraints, "constraints", "", "Path to constraint set YAML (default <data-dir>/constraints.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagAlerts, "alerts", "", "Path to alert webhook YAML (optional)")
}

func resolveDataDir() (string, error) {
	if flagDataDir != "" {
		return flagDataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".trustgate"), nil
}

func resolveConstraintsPath(dir string) string {
	if flagConstraints != "" {
		return flagConstraints
	}
	return filepath.Join(dir, "constraints.yaml")
}

// stack is the wired component set. Commands that need the full
// pipeline construct a server over Deps(); one-shot commands reach the
// components directly.
type stack struct {
	engine      *scoring.Engine
	constraints *constraint.Store
	ledger      *chain.Ledger
	scheduler   *escalation.Scheduler
	escalations *escalation.Store
	alerts      *alert.Dispatcher

	closers []func() error
}

// engineTiers adapts the scoring engine to the escalation scheduler's
// tier reader for the default_trust fallback.
type engineTiers struct {
	engine *scoring.Engine
	maxAge time.Duration
}

func (t engineTiers) CurrentTier(entityID string) (model.Tier, error) {
	snap, err := t.engine.Snapshot(entityID, t.maxAge)
	if err != nil {
		return model.TierRestricted, err
	}
	return snap.Tier, nil
}

// buildStack opens every store under the data directory and wires the
// pipeline. ttl controls constraint-set refresh for long-running
// processes; one-shot commands pass zero.
func buildStack(cfg server.Config, ttl time.Duration) (*stack, error) {
	dir, err := resolveDataDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create data directory: %w", err)
	}

	st := &stack{}

	scoreStore, err := scoring.OpenStore(filepath.Join(dir, "scores.db"))
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, scoreStore.Close)
	st.engine = scoring.NewEngine(nil, scoreStore)

	st.constraints = constraint.NewStore(resolveConstraintsPath(dir), ttl)

	signer, err := chain.LoadOrCreateKey(filepath.Join(dir, "chain.key"))
	if err != nil {
		st.Close()
		return nil, err
	}
	st.ledger, err = chain.Open(filepath.Join(dir, "chain.db"), signer)
	if err != nil {
		st.Close()
		return nil, err
	}
	st.closers = append(st.closers, st.ledger.Close)

	st.escalations, err = escalation.OpenStore(filepath.Join(dir, "escalations.db"))
	if err != nil {
		st.Close()
		return nil, err
	}
	st.closers = append(st.closers, st.escalations.Close)

	maxAge := cfg.SnapshotMaxAge
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	st.scheduler = escalation.NewScheduler(st.escalations, engineTiers{engine: st.engine, maxAge: maxAge})

	if flagAlerts != "" {
		configs, err := alert.LoadConfig(flagAlerts)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.alerts = alert.NewDispatcher(configs)
	}
	return st, nil
}

// Deps bundles the components for server or MCP construction.
func (st *stack) Deps() server.Deps {
	return server.Deps{
		Engine:      st.engine,
		Gate:        gate.New(st.constraints),
		Constraints: st.constraints,
		Ledger:      st.ledger,
		Scheduler:   st.scheduler,
		Escalations: st.escalations,
		Alerts:      st.alerts,
	}
}

// Close releases stores and stops escalation timers.
func (st *stack) Close() {
	if st.scheduler != nil {
		st.scheduler.Stop()
	}
	for i := len(st.closers) - 1; i >= 0; i-- {
		st.closers[i]()
	}
}
