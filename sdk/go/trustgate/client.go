package trustgate

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/trustgate/internal/chain"
	"github.com/ppiankov/trustgate/internal/constraint"
	"github.com/ppiankov/trustgate/internal/escalation"
	"github.com/ppiankov/trustgate/internal/gate"
	"github.com/ppiankov/trustgate/internal/model"
	"github.com/ppiankov/trustgate/internal/scoring"
	"github.com/ppiankov/trustgate/internal/server"
)

// Client holds the wired governance pipeline for in-process
// enforcement. Thread-safe for concurrent tool calls.
type Client struct {
	cfg       clientConfig
	core      *server.Server
	engine    *scoring.Engine
	scheduler *escalation.Scheduler
	pending   *escalation.Store

	closers []func() error
}

// engineTiers feeds the scheduler's default_trust fallback from the
// scoring engine.
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

// New creates a Client with the given options, opening stores under
// the data directory. A missing constraint file falls back to the
// built-in default set so embedders work out of the box; the default
// set fails closed on unmatched actions.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{snapshotMaxAge: time.Minute}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("trustgate: cannot determine home directory: %w", err)
		}
		cfg.dataDir = filepath.Join(home, ".trustgate")
	}
	if err := os.MkdirAll(cfg.dataDir, 0755); err != nil {
		return nil, fmt.Errorf("trustgate: cannot create data directory: %w", err)
	}
	if cfg.constraintsPath == "" {
		cfg.constraintsPath = filepath.Join(cfg.dataDir, "constraints.yaml")
	}

	c := &Client{cfg: cfg}

	scoreStore, err := scoring.OpenStore(filepath.Join(cfg.dataDir, "scores.db"))
	if err != nil {
		return nil, fmt.Errorf("trustgate: %w", err)
	}
	c.closers = append(c.closers, scoreStore.Close)
	c.engine = scoring.NewEngine(nil, scoreStore)

	constraints := constraint.NewStore(cfg.constraintsPath, cfg.constraintTTL)
	if _, err := os.Stat(cfg.constraintsPath); os.IsNotExist(err) {
		set, perr := constraint.Parse([]byte(constraint.DefaultSetYAML()))
		if perr != nil {
			c.Close()
			return nil, fmt.Errorf("trustgate: %w", perr)
		}
		constraints.Replace(set)
	}

	signer, err := chain.LoadOrCreateKey(filepath.Join(cfg.dataDir, "chain.key"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("trustgate: %w", err)
	}
	ledger, err := chain.Open(filepath.Join(cfg.dataDir, "chain.db"), signer)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("trustgate: %w", err)
	}
	c.closers = append(c.closers, ledger.Close)

	c.pending, err = escalation.OpenStore(filepath.Join(cfg.dataDir, "escalations.db"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("trustgate: %w", err)
	}
	c.closers = append(c.closers, c.pending.Close)

	c.scheduler = escalation.NewScheduler(c.pending, engineTiers{engine: c.engine, maxAge: cfg.snapshotMaxAge})

	c.core = server.New(server.Config{SnapshotMaxAge: cfg.snapshotMaxAge}, server.Deps{
		Engine:      c.engine,
		Gate:        gate.New(constraints),
		Constraints: constraints,
		Ledger:      ledger,
		Scheduler:   c.scheduler,
		Escalations: c.pending,
	})

	if _, err := c.scheduler.Restore(); err != nil {
		c.Close()
		return nil, fmt.Errorf("trustgate: %w", err)
	}
	return c, nil
}

// Check evaluates an action without executing anything. The decision
// is recorded on the evidence chain like any other.
func (c *Client) Check(action Action) (Result, error) {
	dec, err := c.core.EvaluateAction(&model.ActionRequest{
		EntityID: c.entityFor(action, ""),
		Action:   action.Name,
		Context:  action.Context,
	})
	if err != nil {
		return Result{}, err
	}
	return toResult(dec), nil
}

// Signal reports one trust observation about an entity.
func (c *Client) Signal(entity, category, signalType string, value float64) (Receipt, error) {
	res, err := c.core.SubmitSignal(model.Signal{
		EntityID: entity,
		Category: model.Category(category),
		Type:     signalType,
		Value:    value,
		Source:   "sdk",
	})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{
		AckID:       res.AckID,
		ScoreBefore: res.ScoreBefore,
		ScoreAfter:  res.ScoreAfter,
		Tier:        res.Tier.String(),
		Flagged:     res.Flagged,
	}, nil
}

// Score returns an entity's current trust standing.
func (c *Client) Score(entity string) (Standing, error) {
	snap, err := c.engine.Snapshot(entity, c.cfg.snapshotMaxAge)
	if err != nil {
		return Standing{}, err
	}
	return Standing{Entity: snap.EntityID, Score: snap.Score, Tier: snap.Tier.String()}, nil
}

// PendingEscalations lists unresolved escalations, optionally filtered
// by route.
func (c *Client) PendingEscalations(route string) ([]Pending, error) {
	items, err := c.pending.Pending(route)
	if err != nil {
		return nil, err
	}
	out := make([]Pending, len(items))
	for i, e := range items {
		out[i] = Pending{ID: e.ID, Entity: e.EntityID, Action: e.Action, Route: e.Route, Deadline: e.Deadline}
	}
	return out, nil
}

// Approve resolves a pending escalation in the entity's favor.
func (c *Client) Approve(id, by, justification string) error {
	_, err := c.scheduler.Resolve(id, escalation.ResolutionApprove, by, justification)
	return err
}

// DenyEscalation resolves a pending escalation against the entity.
func (c *Client) DenyEscalation(id, by, justification string) error {
	_, err := c.scheduler.Resolve(id, escalation.ResolutionDeny, by, justification)
	return err
}

// Close stops escalation timers and releases stores.
func (c *Client) Close() error {
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	var first error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *Client) entityFor(action Action, override string) string {
	if action.Entity != "" {
		return action.Entity
	}
	if override != "" {
		return override
	}
	return c.cfg.entity
}
