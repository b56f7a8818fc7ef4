package trustgate

import "time"

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	dataDir         string
	constraintsPath string
	entity          string
	snapshotMaxAge  time.Duration
	constraintTTL   time.Duration
}

// WithDataDir sets the directory holding the score, chain, and
// escalation stores (default ~/.trustgate).
func WithDataDir(path string) Option {
	return func(c *clientConfig) { c.dataDir = path }
}

// WithConstraints sets the path to a constraint set YAML file
// (default <data-dir>/constraints.yaml).
func WithConstraints(path string) Option {
	return func(c *clientConfig) { c.constraintsPath = path }
}

// WithEntity sets the default acting entity for actions that do not
// name one.
func WithEntity(id string) Option {
	return func(c *clientConfig) { c.entity = id }
}

// WithSnapshotMaxAge bounds how stale a trust score read may be.
func WithSnapshotMaxAge(d time.Duration) Option {
	return func(c *clientConfig) { c.snapshotMaxAge = d }
}

// WithConstraintTTL sets how often the constraint set is re-read from
// disk. Zero disables refresh.
func WithConstraintTTL(d time.Duration) Option {
	return func(c *clientConfig) { c.constraintTTL = d }
}

// WrapOption configures a single Wrap call.
type WrapOption func(*wrapConfig)

type wrapConfig struct {
	entity string
}

// WrapWithEntity overrides the client-level entity for this wrap.
func WrapWithEntity(id string) WrapOption {
	return func(w *wrapConfig) { w.entity = id }
}
