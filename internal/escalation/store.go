package escalation

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/trustgate/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS escalations (
	id                    TEXT PRIMARY KEY,
	decision_id           TEXT NOT NULL,
	request_id            TEXT,
	entity_id             TEXT NOT NULL,
	action                TEXT NOT NULL,
	route                 TEXT NOT NULL,
	fallback              TEXT NOT NULL,
	require_justification INTEGER NOT NULL DEFAULT 0,
	status                TEXT NOT NULL DEFAULT 'pending',
	resolution            TEXT,
	resolved_by           TEXT,
	justification         TEXT,
	created_at            TEXT NOT NULL,
	deadline              TEXT NOT NULL,
	resolved_at           TEXT
);

CREATE INDEX IF NOT EXISTS idx_escalations_status ON escalations(status);
CREATE INDEX IF NOT EXISTS idx_escalations_entity ON escalations(entity_id);
`

// Store persists escalations in SQLite. The pending-to-settled
// transition is a single conditional UPDATE, which is what makes
// resolution idempotent under the timer/human race.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the escalation database.
// Use ":memory:" for tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open escalation db: %w", err)
	}
	// One connection: a second pool connection to :memory: would open
	// a separate empty database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate escalation db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new pending escalation.
func (s *Store) Create(e *Escalation) error {
	_, err := s.db.Exec(
		`INSERT INTO escalations (id, decision_id, request_id, entity_id, action, route, fallback,
		                          require_justification, status, created_at, deadline)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.DecisionID, e.RequestID, e.EntityID, e.Action, e.Route, e.Fallback,
		boolInt(e.RequireJustification), StatusPending,
		e.CreatedAt.UTC().Format(time.RFC3339Nano), e.Deadline.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create escalation %q: %w", e.ID, err)
	}
	return nil
}

// Get returns one escalation by ID.
func (s *Store) Get(id string) (*Escalation, error) {
	row := s.db.QueryRow(selectCols+` FROM escalations WHERE id = ?`, id)
	e, err := scanEscalation(row)
	if err == sql.ErrNoRows {
		return nil, &model.ValidationError{Code: model.CodeNotFound, Message: fmt.Sprintf("escalation %q not found", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read escalation %q: %w", id, err)
	}
	return e, nil
}

// Pending lists unresolved escalations, oldest deadline first. An
// empty route matches all routes.
func (s *Store) Pending(route string) ([]*Escalation, error) {
	q := selectCols + ` FROM escalations WHERE status = 'pending'`
	args := []any{}
	if route != "" {
		q += ` AND route = ?`
		args = append(args, route)
	}
	q += ` ORDER BY deadline ASC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending escalations: %w", err)
	}
	defer rows.Close()

	var out []*Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// settle moves a pending escalation to a final state. Returns false
// when the escalation was already settled: exactly one caller wins.
func (s *Store) settle(id, status, resolution, resolvedBy, justification string, at time.Time) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE escalations
		 SET status = ?, resolution = ?, resolved_by = ?, justification = ?, resolved_at = ?
		 WHERE id = ? AND status = 'pending'`,
		status, resolution, resolvedBy, justification, at.UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to settle escalation %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to settle escalation %q: %w", id, err)
	}
	return n == 1, nil
}

const selectCols = `SELECT id, decision_id, COALESCE(request_id,''), entity_id, action, route, fallback,
	require_justification, status, COALESCE(resolution,''), COALESCE(resolved_by,''),
	COALESCE(justification,''), created_at, deadline, resolved_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscalation(row rowScanner) (*Escalation, error) {
	var e Escalation
	var reqJust int
	var createdAt, deadline string
	var resolvedAt sql.NullString
	err := row.Scan(&e.ID, &e.DecisionID, &e.RequestID, &e.EntityID, &e.Action, &e.Route, &e.Fallback,
		&reqJust, &e.Status, &e.Resolution, &e.ResolvedBy, &e.Justification,
		&createdAt, &deadline, &resolvedAt)
	if err != nil {
		return nil, err
	}
	e.RequireJustification = reqJust != 0
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.Deadline, _ = time.Parse(time.RFC3339Nano, deadline)
	if resolvedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, resolvedAt.String)
		if err == nil {
			e.ResolvedAt = &t
		}
	}
	return &e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
