package scoring

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/trustgate/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	entity_id   TEXT PRIMARY KEY,
	created_at  TEXT NOT NULL,
	suspended   INTEGER NOT NULL DEFAULT 0,
	merged_into TEXT,
	score_cap   INTEGER
);

CREATE TABLE IF NOT EXISTS signals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id   TEXT NOT NULL,
	category    TEXT NOT NULL,
	signal_type TEXT NOT NULL,
	value       REAL NOT NULL,
	ts          INTEGER NOT NULL,
	source      TEXT NOT NULL,
	flagged     INTEGER NOT NULL DEFAULT 0,
	multiplier  REAL NOT NULL DEFAULT 1,
	FOREIGN KEY (entity_id) REFERENCES entities(entity_id)
);

CREATE INDEX IF NOT EXISTS idx_signals_entity_ts ON signals(entity_id, ts);
`

// StoredSignal is a signal row as persisted: the raw observation plus
// the anti-gaming annotations fixed at submit time. Rows are immutable;
// score recomputation reads them verbatim.
type StoredSignal struct {
	model.Signal
	Flagged    bool
	Multiplier float64
}

// Store persists entities and their signal history in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the scoring database and runs migrations.
// Use ":memory:" for tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scoring db: %w", err)
	}
	// One connection: a second pool connection to :memory: would open
	// a separate empty database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate scoring db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureEntity creates the entity row on first contact. Idempotent.
func (s *Store) EnsureEntity(entityID string, now time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO entities (entity_id, created_at) VALUES (?, ?)
		 ON CONFLICT(entity_id) DO NOTHING`,
		entityID, now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure entity %q: %w", entityID, err)
	}
	return nil
}

// Suspended reports whether the entity is soft-suspended.
// Unknown entities are not suspended.
func (s *Store) Suspended(entityID string) (bool, error) {
	var suspended int
	err := s.db.QueryRow(`SELECT suspended FROM entities WHERE entity_id = ?`, entityID).Scan(&suspended)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read entity %q: %w", entityID, err)
	}
	return suspended != 0, nil
}

// SetSuspended soft-suspends or reinstates an entity. Entities are
// never hard-deleted, preserving evidence linkage.
func (s *Store) SetSuspended(entityID string, suspended bool) error {
	v := 0
	if suspended {
		v = 1
	}
	res, err := s.db.Exec(`UPDATE entities SET suspended = ? WHERE entity_id = ?`, v, entityID)
	if err != nil {
		return fmt.Errorf("failed to update entity %q: %w", entityID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("entity %q not found", entityID)
	}
	return nil
}

// ScoreCap returns the entity's durable score ceiling, if one was set
// by a merge. Caps survive recomputation.
func (s *Store) ScoreCap(entityID string) (int, bool, error) {
	var cap sql.NullInt64
	err := s.db.QueryRow(`SELECT score_cap FROM entities WHERE entity_id = ?`, entityID).Scan(&cap)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read score cap for %q: %w", entityID, err)
	}
	if !cap.Valid {
		return 0, false, nil
	}
	return int(cap.Int64), true, nil
}

// SetScoreCap pins the entity's score ceiling. Lowering only: an
// existing lower cap is kept.
func (s *Store) SetScoreCap(entityID string, cap int) error {
	_, err := s.db.Exec(
		`UPDATE entities SET score_cap = CASE
			WHEN score_cap IS NULL OR score_cap > ? THEN ?
			ELSE score_cap END
		 WHERE entity_id = ?`,
		cap, cap, entityID,
	)
	if err != nil {
		return fmt.Errorf("failed to set score cap for %q: %w", entityID, err)
	}
	return nil
}

// MarkMerged records that src was merged into dst. The src row stays.
func (s *Store) MarkMerged(src, dst string) error {
	_, err := s.db.Exec(`UPDATE entities SET merged_into = ? WHERE entity_id = ?`, dst, src)
	if err != nil {
		return fmt.Errorf("failed to mark %q merged into %q: %w", src, dst, err)
	}
	return nil
}

// AppendSignal persists one signal row.
func (s *Store) AppendSignal(sig StoredSignal) error {
	flagged := 0
	if sig.Flagged {
		flagged = 1
	}
	// Unix nanos: integer timestamps compare and sort exactly, where
	// variable-width RFC 3339 strings mis-order at second boundaries.
	_, err := s.db.Exec(
		`INSERT INTO signals (entity_id, category, signal_type, value, ts, source, flagged, multiplier)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.EntityID, string(sig.Category), sig.Type, sig.Value,
		sig.Timestamp.UTC().UnixNano(), sig.Source, flagged, sig.Multiplier,
	)
	if err != nil {
		return fmt.Errorf("failed to append signal: %w", err)
	}
	return nil
}

// SignalsUpTo returns the entity's signals with timestamp <= at, oldest
// first. This is the sole input to score computation.
func (s *Store) SignalsUpTo(entityID string, at time.Time) ([]StoredSignal, error) {
	rows, err := s.db.Query(
		`SELECT category, signal_type, value, ts, source, flagged, multiplier
		 FROM signals WHERE entity_id = ? AND ts <= ? ORDER BY ts, id`,
		entityID, at.UTC().UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals for %q: %w", entityID, err)
	}
	defer rows.Close()

	var out []StoredSignal
	for rows.Next() {
		var (
			sig     StoredSignal
			cat     string
			ts      int64
			flagged int
		)
		if err := rows.Scan(&cat, &sig.Type, &sig.Value, &ts, &sig.Source, &flagged, &sig.Multiplier); err != nil {
			return nil, fmt.Errorf("failed to scan signal row: %w", err)
		}
		sig.EntityID = entityID
		sig.Category = model.Category(cat)
		sig.Flagged = flagged != 0
		sig.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, sig)
	}
	return out, rows.Err()
}

// HasFlaggedSince reports whether any signal for the entity was
// flagged by anti-gaming at or after the given time.
func (s *Store) HasFlaggedSince(entityID string, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM signals WHERE entity_id = ? AND flagged = 1 AND ts >= ?`,
		entityID, since.UTC().UnixNano(),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check flagged signals for %q: %w", entityID, err)
	}
	return n > 0, nil
}
