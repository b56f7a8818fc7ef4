// Package chain is the append-only evidence ledger. Every governance
// event becomes a hash-linked, Ed25519-signed record in SQLite, so any
// retroactive edit breaks the chain from that point forward and is
// detectable by recomputation alone.
package chain

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/trustgate/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS evidence (
	seq          INTEGER PRIMARY KEY,
	ts           TEXT NOT NULL,
	kind         TEXT NOT NULL,
	entity_id    TEXT,
	decision_id  TEXT,
	action       TEXT,
	payload      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	chain_hash   TEXT NOT NULL,
	signature    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evidence_entity ON evidence(entity_id);
CREATE INDEX IF NOT EXISTS idx_evidence_decision ON evidence(decision_id);

CREATE TABLE IF NOT EXISTS claim_salts (
	commitment TEXT PRIMARY KEY,
	seq        INTEGER NOT NULL,
	salt       TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// VerificationReport is the outcome of a chain verification pass.
// Once FirstBreak is set, every later record is presumptively invalid:
// the chain hash at the break poisons all downstream links.
type VerificationReport struct {
	Valid      bool   `json:"valid"`
	From       int64  `json:"from_seq"`
	To         int64  `json:"to_seq"`
	Checked    int    `json:"records_checked"`
	FirstBreak int64  `json:"first_break_seq,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Ledger is the single writer for the evidence chain. Reads are
// lock-free through SQLite; Append holds a mutex only around the
// hash/sign/insert critical section.
type Ledger struct {
	db     *sql.DB
	signer *Signer

	// OnBreach, if set, is invoked after a failed verification has
	// been recorded. Used to fan out alerts.
	OnBreach func(VerificationReport)

	// CheckpointEvery appends a Merkle checkpoint record after this
	// many ordinary records. Zero disables checkpointing.
	CheckpointEvery int

	mu          sync.Mutex
	nextSeq     int64
	prevHash    string
	sinceCkpt   int
	batchStart  int64
	batchHashes []string

	// breachFrom is the first sequence of a detected break. While
	// non-zero, exports touching [breachFrom, tail] are refused.
	breachFrom atomic.Int64

	now func() time.Time
}

// Open opens (or creates) the evidence database and recovers the chain
// tail. Use ":memory:" for tests.
func Open(path string, signer *Signer) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open evidence db: %w", err)
	}
	// One connection: a second pool connection to :memory: would open
	// a separate empty database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate evidence db: %w", err)
	}

	l := &Ledger{
		db:       db,
		signer:   signer,
		nextSeq:  1,
		prevHash: GenesisHash,
		now:      time.Now,
	}

	var seq int64
	var hash string
	err = db.QueryRow(`SELECT seq, chain_hash FROM evidence ORDER BY seq DESC LIMIT 1`).Scan(&seq, &hash)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("failed to recover chain tail: %w", err)
	default:
		l.nextSeq = seq + 1
		l.prevHash = hash
	}
	l.batchStart = l.nextSeq
	if err := l.restoreBreachPosture(); err != nil {
		return nil, err
	}
	return l, nil
}

// restoreBreachPosture replays breach and clear records so an export
// block survives restarts. The last such record wins.
func (l *Ledger) restoreBreachPosture() error {
	rows, err := l.db.Query(
		`SELECT kind, payload FROM evidence WHERE kind IN (?, ?) ORDER BY seq ASC`,
		KindChainBreach, KindBreachCleared)
	if err != nil {
		return fmt.Errorf("failed to read breach history: %w", err)
	}
	defer rows.Close()

	var from int64
	for rows.Next() {
		var kind, payload string
		if err := rows.Scan(&kind, &payload); err != nil {
			return fmt.Errorf("failed to scan breach record: %w", err)
		}
		if kind == KindBreachCleared {
			from = 0
			continue
		}
		var body breachPayload
		if err := json.Unmarshal([]byte(payload), &body); err != nil {
			return fmt.Errorf("failed to decode breach record: %w", err)
		}
		if from == 0 || body.FirstBreak < from {
			from = body.FirstBreak
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	l.breachFrom.Store(from)
	return nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// PublicKeyHex returns the chain's verifying key.
func (l *Ledger) PublicKeyHex() string {
	return l.signer.PublicKeyHex()
}

// Meta identifies what a record is about. EntityID, DecisionID, and
// Action are indexed for query; the payload stays opaque.
type Meta struct {
	Kind       string
	EntityID   string
	DecisionID string
	Action     string
}

// Append canonicalizes the payload, links it to the chain tail, signs
// the chain hash, and writes the record durably before returning it.
func (l *Ledger) Append(meta Meta, payload any) (*Record, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.appendLocked(meta, canonical)
	if err != nil {
		return nil, err
	}

	if l.CheckpointEvery > 0 && meta.Kind != KindCheckpoint {
		l.batchHashes = append(l.batchHashes, rec.ContentHash)
		l.sinceCkpt++
		if l.sinceCkpt >= l.CheckpointEvery {
			if err := l.checkpointLocked(rec.Seq); err != nil {
				return nil, err
			}
		}
	}
	return rec, nil
}

func (l *Ledger) appendLocked(meta Meta, canonical []byte) (*Record, error) {
	rec := &Record{
		Seq:         l.nextSeq,
		Timestamp:   l.now().UTC().Format(time.RFC3339Nano),
		Kind:        meta.Kind,
		EntityID:    meta.EntityID,
		DecisionID:  meta.DecisionID,
		Action:      meta.Action,
		Payload:     canonical,
		ContentHash: HashBytes(canonical),
	}
	rec.ChainHash = chainHash(l.prevHash, rec.ContentHash, rec.Timestamp)
	rec.Signature = l.signer.Sign(rec.ChainHash)

	_, err := l.db.Exec(
		`INSERT INTO evidence (seq, ts, kind, entity_id, decision_id, action, payload, content_hash, chain_hash, signature)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Seq, rec.Timestamp, rec.Kind, nullable(rec.EntityID), nullable(rec.DecisionID), nullable(rec.Action),
		string(rec.Payload), rec.ContentHash, rec.ChainHash, rec.Signature,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append evidence record: %w", err)
	}

	l.nextSeq++
	l.prevHash = rec.ChainHash
	return rec, nil
}

func (l *Ledger) checkpointLocked(batchEnd int64) error {
	payload := checkpointPayload{
		BatchStart: l.batchStart,
		BatchEnd:   batchEnd,
		MerkleRoot: MerkleRoot(l.batchHashes),
	}
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return err
	}
	if _, err := l.appendLocked(Meta{Kind: KindCheckpoint}, canonical); err != nil {
		return err
	}
	l.batchHashes = l.batchHashes[:0]
	l.sinceCkpt = 0
	l.batchStart = l.nextSeq
	return nil
}

// Verify recomputes the hash chain and signatures over [from, to]
// (zero bounds mean the full chain). On a broken link it records a
// chain_breach record, fires OnBreach, and reports the first break;
// the break itself is never repaired.
func (l *Ledger) Verify(from, to int64) (*VerificationReport, error) {
	if from < 1 {
		from = 1
	}
	prev, err := l.prevChainHash(from)
	if err != nil {
		return nil, err
	}

	rows, err := l.queryRange(from, to)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{Valid: true, From: from, To: to}
	pub := l.signer.PublicKeyHex()
	expectSeq := from
	for _, rec := range rows {
		report.Checked++
		report.To = rec.Seq
		reason := ""
		switch {
		case rec.Seq != expectSeq:
			reason = fmt.Sprintf("sequence gap: expected %d, found %d", expectSeq, rec.Seq)
		case HashBytes(rec.Payload) != rec.ContentHash:
			reason = "content hash does not match payload"
		case chainHash(prev, rec.ContentHash, rec.Timestamp) != rec.ChainHash:
			reason = "chain hash does not link to previous record"
		case !VerifySignature(pub, rec.ChainHash, rec.Signature):
			reason = "signature invalid"
		}
		if reason != "" {
			report.Valid = false
			report.FirstBreak = rec.Seq
			report.Reason = reason
			break
		}
		prev = rec.ChainHash
		expectSeq = rec.Seq + 1
	}

	if !report.Valid {
		l.recordBreach(report)
	}
	return report, nil
}

// recordBreach appends a chain_breach record continuing from the
// current in-memory tail, blocks exports of the affected range, then
// notifies. A failure to write the breach record must not mask the
// verification result.
func (l *Ledger) recordBreach(report *VerificationReport) {
	if cur := l.breachFrom.Load(); cur == 0 || report.FirstBreak < cur {
		l.breachFrom.Store(report.FirstBreak)
	}
	payload := breachPayload{
		FirstBreak: report.FirstBreak,
		LastSeq:    report.To,
		Reason:     report.Reason,
		DetectedAt: l.now().UTC().Format(time.RFC3339Nano),
	}
	if _, err := l.Append(Meta{Kind: KindChainBreach}, payload); err == nil {
		if l.OnBreach != nil {
			l.OnBreach(*report)
		}
	} else if l.OnBreach != nil {
		l.OnBreach(*report)
	}
}

// BreachedFrom returns the first sequence of the active breach, or
// zero when exports are unrestricted.
func (l *Ledger) BreachedFrom() int64 {
	return l.breachFrom.Load()
}

// ClearBreach lifts the export block after operator review, recording
// who cleared it. The broken records themselves stay broken; clearing
// only re-opens export of the range.
func (l *Ledger) ClearBreach(clearedBy string) error {
	from := l.breachFrom.Load()
	if from == 0 {
		return nil
	}
	_, err := l.Append(Meta{Kind: KindBreachCleared}, clearedPayload{
		FirstBreak: from,
		ClearedBy:  clearedBy,
		ClearedAt:  l.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to record breach clearance: %w", err)
	}
	l.breachFrom.Store(0)
	return nil
}

// guardExport refuses reads that touch the broken range while a breach
// is active. Ranges entirely before the break stay exportable.
func (l *Ledger) guardExport(to int64) error {
	from := l.breachFrom.Load()
	if from == 0 {
		return nil
	}
	if to > 0 && to < from {
		return nil
	}
	return &model.AvailabilityError{
		Code:    model.CodeChainIntegrityBreach,
		Message: fmt.Sprintf("chain broken at seq %d, export of the affected range is blocked until cleared", from),
	}
}

// prevChainHash returns the chain hash the record at seq must link to.
func (l *Ledger) prevChainHash(seq int64) (string, error) {
	if seq <= 1 {
		return GenesisHash, nil
	}
	var hash string
	err := l.db.QueryRow(`SELECT chain_hash FROM evidence WHERE seq = ?`, seq-1).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no record at seq %d to anchor verification", seq-1)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read chain anchor: %w", err)
	}
	return hash, nil
}

func (l *Ledger) queryRange(from, to int64) ([]Record, error) {
	q := `SELECT seq, ts, kind, COALESCE(entity_id,''), COALESCE(decision_id,''), COALESCE(action,''), payload, content_hash, chain_hash, signature
	      FROM evidence WHERE seq >= ?`
	args := []any{from}
	if to > 0 {
		q += ` AND seq <= ?`
		args = append(args, to)
	}
	q += ` ORDER BY seq ASC`

	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence range: %w", err)
	}
	return collect(rows)
}

// ByEntity returns the records for one entity, oldest first.
func (l *Ledger) ByEntity(entityID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.Query(
		`SELECT seq, ts, kind, COALESCE(entity_id,''), COALESCE(decision_id,''), COALESCE(action,''), payload, content_hash, chain_hash, signature
		 FROM evidence WHERE entity_id = ? ORDER BY seq ASC LIMIT ?`, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query entity evidence: %w", err)
	}
	return collect(rows)
}

// ByDecision returns the record for one decision, or NotFound.
func (l *Ledger) ByDecision(decisionID string) (*Record, error) {
	rows, err := l.db.Query(
		`SELECT seq, ts, kind, COALESCE(entity_id,''), COALESCE(decision_id,''), COALESCE(action,''), payload, content_hash, chain_hash, signature
		 FROM evidence WHERE decision_id = ? ORDER BY seq ASC`, decisionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	recs, err := collect(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, &model.ValidationError{Code: model.CodeNotFound, Message: fmt.Sprintf("no evidence for decision %q", decisionID)}
	}
	return &recs[0], nil
}

// collect drains a query into records, closing the rows.
func collect(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		var payload string
		if err := rows.Scan(&rec.Seq, &rec.Timestamp, &rec.Kind, &rec.EntityID, &rec.DecisionID,
			&rec.Action, &payload, &rec.ContentHash, &rec.ChainHash, &rec.Signature); err != nil {
			return nil, fmt.Errorf("failed to scan evidence record: %w", err)
		}
		rec.Payload = []byte(payload)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SeenAction reports whether a decision record for this entity and
// action already exists. Feeds the first-time-action risk factor.
func (l *Ledger) SeenAction(entityID, action string) (bool, error) {
	var n int
	err := l.db.QueryRow(
		`SELECT COUNT(*) FROM evidence WHERE entity_id = ? AND action = ? AND kind = ?`,
		entityID, action, KindDecision).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check action history: %w", err)
	}
	return n > 0, nil
}

// Len returns the current chain length.
func (l *Ledger) Len() (int64, error) {
	var n int64
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM evidence`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count evidence records: %w", err)
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
