package chain

import "encoding/json"

// Record kinds appended to the evidence chain.
const (
	KindDecision             = "decision"
	KindSignal               = "signal"
	KindEscalationResolution = "escalation_resolution"
	KindChainBreach          = "chain_breach"
	KindBreachCleared        = "breach_cleared"
	KindCheckpoint           = "checkpoint"
)

// Record is one entry in the append-only evidence chain. Payload is
// the canonical JSON whose hash is content_hash; chain_hash links the
// record to its predecessor; signature covers the chain hash.
// Records are immutable once written.
type Record struct {
	Seq         int64           `json:"sequence_no"`
	Timestamp   string          `json:"ts"`
	Kind        string          `json:"kind"`
	EntityID    string          `json:"entity_id,omitempty"`
	DecisionID  string          `json:"decision_id,omitempty"`
	Action      string          `json:"action,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	ContentHash string          `json:"content_hash"`
	ChainHash   string          `json:"chain_hash"`
	Signature   string          `json:"signature"`
}

// breachPayload is the body of a chain_breach record, appended when
// verification finds a broken link.
type breachPayload struct {
	FirstBreak int64  `json:"first_break_seq"`
	LastSeq    int64  `json:"last_seq_checked"`
	Reason     string `json:"reason"`
	DetectedAt string `json:"detected_at"`
}

// clearedPayload is the body of a breach_cleared record, appended when
// an operator lifts the export block after reviewing a breach.
type clearedPayload struct {
	FirstBreak int64  `json:"first_break_seq"`
	ClearedBy  string `json:"cleared_by"`
	ClearedAt  string `json:"cleared_at"`
}

// checkpointPayload is the body of a Merkle checkpoint record.
type checkpointPayload struct {
	BatchStart int64  `json:"batch_start_seq"`
	BatchEnd   int64  `json:"batch_end_seq"`
	MerkleRoot string `json:"merkle_root"`
}
