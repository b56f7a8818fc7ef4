package chain

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/trustgate/internal/model"
)

// Export modes.
const (
	ModeFull      = "full"
	ModeSelective = "selective"
	ModeZK        = "zk"
)

const redactedPlaceholder = "[REDACTED]"

// Export is a verifiable bundle of chain records. In selective mode
// payload fields named in RedactedFields are blanked while hashes and
// signatures stay intact, so the recipient can still see that records
// exist and link, just not what was hidden.
type Export struct {
	Mode           string   `json:"mode"`
	PublicKey      string   `json:"public_key"`
	From           int64    `json:"from_seq"`
	To             int64    `json:"to_seq"`
	RedactedFields []string `json:"redacted_fields,omitempty"`
	Records        []Record `json:"records"`
}

// ExportRange exports records in [from, to] (zero bounds mean the full
// chain). Selective mode redacts the given top-level payload fields.
func (l *Ledger) ExportRange(from, to int64, mode string, redact []string) (*Export, error) {
	switch mode {
	case "", ModeFull:
		mode = ModeFull
	case ModeSelective:
	case ModeZK:
		return nil, &model.ValidationError{Code: model.CodeInvalidAction, Message: "zk export targets a single record, use ExportClaim"}
	default:
		return nil, &model.ValidationError{Code: model.CodeInvalidAction, Message: fmt.Sprintf("unknown export mode %q", mode)}
	}

	if from < 1 {
		from = 1
	}
	if err := l.guardExport(to); err != nil {
		return nil, err
	}
	records, err := l.queryRange(from, to)
	if err != nil {
		return nil, err
	}

	out := &Export{
		Mode:      mode,
		PublicKey: l.signer.PublicKeyHex(),
		From:      from,
		To:        to,
		Records:   records,
	}
	if len(records) > 0 {
		out.To = records[len(records)-1].Seq
	}

	if mode == ModeSelective && len(redact) > 0 {
		out.RedactedFields = redact
		for i := range out.Records {
			redacted, err := redactFields(out.Records[i].Payload, redact)
			if err != nil {
				return nil, err
			}
			out.Records[i].Payload = redacted
		}
	}
	return out, nil
}

func redactFields(payload json.RawMessage, fields []string) (json.RawMessage, error) {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		// Non-object payloads have nothing addressable to redact.
		return payload, nil
	}
	for _, f := range fields {
		if _, ok := obj[f]; ok {
			obj[f] = redactedPlaceholder
		}
	}
	return CanonicalJSON(obj)
}

// Claim is a zero-knowledge-style attestation about one record: the
// predicate outcome, signed by the chain key, with a salted commitment
// to the content hash instead of the record itself.
type Claim struct {
	Seq        int64  `json:"sequence_no"`
	Predicate  string `json:"predicate"`
	Holds      bool   `json:"holds"`
	Commitment string `json:"commitment"`
	ChainHash  string `json:"chain_hash"`
	PublicKey  string `json:"public_key"`
	Signature  string `json:"signature"`
}

// ExportClaim attests whether a numeric payload field at seq meets a
// threshold, without disclosing the payload. The commitment binds the
// claim to the record content; the salt stays with the ledger, so the
// recipient learns only the predicate outcome.
func (l *Ledger) ExportClaim(seq int64, field string, threshold float64) (*Claim, error) {
	if err := l.guardExport(seq); err != nil {
		return nil, err
	}
	records, err := l.queryRange(seq, seq)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &model.ValidationError{Code: model.CodeNotFound, Message: fmt.Sprintf("no record at seq %d", seq)}
	}
	rec := records[0]

	var obj map[string]any
	if err := json.Unmarshal(rec.Payload, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode record payload: %w", err)
	}
	value, ok := obj[field].(float64)
	if !ok {
		return nil, &model.ValidationError{Code: model.CodeInvalidAction, Message: fmt.Sprintf("field %q is not numeric in record %d", field, seq)}
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate commitment salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)

	claim := &Claim{
		Seq:        rec.Seq,
		Predicate:  fmt.Sprintf("%s >= %g", field, threshold),
		Holds:      value >= threshold,
		Commitment: HashBytes([]byte(rec.ContentHash + saltHex)),
		ChainHash:  rec.ChainHash,
		PublicKey:  l.signer.PublicKeyHex(),
	}
	if err := l.storeSalt(claim.Commitment, rec.Seq, saltHex); err != nil {
		return nil, err
	}
	signed, err := CanonicalJSON(struct {
		Seq        int64  `json:"sequence_no"`
		Predicate  string `json:"predicate"`
		Holds      bool   `json:"holds"`
		Commitment string `json:"commitment"`
		ChainHash  string `json:"chain_hash"`
	}{claim.Seq, claim.Predicate, claim.Holds, claim.Commitment, claim.ChainHash})
	if err != nil {
		return nil, err
	}
	claim.Signature = l.signer.Sign(string(signed))
	return claim, nil
}

// storeSalt keeps the commitment salt with the ledger so a later audit
// can open the commitment against the record.
func (l *Ledger) storeSalt(commitment string, seq int64, salt string) error {
	_, err := l.db.Exec(
		`INSERT INTO claim_salts (commitment, seq, salt, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(commitment) DO NOTHING`,
		commitment, seq, salt, l.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to store commitment salt: %w", err)
	}
	return nil
}

// OpenCommitment returns the salt held for a commitment, letting an
// auditor with record access check it via VerifyCommitment.
func (l *Ledger) OpenCommitment(commitment string) (string, error) {
	var salt string
	err := l.db.QueryRow(`SELECT salt FROM claim_salts WHERE commitment = ?`, commitment).Scan(&salt)
	if err == sql.ErrNoRows {
		return "", &model.ValidationError{Code: model.CodeNotFound, Message: "no salt held for commitment"}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read commitment salt: %w", err)
	}
	return salt, nil
}

// VerifyCommitment checks that a commitment binds the given content
// hash under the given salt.
func VerifyCommitment(commitment, contentHash, salt string) bool {
	return HashBytes([]byte(contentHash+salt)) == commitment
}

// VerifyClaim checks a claim's signature against its embedded key.
func VerifyClaim(c *Claim) bool {
	signed, err := CanonicalJSON(struct {
		Seq        int64  `json:"sequence_no"`
		Predicate  string `json:"predicate"`
		Holds      bool   `json:"holds"`
		Commitment string `json:"commitment"`
		ChainHash  string `json:"chain_hash"`
	}{c.Seq, c.Predicate, c.Holds, c.Commitment, c.ChainHash})
	if err != nil {
		return false
	}
	return VerifySignature(c.PublicKey, string(signed), c.Signature)
}
