package chain

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/trustgate/internal/model"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	l, err := Open(":memory:", signer)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func appendN(t *testing.T, l *Ledger, n int) []*Record {
	t.Helper()
	out := make([]*Record, 0, n)
	for i := 0; i < n; i++ {
		rec, err := l.Append(Meta{Kind: KindDecision, EntityID: "agent-1", Action: "write.config"}, map[string]any{"outcome": "allow", "risk_score": i})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		out = append(out, rec)
	}
	return out
}

func TestAppendLinksFromGenesis(t *testing.T) {
	l := newTestLedger(t)
	recs := appendN(t, l, 3)

	if recs[0].Seq != 1 {
		t.Fatalf("first record should be seq 1, got %d", recs[0].Seq)
	}
	want := chainHash(GenesisHash, recs[0].ContentHash, recs[0].Timestamp)
	if recs[0].ChainHash != want {
		t.Fatalf("first record must link to genesis")
	}
	for i := 1; i < len(recs); i++ {
		want := chainHash(recs[i-1].ChainHash, recs[i].ContentHash, recs[i].Timestamp)
		if recs[i].ChainHash != want {
			t.Fatalf("record %d does not link to its predecessor", recs[i].Seq)
		}
	}
}

func TestVerifyIntactChain(t *testing.T) {
	l := newTestLedger(t)
	appendN(t, l, 10)

	report, err := l.Verify(0, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Valid || report.Checked != 10 {
		t.Fatalf("expected valid chain of 10, got %+v", report)
	}
}

func TestVerifyDetectsPayloadTampering(t *testing.T) {
	l := newTestLedger(t)
	appendN(t, l, 5)

	if _, err := l.db.Exec(`UPDATE evidence SET payload = '{"outcome":"deny"}' WHERE seq = 3`); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	var breach VerificationReport
	fired := false
	l.OnBreach = func(r VerificationReport) { breach = r; fired = true }

	report, err := l.Verify(0, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Valid {
		t.Fatal("tampered chain reported valid")
	}
	if report.FirstBreak != 3 {
		t.Fatalf("expected first break at 3, got %d", report.FirstBreak)
	}
	if !strings.Contains(report.Reason, "content hash") {
		t.Fatalf("unexpected reason %q", report.Reason)
	}
	if !fired || breach.FirstBreak != 3 {
		t.Fatal("breach callback did not fire with the break report")
	}

	// The breach itself must be recorded on the chain.
	n, err := l.Len()
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected breach record appended, chain length %d", n)
	}
	recs, err := l.queryRange(6, 6)
	if err != nil || len(recs) != 1 || recs[0].Kind != KindChainBreach {
		t.Fatalf("expected chain_breach at seq 6, got %+v (%v)", recs, err)
	}
}

func TestVerifyDetectsRelinkedRecord(t *testing.T) {
	l := newTestLedger(t)
	recs := appendN(t, l, 4)

	// Recompute record 2's hashes over altered content. Content and
	// chain hash are now self-consistent, but the link from record 3
	// no longer holds.
	payload := []byte(`{"outcome":"deny"}`)
	content := HashBytes(payload)
	ch := chainHash(recs[0].ChainHash, content, recs[1].Timestamp)
	sig := l.signer.Sign(ch)
	if _, err := l.db.Exec(
		`UPDATE evidence SET payload = ?, content_hash = ?, chain_hash = ?, signature = ? WHERE seq = 2`,
		string(payload), content, ch, sig); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	report, err := l.Verify(0, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Valid || report.FirstBreak != 3 {
		t.Fatalf("expected break at 3 where the link fails, got %+v", report)
	}
}

func TestVerifyDetectsForeignSignature(t *testing.T) {
	l := newTestLedger(t)
	appendN(t, l, 3)

	other, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	var ch string
	if err := l.db.QueryRow(`SELECT chain_hash FROM evidence WHERE seq = 2`).Scan(&ch); err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := l.db.Exec(`UPDATE evidence SET signature = ? WHERE seq = 2`, other.Sign(ch)); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	report, err := l.Verify(0, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Valid || report.FirstBreak != 2 || report.Reason != "signature invalid" {
		t.Fatalf("expected signature break at 2, got %+v", report)
	}
}

func TestVerifySubRangeUsesAnchor(t *testing.T) {
	l := newTestLedger(t)
	appendN(t, l, 8)

	report, err := l.Verify(4, 6)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Valid || report.Checked != 3 {
		t.Fatalf("expected valid sub-range of 3, got %+v", report)
	}
}

func TestReopenRecoversChainTail(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "evidence.db")
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	l, err := Open(dbPath, signer)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	appendN(t, l, 3)
	l.Close()

	l2, err := Open(dbPath, signer)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()

	rec, err := l2.Append(Meta{Kind: KindSignal, EntityID: "agent-2"}, map[string]any{"signal_type": "task_completed"})
	if err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if rec.Seq != 4 {
		t.Fatalf("expected seq 4 after reopen, got %d", rec.Seq)
	}
	report, err := l2.Verify(0, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Valid || report.Checked != 4 {
		t.Fatalf("chain broken across reopen: %+v", report)
	}
}

func TestCanonicalJSONIsOrderInsensitive(t *testing.T) {
	a, err := CanonicalJSON(map[string]any{"b": 2, "a": 1, "nested": map[string]any{"y": 2, "x": 1}})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	b, err := CanonicalJSON(map[string]any{"nested": map[string]any{"x": 1, "y": 2}, "a": 1, "b": 2})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("canonical forms differ: %s vs %s", a, b)
	}
	if string(a) != `{"a":1,"b":2,"nested":{"x":1,"y":2}}` {
		t.Fatalf("unexpected canonical form %s", a)
	}
}

func TestMerkleRoot(t *testing.T) {
	if MerkleRoot(nil) != GenesisHash {
		t.Fatal("empty batch should root to genesis")
	}
	single := []string{"sha256:aa"}
	if MerkleRoot(single) != "sha256:aa" {
		t.Fatal("single leaf should root to itself")
	}
	odd := []string{"sha256:aa", "sha256:bb", "sha256:cc"}
	left := HashBytes([]byte("sha256:aa" + "sha256:bb"))
	want := HashBytes([]byte(left + "sha256:cc"))
	if got := MerkleRoot(odd); got != want {
		t.Fatalf("odd batch root mismatch: %s vs %s", got, want)
	}
}

func TestCheckpointRecordsAppended(t *testing.T) {
	l := newTestLedger(t)
	l.CheckpointEvery = 3
	appendN(t, l, 3)

	recs, err := l.queryRange(4, 4)
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected checkpoint at seq 4: %v %v", recs, err)
	}
	if recs[0].Kind != KindCheckpoint {
		t.Fatalf("expected checkpoint kind, got %q", recs[0].Kind)
	}
	var cp struct {
		BatchStart int64  `json:"batch_start_seq"`
		BatchEnd   int64  `json:"batch_end_seq"`
		MerkleRoot string `json:"merkle_root"`
	}
	if err := json.Unmarshal(recs[0].Payload, &cp); err != nil {
		t.Fatalf("decode checkpoint: %v", err)
	}
	if cp.BatchStart != 1 || cp.BatchEnd != 3 || cp.MerkleRoot == "" {
		t.Fatalf("unexpected checkpoint payload %+v", cp)
	}

	report, err := l.Verify(0, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Valid || report.Checked != 4 {
		t.Fatalf("checkpointed chain broken: %+v", report)
	}
}

func TestSelectiveExportRedactsButKeepsHashes(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.Append(Meta{Kind: KindDecision, EntityID: "agent-1", DecisionID: "dec-1"}, map[string]any{
		"outcome": "allow", "justification": "quarterly payout", "risk_score": 12,
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	exp, err := l.ExportRange(0, 0, ModeSelective, []string{"justification"})
	if err != nil {
		t.Fatalf("ExportRange: %v", err)
	}
	if len(exp.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(exp.Records))
	}
	rec := exp.Records[0]

	var payload map[string]any
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["justification"] != "[REDACTED]" {
		t.Fatalf("justification not redacted: %v", payload["justification"])
	}
	if payload["outcome"] != "allow" {
		t.Fatalf("unredacted field altered: %v", payload["outcome"])
	}
	if rec.ContentHash == HashBytes(rec.Payload) {
		t.Fatal("redaction should break the payload hash, not rewrite it")
	}
	if !VerifySignature(exp.PublicKey, rec.ChainHash, rec.Signature) {
		t.Fatal("signature metadata must survive redaction")
	}
}

func TestFullExportIsVerifiable(t *testing.T) {
	l := newTestLedger(t)
	appendN(t, l, 4)

	exp, err := l.ExportRange(2, 3, ModeFull, nil)
	if err != nil {
		t.Fatalf("ExportRange: %v", err)
	}
	if exp.From != 2 || exp.To != 3 || len(exp.Records) != 2 {
		t.Fatalf("unexpected export bounds %+v", exp)
	}
	for _, rec := range exp.Records {
		if HashBytes(rec.Payload) != rec.ContentHash {
			t.Fatalf("record %d content hash mismatch in export", rec.Seq)
		}
		if !VerifySignature(exp.PublicKey, rec.ChainHash, rec.Signature) {
			t.Fatalf("record %d signature invalid in export", rec.Seq)
		}
	}
}

func TestExportClaimDisclosesOnlyPredicate(t *testing.T) {
	l := newTestLedger(t)
	if _, err := l.Append(Meta{Kind: KindDecision, EntityID: "agent-1", DecisionID: "dec-1"}, map[string]any{"trust_score": 720}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	claim, err := l.ExportClaim(1, "trust_score", 600)
	if err != nil {
		t.Fatalf("ExportClaim: %v", err)
	}
	if !claim.Holds {
		t.Fatal("720 >= 600 should hold")
	}
	if strings.Contains(claim.Predicate, "720") {
		t.Fatal("claim must not disclose the value")
	}
	if !VerifyClaim(claim) {
		t.Fatal("claim signature should verify")
	}

	claim.Holds = false
	if VerifyClaim(claim) {
		t.Fatal("altered claim must not verify")
	}

	below, err := l.ExportClaim(1, "trust_score", 900)
	if err != nil {
		t.Fatalf("ExportClaim: %v", err)
	}
	if below.Holds {
		t.Fatal("720 >= 900 should not hold")
	}
}

func TestClaimCommitmentOpensWithHeldSalt(t *testing.T) {
	l := newTestLedger(t)
	rec, err := l.Append(Meta{Kind: KindDecision, EntityID: "agent-1", DecisionID: "dec-1"}, map[string]any{"trust_score": 720})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	claim, err := l.ExportClaim(1, "trust_score", 600)
	if err != nil {
		t.Fatalf("ExportClaim: %v", err)
	}

	salt, err := l.OpenCommitment(claim.Commitment)
	if err != nil {
		t.Fatalf("OpenCommitment: %v", err)
	}
	if !VerifyCommitment(claim.Commitment, rec.ContentHash, salt) {
		t.Fatal("held salt should open the commitment against the record")
	}
	if VerifyCommitment(claim.Commitment, rec.ContentHash, salt+"00") {
		t.Fatal("wrong salt must not open the commitment")
	}

	if _, err := l.OpenCommitment("sha256:deadbeef"); err == nil {
		t.Fatal("unknown commitment should not open")
	} else {
		var verr *model.ValidationError
		if !errors.As(err, &verr) || verr.Code != model.CodeNotFound {
			t.Fatalf("want NOT_FOUND validation error, got %v", err)
		}
	}
}

func TestKeyfileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chain.key")

	first, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey: %v", err)
	}
	second, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("LoadOrCreateKey (reload): %v", err)
	}
	if first.PublicKeyHex() != second.PublicKeyHex() {
		t.Fatal("reload produced a different key")
	}

	sig := first.Sign("sha256:abc")
	if !VerifySignature(second.PublicKeyHex(), "sha256:abc", sig) {
		t.Fatal("signature from saved key should verify with loaded key")
	}
}

func TestSeenActionTracksDecisions(t *testing.T) {
	l := newTestLedger(t)

	seen, err := l.SeenAction("agent-1", "payment.send")
	if err != nil {
		t.Fatalf("SeenAction: %v", err)
	}
	if seen {
		t.Fatal("empty chain should report unseen")
	}

	if _, err := l.Append(Meta{Kind: KindDecision, EntityID: "agent-1", Action: "payment.send"}, map[string]any{"outcome": "allow"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := l.Append(Meta{Kind: KindSignal, EntityID: "agent-2", Action: "deploy.service"}, map[string]any{"v": 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	seen, err = l.SeenAction("agent-1", "payment.send")
	if err != nil {
		t.Fatalf("SeenAction: %v", err)
	}
	if !seen {
		t.Fatal("decision record should mark the action as seen")
	}

	// Only decision records count; a signal mentioning an action does not.
	seen, err = l.SeenAction("agent-2", "deploy.service")
	if err != nil {
		t.Fatalf("SeenAction: %v", err)
	}
	if seen {
		t.Fatal("signal records must not mark actions as seen")
	}
}

func TestExportBlockedAfterBreach(t *testing.T) {
	l := newTestLedger(t)
	appendN(t, l, 5)

	if _, err := l.db.Exec(`UPDATE evidence SET payload = '{"outcome":"deny"}' WHERE seq = 3`); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	report, err := l.Verify(0, 0)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if report.Valid || report.FirstBreak != 3 {
		t.Fatalf("expected break at seq 3, got %+v", report)
	}
	if l.BreachedFrom() != 3 {
		t.Fatalf("BreachedFrom = %d, want 3", l.BreachedFrom())
	}

	_, err = l.ExportRange(1, 5, ModeFull, nil)
	var aerr *model.AvailabilityError
	if !errors.As(err, &aerr) || aerr.Code != model.CodeChainIntegrityBreach {
		t.Fatalf("export of broken range returned %v, want integrity-breach refusal", err)
	}
	if _, err := l.ExportRange(1, 0, ModeFull, nil); err == nil {
		t.Fatal("open-ended export must be refused while the breach is active")
	}
	if _, err := l.ExportClaim(4, "risk_score", 1); err == nil {
		t.Fatal("claim inside the broken range must be refused")
	}

	// The range before the break stays exportable.
	export, err := l.ExportRange(1, 2, ModeFull, nil)
	if err != nil {
		t.Fatalf("export before the break: %v", err)
	}
	if len(export.Records) != 2 {
		t.Fatalf("exported %d records, want 2", len(export.Records))
	}
}

func TestClearBreachReopensExport(t *testing.T) {
	l := newTestLedger(t)
	appendN(t, l, 5)
	if _, err := l.db.Exec(`UPDATE evidence SET payload = '{}' WHERE seq = 2`); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := l.Verify(0, 0); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := l.ExportRange(1, 5, ModeFull, nil); err == nil {
		t.Fatal("export should be blocked before clearance")
	}

	if err := l.ClearBreach("security-oncall"); err != nil {
		t.Fatalf("ClearBreach: %v", err)
	}
	if l.BreachedFrom() != 0 {
		t.Fatalf("BreachedFrom = %d after clear, want 0", l.BreachedFrom())
	}
	export, err := l.ExportRange(1, 5, ModeFull, nil)
	if err != nil {
		t.Fatalf("export after clear: %v", err)
	}
	if len(export.Records) != 5 {
		t.Fatalf("exported %d records, want 5", len(export.Records))
	}
}

func TestBreachPostureSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "evidence.db")
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	l, err := Open(dbPath, signer)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	appendN(t, l, 4)
	if _, err := l.db.Exec(`UPDATE evidence SET payload = '{}' WHERE seq = 2`); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if _, err := l.Verify(0, 0); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	l.Close()

	l2, err := Open(dbPath, signer)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()

	if l2.BreachedFrom() != 2 {
		t.Fatalf("BreachedFrom = %d after reopen, want 2", l2.BreachedFrom())
	}
	if _, err := l2.ExportRange(0, 0, ModeFull, nil); err == nil {
		t.Fatal("export block must survive a restart")
	}

	if err := l2.ClearBreach("security-oncall"); err != nil {
		t.Fatalf("ClearBreach: %v", err)
	}
	l2.Close()

	l3, err := Open(dbPath, signer)
	if err != nil {
		t.Fatalf("second reopen: %v", err)
	}
	defer l3.Close()
	if l3.BreachedFrom() != 0 {
		t.Fatalf("BreachedFrom = %d after cleared restart, want 0", l3.BreachedFrom())
	}
}
