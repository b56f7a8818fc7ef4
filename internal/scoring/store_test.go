package scoring

import (
	"testing"
	"time"

	"github.com/ppiankov/trustgate/internal/model"
)

func storedAt(ts time.Time) StoredSignal {
	return StoredSignal{
		Signal: model.Signal{
			EntityID:  "agent-1",
			Category:  model.CategoryBehavioral,
			Type:      "task_completed",
			Value:     1,
			Timestamp: ts,
			Source:    "runtime",
		},
		Multiplier: 1,
	}
}

func TestSignalsUpToOrdersAcrossSecondBoundaries(t *testing.T) {
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	whole := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.EnsureEntity("agent-1", whole); err != nil {
		t.Fatalf("EnsureEntity: %v", err)
	}

	// Insert out of order: a sub-second timestamp between two whole
	// seconds. Lexicographic RFC 3339 would sort "05.5" before "05".
	later := whole.Add(500 * time.Millisecond)
	for _, ts := range []time.Time{later, whole, whole.Add(time.Second)} {
		if err := store.AppendSignal(storedAt(ts)); err != nil {
			t.Fatalf("AppendSignal: %v", err)
		}
	}

	got, err := store.SignalsUpTo("agent-1", whole.Add(time.Hour))
	if err != nil {
		t.Fatalf("SignalsUpTo: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d signals, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Fatalf("signals out of order: %v before %v", got[i].Timestamp, got[i-1].Timestamp)
		}
	}
}

func TestSignalsUpToCutoffExcludesSubsecondLater(t *testing.T) {
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	whole := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.EnsureEntity("agent-1", whole); err != nil {
		t.Fatalf("EnsureEntity: %v", err)
	}
	if err := store.AppendSignal(storedAt(whole)); err != nil {
		t.Fatalf("AppendSignal: %v", err)
	}
	if err := store.AppendSignal(storedAt(whole.Add(500 * time.Millisecond))); err != nil {
		t.Fatalf("AppendSignal: %v", err)
	}

	got, err := store.SignalsUpTo("agent-1", whole)
	if err != nil {
		t.Fatalf("SignalsUpTo: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("cutoff at the whole second returned %d signals, want 1", len(got))
	}
	if !got[0].Timestamp.Equal(whole) {
		t.Fatalf("kept signal at %v, want %v", got[0].Timestamp, whole)
	}
}

func TestHasFlaggedSinceSubsecondBoundary(t *testing.T) {
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	whole := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := store.EnsureEntity("agent-1", whole); err != nil {
		t.Fatalf("EnsureEntity: %v", err)
	}
	flagged := storedAt(whole.Add(500 * time.Millisecond))
	flagged.Flagged = true
	if err := store.AppendSignal(flagged); err != nil {
		t.Fatalf("AppendSignal: %v", err)
	}

	ok, err := store.HasFlaggedSince("agent-1", whole)
	if err != nil {
		t.Fatalf("HasFlaggedSince: %v", err)
	}
	if !ok {
		t.Fatal("flag half a second after the cutoff not reported")
	}
	ok, err = store.HasFlaggedSince("agent-1", whole.Add(time.Second))
	if err != nil {
		t.Fatalf("HasFlaggedSince: %v", err)
	}
	if ok {
		t.Fatal("flag before the cutoff wrongly reported")
	}
}
