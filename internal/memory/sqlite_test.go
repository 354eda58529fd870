package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pitwall-ai/pitwall"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "facts.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRememberAndRecall(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	facts := []pitwall.Fact{
		{Kind: "entity", Content: "driver VER discussed"},
		{Kind: "observation", Content: "asked about comparison questions"},
	}
	if err := store.Remember(ctx, "session-1", facts); err != nil {
		t.Fatalf("Remember returned error: %v", err)
	}

	recalled, err := store.Recall(ctx, "session-1", "")
	if err != nil {
		t.Fatalf("Recall returned error: %v", err)
	}
	if len(recalled) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(recalled))
	}
	for _, f := range recalled {
		if f.CreatedAt.IsZero() {
			t.Error("recalled fact must carry a timestamp")
		}
	}
}

func TestRecallIsolatesSubjects(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Remember(ctx, "session-1", []pitwall.Fact{{Kind: "entity", Content: "driver VER"}}); err != nil {
		t.Fatalf("Remember returned error: %v", err)
	}

	recalled, err := store.Recall(ctx, "session-2", "anything")
	if err != nil {
		t.Fatalf("Recall returned error: %v", err)
	}
	if len(recalled) != 0 {
		t.Errorf("expected no facts for other subject, got %d", len(recalled))
	}
}

func TestRecallRanksQueryMatchesFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	facts := []pitwall.Fact{
		{Kind: "entity", Content: "driver HAM discussed", CreatedAt: base.Add(2 * time.Second)},
		{Kind: "entity", Content: "driver VER discussed", CreatedAt: base.Add(time.Second)},
	}
	if err := store.Remember(ctx, "session-1", facts); err != nil {
		t.Fatalf("Remember returned error: %v", err)
	}

	recalled, err := store.Recall(ctx, "session-1", "how consistent was VER today")
	if err != nil {
		t.Fatalf("Recall returned error: %v", err)
	}
	if len(recalled) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(recalled))
	}
	if recalled[0].Content != "driver VER discussed" {
		t.Errorf("query-matching fact must rank first, got %q", recalled[0].Content)
	}
}

func TestRememberInvalidatesCache(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Remember(ctx, "session-1", []pitwall.Fact{{Kind: "entity", Content: "driver VER"}}); err != nil {
		t.Fatalf("Remember returned error: %v", err)
	}
	if _, err := store.Recall(ctx, "session-1", ""); err != nil {
		t.Fatalf("Recall returned error: %v", err)
	}

	// A second write must show up despite the cached first recall.
	if err := store.Remember(ctx, "session-1", []pitwall.Fact{{Kind: "entity", Content: "driver HAM"}}); err != nil {
		t.Fatalf("Remember returned error: %v", err)
	}
	recalled, err := store.Recall(ctx, "session-1", "")
	if err != nil {
		t.Fatalf("Recall returned error: %v", err)
	}
	if len(recalled) != 2 {
		t.Errorf("expected 2 facts after second write, got %d", len(recalled))
	}
}

func TestRecallLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var facts []pitwall.Fact
	base := time.Now().UTC()
	for i := 0; i < recallLimit+10; i++ {
		facts = append(facts, pitwall.Fact{
			Kind:      "observation",
			Content:   "fact",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	if err := store.Remember(ctx, "session-1", facts); err != nil {
		t.Fatalf("Remember returned error: %v", err)
	}

	recalled, err := store.Recall(ctx, "session-1", "")
	if err != nil {
		t.Fatalf("Recall returned error: %v", err)
	}
	if len(recalled) != recallLimit {
		t.Errorf("expected recall capped at %d, got %d", recallLimit, len(recalled))
	}
}

func TestRememberNothingIsNoop(t *testing.T) {
	store := openTestStore(t)
	if err := store.Remember(context.Background(), "session-1", nil); err != nil {
		t.Errorf("empty Remember must be a no-op, got %v", err)
	}
}
