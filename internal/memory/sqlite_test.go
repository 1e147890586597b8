package memory

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAssignsSequentialSeqs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		msg, err := store.Append(ctx, "room1", Message{Role: "user", Content: "msg"}, "")
		if err != nil {
			t.Fatal(err)
		}
		if msg.Seq != int64(i) {
			t.Fatalf("expected seq %d, got %d", i, msg.Seq)
		}
	}
}

func TestAppendRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	contents := []string{"Hello", "Hi there!", "How are you?"}
	for _, c := range contents {
		if _, err := store.Append(ctx, "room1", Message{Role: "user", Content: c}, ""); err != nil {
			t.Fatal(err)
		}
	}

	view, err := store.Context(ctx, "room1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if view.Summary != "" {
		t.Fatalf("expected no summary, got %q", view.Summary)
	}
	if len(view.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(view.Messages))
	}
	for i, c := range contents {
		if view.Messages[i].Content != c {
			t.Fatalf("message %d: expected %q, got %q", i, c, view.Messages[i].Content)
		}
	}
}

func TestContextLimitAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := store.Append(ctx, "room1", Message{Role: "user", Content: "msg"}, ""); err != nil {
			t.Fatal(err)
		}
	}

	view, err := store.Context(ctx, "room1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(view.Messages))
	}
	// most recent 3, oldest-first
	want := []int64{8, 9, 10}
	for i, w := range want {
		if view.Messages[i].Seq != w {
			t.Fatalf("position %d: expected seq %d, got %d", i, w, view.Messages[i].Seq)
		}
	}
}

func TestAppendDedupeKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Append(ctx, "room1", Message{Role: "user", Content: "hello"}, "turn1:user")
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Append(ctx, "room1", Message{Role: "user", Content: "hello"}, "turn1:user")
	if err != nil {
		t.Fatal(err)
	}
	if second.Seq != first.Seq {
		t.Fatalf("expected dedupe to return seq %d, got %d", first.Seq, second.Seq)
	}

	view, err := store.Context(ctx, "room1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Messages) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(view.Messages))
	}
}

func TestSetSummaryIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := store.SetSummary(ctx, "room1", "user asked about weather"); err != nil {
			t.Fatal(err)
		}
	}

	view, err := store.Context(ctx, "room1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if view.Summary != "user asked about weather" {
		t.Fatalf("expected summary, got %q", view.Summary)
	}
}

func TestSetSummaryLastWriterWins(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetSummary(ctx, "room1", "first"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetSummary(ctx, "room1", "second"); err != nil {
		t.Fatal(err)
	}

	view, err := store.Context(ctx, "room1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if view.Summary != "second" {
		t.Fatalf("expected %q, got %q", "second", view.Summary)
	}
}

func TestSummaryDoesNotTouchHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "room1", Message{Role: "user", Content: "keep me"}, ""); err != nil {
		t.Fatal(err)
	}
	if err := store.SetSummary(ctx, "room1", "compressed"); err != nil {
		t.Fatal(err)
	}

	view, err := store.Context(ctx, "room1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Messages) != 1 || view.Messages[0].Content != "keep me" {
		t.Fatalf("history altered: %+v", view.Messages)
	}
}

func TestApproxSize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "room1", Message{Role: "user", Content: "12345"}, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(ctx, "room1", Message{Role: "assistant", Content: "123"}, ""); err != nil {
		t.Fatal(err)
	}

	size, err := store.ApproxSize(ctx, "room1")
	if err != nil {
		t.Fatal(err)
	}
	if size != 8 {
		t.Fatalf("expected size 8, got %d", size)
	}

	empty, err := store.ApproxSize(ctx, "other")
	if err != nil {
		t.Fatal(err)
	}
	if empty != 0 {
		t.Fatalf("expected size 0 for empty room, got %d", empty)
	}
}

func TestIsolatedRooms(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Append(ctx, "room1", Message{Role: "user", Content: "room1 msg"}, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Append(ctx, "room2", Message{Role: "user", Content: "room2 msg"}, ""); err != nil {
		t.Fatal(err)
	}

	v1, err := store.Context(ctx, "room1", 10)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := store.Context(ctx, "room2", 10)
	if err != nil {
		t.Fatal(err)
	}

	if len(v1.Messages) != 1 || v1.Messages[0].Content != "room1 msg" {
		t.Fatal("room1 history incorrect")
	}
	if len(v2.Messages) != 1 || v2.Messages[0].Content != "room2 msg" {
		t.Fatal("room2 history incorrect")
	}
	if v1.Messages[0].Seq != 1 || v2.Messages[0].Seq != 1 {
		t.Fatal("rooms share a sequence")
	}
}
