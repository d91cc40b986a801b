package draftstore

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func setupTestStore(t *testing.T, maxEntries int) *RedisStore {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), maxEntries)
	if err != nil {
		t.Fatalf("failed to create draft store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	store := setupTestStore(t, 10)
	ctx := context.Background()

	payload := []byte(`{"id":"d1","title":"hello"}`)
	if err := store.Save(ctx, "d1", payload); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(ctx, "d1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Load = %s, want %s", got, payload)
	}
}

func TestLoadMissingSnapshot(t *testing.T) {
	store := setupTestStore(t, 10)

	got, err := store.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing snapshot, got %s", got)
	}
}

func TestSaveOverwriteRefreshesRecency(t *testing.T) {
	store := setupTestStore(t, 2)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := store.Save(ctx, id, []byte(id)); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}
	// Re-save "a" so "b" becomes the oldest, then push one more.
	if err := store.Save(ctx, "a", []byte("a2")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, "c", []byte("c")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if got, _ := store.Load(ctx, "b"); got != nil {
		t.Errorf("oldest snapshot b should have been evicted")
	}
	if got, _ := store.Load(ctx, "a"); !bytes.Equal(got, []byte("a2")) {
		t.Errorf("recently refreshed snapshot a lost: %s", got)
	}
}

func TestEvictionBound(t *testing.T) {
	store := setupTestStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := store.Save(ctx, fmt.Sprintf("d%d", i), []byte{byte(i)}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("stored %d snapshots, want 3", len(ids))
	}
	for i := 0; i < 3; i++ {
		if got, _ := store.Load(ctx, fmt.Sprintf("d%d", i)); got != nil {
			t.Errorf("old snapshot d%d not evicted", i)
		}
	}
	for i := 3; i < 6; i++ {
		if got, _ := store.Load(ctx, fmt.Sprintf("d%d", i)); got == nil {
			t.Errorf("recent snapshot d%d missing", i)
		}
	}
}

func TestListMostRecentFirst(t *testing.T) {
	store := setupTestStore(t, 10)
	ctx := context.Background()

	for _, id := range []string{"first", "second", "third"} {
		if err := store.Save(ctx, id, []byte(id)); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 3 || ids[0] != "third" || ids[2] != "first" {
		t.Errorf("List = %v, want most recent first", ids)
	}
}

func TestDeleteSnapshot(t *testing.T) {
	store := setupTestStore(t, 10)
	ctx := context.Background()

	if err := store.Save(ctx, "d1", []byte("x")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "d1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := store.Load(ctx, "d1"); got != nil {
		t.Errorf("snapshot still present after delete")
	}
	if ids, _ := store.List(ctx); len(ids) != 0 {
		t.Errorf("index entry still present after delete: %v", ids)
	}

	// Deleting again is a no-op.
	if err := store.Delete(ctx, "d1"); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}
