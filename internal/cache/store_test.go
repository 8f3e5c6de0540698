package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()

	f, err := os.CreateTemp("", "cache_test_*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	dbPath := f.Name()
	f.Close()

	store, err := NewSQLiteStore(StoreConfig{Path: dbPath})
	if err != nil {
		os.Remove(dbPath)
		t.Fatalf("failed to open store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.Remove(dbPath)
	}
	return store, cleanup
}

func TestKeyDerivation(t *testing.T) {
	k1 := Key("image", "Voter Registration 2026", "ENG")
	k2 := Key("image", "  voter   registration 2026 ", "ENG")
	if k1 != k2 {
		t.Error("normalized subjects should share a key")
	}

	if Key("image", "voter registration", "ENG") == Key("news", "voter registration", "ENG") {
		t.Error("different capabilities must not share keys")
	}

	if Key("news", "briefing", "ENG") == Key("news", "briefing", "KIS") {
		t.Error("different languages must not share keys")
	}

	// Long subjects hash in full; a shared prefix must not collide.
	long1 := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa tail one"
	long2 := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa tail two"
	if Key("image", long1, "ENG") == Key("image", long2, "ENG") {
		t.Error("distinct subjects sharing a prefix must not share a key")
	}

	if len(Key("image", "x", "ENG")) != 64 {
		t.Error("key should be a sha256 hex digest")
	}
}

func TestKeyAttachments(t *testing.T) {
	plain := Key("factcheck", "is voting free", "ENG")
	withImg := Key("factcheck", "is voting free", "ENG", []byte{0x89, 0x50, 0x4e})
	otherImg := Key("factcheck", "is voting free", "ENG", []byte{0xff, 0xd8, 0xff})

	if plain == withImg {
		t.Error("an attached image must change the key")
	}
	if withImg == otherImg {
		t.Error("different images must not share a key")
	}

	// Nil and empty attachments are the no-attachment key.
	if Key("factcheck", "is voting free", "ENG", nil) != plain {
		t.Error("nil attachment should not change the key")
	}
	if Key("factcheck", "is voting free", "ENG", []byte{}) != plain {
		t.Error("empty attachment should not change the key")
	}
}

func TestSQLiteStorePutGet(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	key := Key("image", "voter registration 2026", "ENG")

	// Miss before write
	e, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e != nil {
		t.Fatal("expected miss before write")
	}

	if err := store.Put(ctx, key, "IMG_A"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	e, err = store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e == nil {
		t.Fatal("expected hit after write")
	}
	if e.Value != "IMG_A" {
		t.Errorf("value mismatch: got %q, want %q", e.Value, "IMG_A")
	}
	if e.Generation != 1 {
		t.Errorf("generation: got %d, want 1", e.Generation)
	}
}

func TestSQLiteStoreOverwriteBumpsGeneration(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	key := Key("news", "briefing", "ENG")

	for i, v := range []string{"first", "second", "third"} {
		if err := store.Put(ctx, key, v); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}

	e, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e.Value != "third" {
		t.Errorf("last write should win: got %q", e.Value)
	}
	if e.Generation != 3 {
		t.Errorf("generation: got %d, want 3", e.Generation)
	}
}

func TestSQLiteStoreDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ctx := context.Background()
	key := Key("image", "gone", "ENG")

	if err := store.Put(ctx, key, "payload"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	e, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e != nil {
		t.Error("expected miss after delete")
	}

	// Deleting a missing key is not an error
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Errorf("Delete of absent key failed: %v", err)
	}
}

func TestPolicyFreshness(t *testing.T) {
	policy := Policy{"news": 30 * time.Minute}
	now := time.Now()

	fresh := &Entry{CreatedAt: now.Add(-5 * time.Minute)}
	stale := &Entry{CreatedAt: now.Add(-2 * time.Hour)}

	if !policy.Fresh("news", fresh, now) {
		t.Error("5-minute-old news should be fresh")
	}
	if policy.Fresh("news", stale, now) {
		t.Error("2-hour-old news should be stale")
	}

	// Capabilities without a TTL never expire
	if !policy.Fresh("image", stale, now) {
		t.Error("images without TTL should never go stale")
	}
	if policy.Fresh("news", nil, now) {
		t.Error("nil entry is never fresh")
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, "k", "v1"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, "k", "v2"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	e, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if e.Value != "v2" || e.Generation != 2 {
		t.Errorf("got value=%q gen=%d, want v2/2", e.Value, e.Generation)
	}
}
