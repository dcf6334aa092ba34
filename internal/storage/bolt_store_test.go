package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newBoltStoreForTest(t *testing.T) *BoltArtifactStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "artifacts.db")
	store, db, err := OpenBoltArtifactStore(path)
	if err != nil {
		t.Fatalf("open bolt store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return store
}

func TestBoltArtifactStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := newBoltStoreForTest(t)

	if _, err := store.Get(ctx, "s1/document.pdf"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	payload := []byte("%PDF-1.4 test")
	if err := store.Put(ctx, "s1/document.pdf", payload); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get(ctx, "s1/document.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("round trip mismatch: %q", got)
	}

	if err := store.Delete(ctx, "s1/document.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "s1/document.pdf"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	// Deleting a missing key is a no-op, matching object-store semantics.
	if err := store.Delete(ctx, "s1/document.pdf"); err != nil {
		t.Fatalf("idempotent delete: %v", err)
	}
}

func TestBoltArtifactStoreListByPrefixAndCopy(t *testing.T) {
	ctx := context.Background()
	store := newBoltStoreForTest(t)

	for _, key := range []string{"s1/a.pdf", "s1/b.pdf", "s2/a.pdf"} {
		if err := store.Put(ctx, key, []byte(key)); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	keys, err := store.ListByPrefix(ctx, "s1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 || keys[0] != "s1/a.pdf" || keys[1] != "s1/b.pdf" {
		t.Fatalf("unexpected listing: %v", keys)
	}

	if err := store.Copy(ctx, "s1/a.pdf", "s3/a.pdf"); err != nil {
		t.Fatalf("copy: %v", err)
	}
	got, err := store.Get(ctx, "s3/a.pdf")
	if err != nil {
		t.Fatalf("get copy: %v", err)
	}
	if string(got) != "s1/a.pdf" {
		t.Fatalf("copy payload mismatch: %q", got)
	}

	if err := store.Copy(ctx, "missing/key", "dst"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected not found copying missing source, got %v", err)
	}
}

func TestMemoryArtifactStoreMatchesContract(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryArtifactStore()

	if err := store.Put(ctx, "s1/doc.pdf", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Copy(ctx, "s1/doc.pdf", "s2/doc.pdf"); err != nil {
		t.Fatalf("copy: %v", err)
	}
	keys, err := store.ListByPrefix(ctx, "s2/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 1 || keys[0] != "s2/doc.pdf" {
		t.Fatalf("unexpected listing: %v", keys)
	}
	if err := store.Delete(ctx, "s1/doc.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "s1/doc.pdf"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
