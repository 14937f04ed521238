package storage

import (
	"context"
	"errors"
	"testing"
)

func TestFileStoreWriteAndRead(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	ctx := context.Background()

	key, err := store.Write(ctx, "plans/owner-1/2026-W02/job-1.json", []byte(`{"week":"2026-W02"}`))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if key != "plans/owner-1/2026-W02/job-1.json" {
		t.Fatalf("key = %q", key)
	}

	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if string(data) != `{"week":"2026-W02"}` {
		t.Fatalf("data = %s", data)
	}
}

func TestFileStoreReadMissingArtifact(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	if _, err := store.Read(context.Background(), "plans/absent.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFileStoreWriteOverwritesAtomically(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Write(ctx, "plans/a.json", []byte("v1")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if _, err := store.Write(ctx, "plans/a.json", []byte("v2")); err != nil {
		t.Fatalf("rewrite error: %v", err)
	}
	data, err := store.Read(ctx, "plans/a.json")
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if string(data) != "v2" {
		t.Fatalf("data = %s, want v2", data)
	}
}

func TestFileStoreRejectsTraversalKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore error: %v", err)
	}
	for _, key := range []string{"", "../escape.json", "./..", "a/../../b"} {
		if _, err := store.Write(context.Background(), key, []byte("x")); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}
