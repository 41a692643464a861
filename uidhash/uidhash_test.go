package uidhash

import (
	"path/filepath"
	"testing"
)

func TestInsertLookupRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hash")

	h, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := h.Insert(5, 10); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	slot, ok := h.Lookup(5)
	if !ok || slot != 10 {
		t.Fatalf("Lookup(5) = (%d, %v), want (10, true)", slot, ok)
	}

	if err := h.Remove(5); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	if _, ok := h.Lookup(5); ok {
		t.Fatalf("Lookup(5) after Remove should miss")
	}
}

func TestSyncPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hash")

	h, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := h.Insert(1, 2); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := h.Insert(3, 4); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := h.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	h2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	slot, ok := h2.Lookup(1)
	if !ok || slot != 2 {
		t.Fatalf("after reopen Lookup(1) = (%d, %v), want (2, true)", slot, ok)
	}

	slot, ok = h2.Lookup(3)
	if !ok || slot != 4 {
		t.Fatalf("after reopen Lookup(3) = (%d, %v), want (4, true)", slot, ok)
	}
}

func TestRebuild_ReplacesAllEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hash")

	h, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := h.Insert(1, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	err = h.Rebuild(func(yield func(uint32, uint32) bool) {
		yield(9, 90)
		yield(10, 100)
	})
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if _, ok := h.Lookup(1); ok {
		t.Fatalf("stale entry for uid 1 should be gone after Rebuild")
	}

	slot, ok := h.Lookup(9)
	if !ok || slot != 90 {
		t.Fatalf("Lookup(9) = (%d, %v), want (90, true)", slot, ok)
	}
}
