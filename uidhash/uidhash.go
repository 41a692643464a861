// Package uidhash implements the persistent UID->offset accelerator (spec
// §2.3): an index handle consults it before falling back to a linear scan
// of the record array, and can ask it to rebuild wholesale after the
// REBUILD_HASH header flag is observed.
package uidhash

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/natefinch/atomic"
)

// entrySize is the on-disk size of one (uid, slot) pair.
const entrySize = 8

// Hash is an in-memory UID->slot map backed by a flat on-disk file,
// rewritten atomically on every Sync (and so on Close) via natefinch/atomic
// so a crash mid-write never leaves a half-written hash file behind.
// Rebuild only replaces the in-memory table. A missing or stale entry only
// makes the index fall back to a linear scan of its record array.
type Hash struct {
	mu   sync.RWMutex
	path string

	table map[uint32]uint32
}

// Open loads an existing hash file, or starts empty if none exists.
func Open(path string) (*Hash, error) {
	h := &Hash{
		path:  path,
		table: make(map[uint32]uint32),
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("uidhash: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	buf := make([]byte, entrySize)

	for {
		if _, err := readFull(r, buf); err != nil {
			break
		}
		uid := binary.LittleEndian.Uint32(buf[0:4])
		slot := binary.LittleEndian.Uint32(buf[4:8])
		h.table[uid] = slot
	}

	return h, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("short read")
		}
	}
	return total, nil
}

// Lookup returns the record slot for uid, or ok=false if absent.
func (h *Hash) Lookup(uid uint32) (uint32, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	slot, ok := h.table[uid]
	return slot, ok
}

// Insert records that uid now lives at slot.
func (h *Hash) Insert(uid uint32, slot uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.table[uid] = slot
	return nil
}

// Remove drops any entry for uid.
func (h *Hash) Remove(uid uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.table, uid)
	return nil
}

// Rebuild discards all entries and repopulates from pairs.
func (h *Hash) Rebuild(pairs func(yield func(uid uint32, slot uint32) bool)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.table = make(map[uint32]uint32)

	pairs(func(uid uint32, slot uint32) bool {
		h.table[uid] = slot
		return true
	})

	return nil
}

// Sync persists the in-memory table to disk via an atomic rename, so a
// concurrent reader (or a crash) never observes a partially written file.
func (h *Hash) Sync() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	buf := make([]byte, 0, len(h.table)*entrySize)

	for uid, slot := range h.table {
		var entry [entrySize]byte
		binary.LittleEndian.PutUint32(entry[0:4], uid)
		binary.LittleEndian.PutUint32(entry[4:8], slot)
		buf = append(buf, entry[:]...)
	}

	if err := atomic.WriteFile(h.path, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("uidhash: atomic write %s: %w", h.path, err)
	}

	return nil
}

// Close flushes the hash to disk. There is no separate file descriptor to
// release: each Sync is a fresh atomic write, so nothing is held open
// between calls.
func (h *Hash) Close() error {
	return h.Sync()
}
