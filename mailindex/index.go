package mailindex

import (
	"fmt"
	"sync"

	"github.com/maildeck/mailidx/pkg/fs"
)

// LockState is the coarse lock state of an [Index] handle, per §4.3.
type LockState int

const (
	// Unlock is the initial and resting state: no lock held, the mapping may
	// be stale and must not be trusted without re-acquiring a lock first.
	Unlock LockState = iota
	Shared
	Exclusive
)

func (s LockState) String() string {
	switch s {
	case Unlock:
		return "UNLOCK"
	case Shared:
		return "SHARED"
	case Exclusive:
		return "EXCLUSIVE"
	default:
		return "UNKNOWN"
	}
}

// Index is a handle on one mailbox's on-disk index file. It is not safe for
// concurrent use from multiple goroutines: like the mailbox abstraction it
// models, one Index is owned by one logical session at a time. Concurrent
// access across processes (or across goroutines that want independent lock
// lifetimes) means opening independent handles.
type Index struct {
	mu sync.Mutex // guards everything below against accidental concurrent misuse

	dir       string // mailbox directory
	path      string // resolved index file path within dir
	file      fs.File
	filesys   fs.FS
	locker    *fs.Locker
	lock      *fs.Lock
	lockState LockState

	data    []byte // current mmap, nil when Unlock
	indexID uint64 // cached from header at last (re)lock, detects rebuild-under-us

	lastLookupValid bool
	lastLookupSlot  uint32
	lastLookupSeq   uint32

	hash  UIDHash
	log   ModLog
	store DataStore

	closed  bool
	lastErr error
}

// DataStore is the append-oriented variable-length field store a mailbox's
// records point into via DataPos/DataSize (§2.2).
type DataStore interface {
	// Append writes a new variable-length blob and returns its position and
	// size for storage in a record.
	Append(field uint8, data []byte) (pos uint64, size uint32, err error)

	// Read returns the bytes previously written at pos/size.
	Read(pos uint64, size uint32) ([]byte, error)

	// DeletedBytes returns the number of bytes belonging to fields that are
	// no longer referenced by any live record.
	DeletedBytes() uint64

	// Reset discards all stored data, returning the store to empty. Used by
	// a full rebuild and as the conservative COMPRESS_DATA implementation.
	Reset() error

	// Sync flushes any buffered writes to stable storage.
	Sync() error

	// Close releases any resources held by the store.
	Close() error
}

// UIDHash is the persistent UID->offset accelerator (§2.3). It trades an
// O(1) average lookup for an on-disk structure that must itself tolerate
// becoming stale; the index can always fall back to a linear scan of
// its record array and request a rebuild via FlagRebuildHash.
type UIDHash interface {
	// Lookup returns the record slot index for uid, or ok=false if uid is
	// not present (either never existed or the hash is stale).
	Lookup(uid uint32) (slot uint32, ok bool)

	// Insert records that uid now lives at slot.
	Insert(uid uint32, slot uint32) error

	// Remove drops any entry for uid.
	Remove(uid uint32) error

	// Rebuild discards all entries and rebuilds from the given live
	// (uid, slot) pairs, in ascending uid order.
	Rebuild(pairs func(yield func(uid uint32, slot uint32) bool)) error

	// Sync flushes the hash to stable storage.
	Sync() error

	// Close releases any resources held by the hash.
	Close() error
}

// ModLog is the append-only flag/expunge journal (§2.4). A successful
// Expunge of a record with a nonzero Seq is appended as one entry; so is a
// successful SetFlags with a nonzero Seq that changes SEEN or DELETED.
// Other calls append nothing. FlushFailures reports entries whose
// durable write failed so a caller can decide whether to retry or rebuild.
// Every entry is tagged with the sequence and uid it was observed at and
// whether the change came from outside this handle, per §2.4/§4.6/§4.7 -
// a replaying reader needs (seq, uid, external) to reconstruct what a
// client watching the mailbox would have seen.
type ModLog interface {
	// AppendFlagChange records a single flag-bit transition for uid at seq,
	// per the one-transition-per-call bookkeeping in §9(b).
	AppendFlagChange(seq uint32, uid uint32, bit uint32, newValue bool, external bool) error

	// AppendExpunge records that uid at seq was expunged.
	AppendExpunge(seq uint32, uid uint32, external bool) error

	// FlushFailures returns the uids whose most recent append did not reach
	// stable storage, clearing them from the pending set.
	FlushFailures() []uint32

	// Sync flushes the log to stable storage.
	Sync() error

	// Close releases any resources held by the log.
	Close() error
}

// Close releases the handle: it drops any held lock, unmaps the file and
// closes the file descriptor. Close is idempotent.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	idx.closed = true

	var firstErr error

	if err := idx.unmapLocked(); err != nil && firstErr == nil {
		firstErr = err
	}

	if idx.lock != nil {
		if err := idx.lock.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		idx.lock = nil
	}

	if idx.file != nil {
		if err := idx.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		idx.file = nil
	}

	if idx.hash != nil {
		if err := idx.hash.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if idx.log != nil {
		if err := idx.log.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if idx.store != nil {
		if err := idx.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	idx.lockState = Unlock

	return firstErr
}

func (idx *Index) checkOpen() error {
	if idx.closed {
		return ErrClosed
	}
	return nil
}

// slotCount returns the number of recordSize-byte slots currently backed
// by the mapping (header onward), independent of header.MessagesCount which
// only counts live (non-tombstone) records.
func (idx *Index) slotCount() uint32 {
	if len(idx.data) <= headerSize {
		return 0
	}
	return uint32((len(idx.data) - headerSize) / recordSize)
}

func (idx *Index) hdr() header {
	return header{buf: idx.data[:headerSize]}
}

func (idx *Index) rec(slot uint32) record {
	return recordAt(idx.data, slot)
}

// checkConsistency compares the indexID cached at lock-acquire time against
// the live header, per §7.3: a mismatch means another process rebuilt the
// file out from under this handle.
func (idx *Index) checkConsistency() error {
	if len(idx.data) < headerSize {
		return fmt.Errorf("%w: mapping shorter than header", ErrCorrupt)
	}
	if idx.hdr().IndexID() != idx.indexID {
		return ErrInconsistent
	}
	return nil
}
