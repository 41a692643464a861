package mailindex

import (
	"fmt"

	"github.com/maildeck/mailidx/pkg/fs"
)

// SetLock transitions the handle to the requested state, per §4.3's
// escalation rules:
//
//   - UNLOCK -> SHARED and UNLOCK -> EXCLUSIVE acquire a new advisory lock
//     and (re)establish the mapping.
//   - SHARED -> UNLOCK and EXCLUSIVE -> UNLOCK release the lock and drop the
//     mapping. Leaving EXCLUSIVE clears FSCK and syncs the data store, hash,
//     modification log and mapping first. Leaving SHARED does no header
//     write-back: no pending flag updates are kept or folded in, and there
//     is no upgrade to EXCLUSIVE on the way out.
//   - SHARED -> EXCLUSIVE is a forbidden transition: callers must drop to
//     UNLOCK and reacquire EXCLUSIVE instead. SetLock returns
//     ErrLockContract rather than silently upgrading, since upgrading in
//     place is exactly the lock-order inversion flock cannot arbitrate
//     safely across processes.
//
// SetLock blocks until the lock is available; use [Index.TryLock] for a
// non-blocking EXCLUSIVE attempt.
func (idx *Index) SetLock(want LockState) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkOpen(); err != nil {
		return err
	}

	if idx.lockState == Shared && want == Exclusive {
		return fmt.Errorf("%w: SHARED -> EXCLUSIVE is forbidden, drop to UNLOCK first", ErrLockContract)
	}

	if idx.lockState == want {
		return nil
	}

	switch want {
	case Unlock:
		return idx.toUnlockLocked()
	case Shared:
		return idx.toLockedLocked(Shared)
	case Exclusive:
		return idx.toLockedLocked(Exclusive)
	default:
		return fmt.Errorf("%w: unknown lock state %v", ErrLockContract, want)
	}
}

// TryLock attempts a non-blocking UNLOCK -> EXCLUSIVE transition, returning
// fs.ErrWouldBlock if another handle holds the lock. Unlike SetLock, it
// never blocks.
func (idx *Index) TryLock() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkOpen(); err != nil {
		return err
	}

	if idx.lockState != Unlock {
		return fmt.Errorf("%w: TryLock requires UNLOCK state", ErrLockContract)
	}

	lock, err := idx.locker.TryLock(idx.path)
	if err != nil {
		return err
	}

	return idx.afterLockAcquiredLocked(lock, Exclusive)
}

// LockState returns the handle's current lock state.
func (idx *Index) LockState() LockState {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	return idx.lockState
}

func (idx *Index) toLockedLocked(want LockState) error {
	var (
		lock *fs.Lock
		err  error
	)

	switch want {
	case Shared:
		lock, err = idx.locker.RLock(idx.path)
	case Exclusive:
		lock, err = idx.locker.Lock(idx.path)
	}

	if err != nil {
		return fmt.Errorf("mailindex: acquire %v lock: %w", want, err)
	}

	return idx.afterLockAcquiredLocked(lock, want)
}

func (idx *Index) afterLockAcquiredLocked(lock *fs.Lock, got LockState) error {
	idx.lock = lock
	idx.lockState = got

	if err := idx.mapLocked(); err != nil {
		_ = lock.Close()
		idx.lock = nil
		idx.lockState = Unlock
		return err
	}

	if len(idx.data) >= headerSize {
		id := idx.hdr().IndexID()
		if idx.indexID != 0 && id != idx.indexID {
			idx.lockState = Unlock
			return ErrInconsistent
		}
		idx.indexID = id
	}

	// Step 8: a REBUILD flag observed right after acquiring means another
	// process (or an earlier open on this same handle) left corruption
	// unresolved. The cascade only runs here for an EXCLUSIVE acquirer; a
	// SHARED acquirer leaves REBUILD set for the next exclusive holder. This
	// is also how create's fresh header, written with REBUILD set, gets its
	// initial rebuild.
	if got == Exclusive && idx.hdr().Flags()&FlagRebuild != 0 {
		if err := idx.runRecoveryCascadeLocked(); err != nil {
			return err
		}
	}

	if got == Exclusive {
		h := idx.hdr()
		h.SetFlags(h.Flags() | FlagFsck)
		if err := idx.syncLocked(); err != nil {
			return err
		}
	}

	return nil
}

func (idx *Index) toUnlockLocked() error {
	if idx.lockState == Exclusive {
		h := idx.hdr()
		h.SetFlags(h.Flags() &^ FlagFsck)

		if idx.store != nil {
			if err := idx.store.Sync(); err != nil {
				return fmt.Errorf("mailindex: sync data store: %w", err)
			}
		}
		if idx.hash != nil {
			if err := idx.hash.Sync(); err != nil {
				return fmt.Errorf("mailindex: sync uid hash: %w", err)
			}
		}
		if idx.log != nil {
			if err := idx.log.Sync(); err != nil {
				return fmt.Errorf("mailindex: sync modlog: %w", err)
			}
			idx.log.FlushFailures()
		}

		if err := idx.syncLocked(); err != nil {
			return err
		}
	}

	if err := idx.unmapLocked(); err != nil {
		return err
	}

	if idx.lock != nil {
		if err := idx.lock.Close(); err != nil {
			return fmt.Errorf("mailindex: release lock: %w", err)
		}
		idx.lock = nil
	}

	idx.lockState = Unlock

	return nil
}

// requireLocked is a guard used by read/write operations: it returns
// ErrLockContract if the handle isn't holding at least the given state.
func (idx *Index) requireLocked(min LockState) error {
	if idx.lockState < min {
		return fmt.Errorf("%w: operation requires at least %v, handle is %v", ErrLockContract, min, idx.lockState)
	}
	return nil
}
