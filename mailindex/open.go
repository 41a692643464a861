package mailindex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/maildeck/mailidx/dirlock"
	"github.com/maildeck/mailidx/pkg/fs"
)

// IndexFilePrefix is the fixed canonical index file name within a mailbox
// directory. Discovery also accepts any sibling beginning with this prefix
// (the PREFIX-<hostname> fallback written when creation loses a link race).
const IndexFilePrefix = "mailidx"

// Subsystems bundles the three delegated collaborators an [Index] needs.
// OpenOrCreate calls Factory to construct them against the same directory
// once the index file itself is ready, mirroring §4.2 step "Open the data
// store, hash, and modification log (creating any missing)".
type Subsystems struct {
	Store DataStore
	Hash  UIDHash
	Log   ModLog
}

// Factory constructs the delegated subsystems for a mailbox directory.
type Factory func(dir string) (Subsystems, error)

// OpenOrCreate implements open_or_create(dir, update_recent) (§4.2): it
// attempts to find and open a compatible index without taking the
// directory lock,
// falling back to directory-locked discovery-then-create only if that
// fails.
func OpenOrCreate(filesys fs.FS, dir string, updateRecent bool, newSubsystems Factory) (*Index, error) {
	if path, err := findCompatible(filesys, dir); err == nil {
		idx, openErr := openFile(filesys, dir, path, newSubsystems)
		if openErr == nil {
			if err := idx.afterOpen(updateRecent); err != nil {
				_ = idx.Close()
				return nil, err
			}
			return idx, nil
		}
	}

	dl := dirlock.New(filesys, dir)

	dirLock, err := dl.Lock()
	if err != nil {
		return nil, fmt.Errorf("mailindex: take directory lock: %w", err)
	}
	defer dirLock.Close()

	if path, err := findCompatible(filesys, dir); err == nil {
		idx, openErr := openFile(filesys, dir, path, newSubsystems)
		if openErr == nil {
			if err := idx.afterOpen(updateRecent); err != nil {
				_ = idx.Close()
				return nil, err
			}
			return idx, nil
		}
	}

	idx, err := create(filesys, dir, newSubsystems)
	if err != nil {
		return nil, err
	}

	if err := idx.afterOpen(updateRecent); err != nil {
		_ = idx.Close()
		return nil, err
	}

	return idx, nil
}

// findCompatible implements §4.1: try the canonical name first, then scan
// the directory for any prefixed sibling with a compatible header.
func findCompatible(filesys fs.FS, dir string) (string, error) {
	primary := filepath.Join(dir, IndexFilePrefix)

	if ok, _ := hasCompatibleHeader(filesys, primary); ok {
		return primary, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: read dir: %v", ErrNotFound, err)
	}

	for _, ent := range entries {
		if ent.IsDir() || !strings.HasPrefix(ent.Name(), IndexFilePrefix) {
			continue
		}

		candidate := filepath.Join(dir, ent.Name())
		if candidate == primary {
			continue
		}

		if ok, _ := hasCompatibleHeader(filesys, candidate); ok {
			return candidate, nil
		}
	}

	return "", ErrNotFound
}

func hasCompatibleHeader(filesys fs.FS, path string) (bool, error) {
	f, err := filesys.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, headerSize)
	if _, err := readFull(f, buf); err != nil {
		return false, err
	}

	return checkHeaderCompat(buf) == nil, nil
}

func readFull(f fs.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, errors.New("mailindex: short read")
		}
	}
	return total, nil
}

// openFile implements the first part of open_file(path) (§4.2): re-verify
// the header, open subsystems, and take an exclusive lock (which records
// indexid). The recovery cascade itself runs afterwards in afterOpen.
func openFile(filesys fs.FS, dir, path string, newSubsystems Factory) (*Index, error) {
	f, err := filesys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("mailindex: open %s: %w", path, err)
	}

	hdrBuf := make([]byte, headerSize)
	if _, err := readFull(f, hdrBuf); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: re-verify header: %v", ErrCorrupt, err)
	}

	if err := checkHeaderCompat(hdrBuf); err != nil {
		_ = f.Close()
		return nil, err
	}

	subs, err := newSubsystems(dir)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mailindex: open subsystems: %w", err)
	}

	idx := &Index{
		dir:     dir,
		path:    path,
		file:    f,
		filesys: filesys,
		locker:  fs.NewLocker(filesys),
		hash:    subs.Hash,
		log:     subs.Log,
		store:   subs.Store,
	}

	if err := idx.SetLock(Exclusive); err != nil {
		_ = f.Close()
		return nil, err
	}

	return idx, nil
}

// afterOpen runs the recovery cascade and optional update_recent mutation
// (§4.2 steps 3-5), then releases the lock taken by create/openFile.
func (idx *Index) afterOpen(updateRecent bool) error {
	idx.mu.Lock()

	if err := idx.runRecoveryCascadeLocked(); err != nil {
		idx.mu.Unlock()
		return err
	}

	if updateRecent {
		idx.updateRecentLocked()
	}

	if guardBandNearUint32Max(idx.hdr().NextUID()) {
		idx.hdr().SetFlags(idx.hdr().Flags() | FlagRebuild)
	}

	idx.mu.Unlock()

	return idx.SetLock(Unlock)
}

// guardBandNearUint32Max reports whether nextUID is close enough to
// overflowing uint32 that a fresh indexid/renumbering should be forced
// before it actually wraps (§4.2 step 5).
func guardBandNearUint32Max(nextUID uint32) bool {
	const guardBand = 1 << 16
	return nextUID > ^uint32(0)-guardBand
}

// updateRecentLocked implements §4.2 step 4: advance the recent watermark.
// first_recent_uid is not a persisted header field (the spec's header table
// in §3 does not carry it, unlike last_nonrecent_uid); it only has meaning
// as the boundary computed at the moment update_recent runs, so it is
// returned to the caller rather than stored. Requires the caller to already
// hold idx.mu and an exclusive lock.
func (idx *Index) updateRecentLocked() uint32 {
	h := idx.hdr()
	firstRecentUID := h.LastNonrecentUID() + 1
	h.SetLastNonrecentUID(h.NextUID() - 1)
	return firstRecentUID
}
