package mailindex

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// mapLocked (re)establishes the memory mapping over the full current file
// contents. It is called once after the lock is first acquired and again
// whenever the file has grown since, mirroring dovecot's dirty_mmap
// handling (§4.3): a mapping is only ever replaced, never resized in place.
func (idx *Index) mapLocked() error {
	if err := idx.unmapLocked(); err != nil {
		return err
	}

	fi, err := idx.file.Stat()
	if err != nil {
		return fmt.Errorf("mailindex: stat index file: %w", err)
	}

	size := fi.Size()
	if size < headerSize {
		idx.markRebuildOnDiskLocked(size)
		return fmt.Errorf("%w: file shorter than header (%d bytes)", ErrCorrupt, size)
	}

	// A mapping whose length is not header+k*record is silently truncated to
	// a valid length on disk (§4.3), mirroring mail-index.c's mmap_update
	// dropping a partial trailing record rather than refusing to open.
	if tail := (size - headerSize) % recordSize; tail != 0 {
		size -= tail
		if err := idx.file.Truncate(size); err != nil {
			return fmt.Errorf("mailindex: truncate partial tail record: %w", err)
		}
	}

	data, err := unix.Mmap(int(idx.file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mailindex: mmap: %w", err)
	}

	idx.data = data

	return nil
}

// markRebuildOnDiskLocked sets the REBUILD bit directly on the file when the
// header itself is too short to safely map, per §4.3 "mark corrupted +
// REBUILD". There is no valid mapping to flip a bit in at this point, so the
// flags field is patched with a raw pwrite; a file too short to even contain
// that field is left untouched; there is nothing on disk left to mark, and
// the failing open already reports ErrCorrupt to the caller.
func (idx *Index) markRebuildOnDiskLocked(size int64) {
	if size < offFlags+4 {
		return
	}

	var buf [4]byte
	if _, err := idx.file.ReadAt(buf[:], offFlags); err != nil {
		return
	}

	flags := binary.LittleEndian.Uint32(buf[:]) | FlagRebuild
	binary.LittleEndian.PutUint32(buf[:], flags)

	_, _ = idx.file.WriteAt(buf[:], offFlags)
	_ = idx.file.Sync()
}

// remapIfGrown re-mmaps when the backing file has grown past the current
// mapping, the situation append.go creates after extending the file. It is
// a no-op when the file hasn't grown, so it is cheap to call defensively
// before any read that walks past the currently-mapped slot count.
func (idx *Index) remapIfGrown() error {
	fi, err := idx.file.Stat()
	if err != nil {
		return fmt.Errorf("mailindex: stat index file: %w", err)
	}

	if int(fi.Size()) <= len(idx.data) {
		return nil
	}

	return idx.mapLocked()
}

// unmapLocked releases the current mapping, if any. It does not touch the
// underlying file descriptor.
func (idx *Index) unmapLocked() error {
	if idx.data == nil {
		return nil
	}

	data := idx.data
	idx.data = nil

	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("mailindex: munmap: %w", err)
	}

	return nil
}

// syncLocked flushes dirty mapped pages to disk. Called right after an
// EXCLUSIVE lock is taken (once FSCK is set) and before it is released.
// Append, Expunge and SetFlags do not call it; their header and record
// changes reach disk with the sync at unlock.
func (idx *Index) syncLocked() error {
	if idx.data == nil {
		return nil
	}

	if err := unix.Msync(idx.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("mailindex: msync: %w", err)
	}

	return nil
}
