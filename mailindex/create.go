package mailindex

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maildeck/mailidx/pkg/fs"
)

// create implements the create() sequence of §4.2. The caller must already
// hold the directory lock; that lock makes step 1 (writing the temp file)
// safe, and step 2 (linking it into place) is atomic on the filesystem.
func create(filesys fs.FS, dir string, newSubsystems Factory) (*Index, error) {
	indexID := newIndexID()

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%d", IndexFilePrefix, indexID))

	if err := writeNewHeaderFile(filesys, tmpPath, indexID); err != nil {
		return nil, fmt.Errorf("mailindex: write temp header: %w", err)
	}

	finalPath, err := linkIntoPlace(dir, tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}

	f, err := filesys.OpenFile(finalPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("mailindex: open new index file: %w", err)
	}

	subs, err := newSubsystems(dir)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mailindex: open subsystems: %w", err)
	}

	idx := &Index{
		dir:     dir,
		path:    finalPath,
		file:    f,
		filesys: filesys,
		locker:  fs.NewLocker(filesys),
		hash:    subs.Hash,
		log:     subs.Log,
		store:   subs.Store,
	}

	// Taking the exclusive lock runs the recovery cascade (afterLockAcquiredLocked)
	// since the header we just wrote has REBUILD set; that clears REBUILD
	// and leaves an empty, consistent record array - see §4.2 step 4.
	if err := idx.SetLock(Exclusive); err != nil {
		_ = f.Close()
		return nil, err
	}

	return idx, nil
}

func writeNewHeaderFile(filesys fs.FS, path string, indexID uint64) error {
	f, err := filesys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := encodeNewHeader(indexID, uint32(indexID))

	if _, err := f.Write(buf); err != nil {
		return err
	}

	return f.Sync()
}

// linkIntoPlace implements §4.2/§6's link-with-rename-fallback: link the
// temp file to the canonical name; if that name is already taken (lost a
// link(2) race against a concurrent creator), fall back to a
// PREFIX-<hostname> sibling via rename.
func linkIntoPlace(dir, tmpPath string) (string, error) {
	primary := filepath.Join(dir, IndexFilePrefix)

	if err := os.Link(tmpPath, primary); err == nil {
		_ = os.Remove(tmpPath)
		return primary, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	fallback := filepath.Join(dir, fmt.Sprintf("%s-%s", IndexFilePrefix, hostname))

	if err := os.Rename(tmpPath, fallback); err != nil {
		return "", fmt.Errorf("mailindex: link and rename fallback both failed: %w", err)
	}

	return fallback, nil
}

// newIndexID assigns a fresh identity at creation time: indexid is defined
// by §3 as "assigned at creation (creation timestamp)", so the low bits
// carry the wall-clock reading and the high bits carry the pid to keep two
// processes racing to create the same mailbox from colliding.
func newIndexID() uint64 {
	return uint64(os.Getpid())<<32 | uint64(uint32(time.Now().UnixNano()))
}
