// Package dirlock provides directory-level mutual exclusion used only while
// an index file is being created: no index-file lock can exist before the
// file does, so creation races are serialized against a dedicated lock file
// in the mailbox directory instead.
package dirlock

import (
	"fmt"
	"path/filepath"

	"github.com/maildeck/mailidx/pkg/fs"
)

// LockFileName is the fixed name of the directory-level lock file, created
// alongside the index file and never removed.
const LockFileName = ".mailindex.lock"

// DirLock serializes index creation within one mailbox directory.
type DirLock struct {
	locker *fs.Locker
	path   string
}

// New returns a DirLock for the given mailbox directory.
func New(filesys fs.FS, dir string) *DirLock {
	return &DirLock{
		locker: fs.NewLocker(filesys),
		path:   filepath.Join(dir, LockFileName),
	}
}

// Lock blocks until the directory lock is acquired.
func (d *DirLock) Lock() (*fs.Lock, error) {
	lock, err := d.locker.Lock(d.path)
	if err != nil {
		return nil, fmt.Errorf("dirlock: acquire %s: %w", d.path, err)
	}
	return lock, nil
}
