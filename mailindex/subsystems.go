package mailindex

import (
	"path/filepath"

	"github.com/maildeck/mailidx/datastore"
	"github.com/maildeck/mailidx/modlog"
	"github.com/maildeck/mailidx/pkg/fs"
	"github.com/maildeck/mailidx/uidhash"
)

// The fixed on-disk names used by DefaultFactory for the three delegated
// files, siblings of the index file within the mailbox directory.
const (
	DataStoreFileName = "mailidx.data"
	UIDHashFileName   = "mailidx.hash"
	ModLogFileName    = "mailidx.log"
)

// DefaultFactory builds the standard datastore/uidhash/modlog trio rooted
// at dir, using filesys for the data store's file operations.
func DefaultFactory(filesys fs.FS) Factory {
	return func(dir string) (Subsystems, error) {
		store, err := datastore.Open(filesys, filepath.Join(dir, DataStoreFileName))
		if err != nil {
			return Subsystems{}, err
		}

		hash, err := uidhash.Open(filepath.Join(dir, UIDHashFileName))
		if err != nil {
			_ = store.Close()
			return Subsystems{}, err
		}

		log, err := modlog.Open(filepath.Join(dir, ModLogFileName))
		if err != nil {
			_ = store.Close()
			_ = hash.Close()
			return Subsystems{}, err
		}

		return Subsystems{Store: store, Hash: hash, Log: log}, nil
	}
}
