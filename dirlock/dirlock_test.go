package dirlock

import (
	"testing"

	"github.com/maildeck/mailidx/pkg/fs"
)

func TestLock_AcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	filesys := fs.NewReal()

	d := New(filesys, dir)

	lock, err := d.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if err := lock.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Lock must be reacquirable once released.
	lock2, err := d.Lock()
	if err != nil {
		t.Fatalf("second Lock: %v", err)
	}
	if err := lock2.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
