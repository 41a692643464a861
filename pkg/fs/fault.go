package fs

import (
	"os"
	"strings"
)

// FaultFS wraps another [FS] and injects exactly two faults, the pair
// spec §7/§8's crash-consistency behavior needs to be testable against:
// a short write to a named file, and a close whose error is hidden from
// the caller. Data already written is not discarded by either fault.
// It does not attempt the teacher's general-purpose chaos/crash harness;
// scope is deliberately limited to these two fault points.
type FaultFS struct {
	inner FS

	// ShortWritePath, if non-empty, makes the next Write to a [File]
	// opened for a path containing this substring succeed with fewer
	// bytes than requested instead of returning an error, one time only.
	// Substring rather than exact match so callers can target a temp file
	// whose generated suffix isn't known in advance (e.g. AtomicWriter's
	// ".<base>.tmp-<seq>" names).
	ShortWritePath string

	// DropOnClosePath, if non-empty, makes the next [File.Close] on a file
	// opened for a path containing this substring close the underlying
	// file and return nil whatever that close reported, one time only.
	DropOnClosePath string

	shortWriteArmed  bool
	dropOnCloseArmed bool
}

// NewFaultFS returns a FaultFS delegating to inner for everything except
// the faults configured on the returned value.
func NewFaultFS(inner FS) *FaultFS {
	return &FaultFS{inner: inner}
}

func (f *FaultFS) wrap(path string, file File, err error) (File, error) {
	if err != nil {
		return file, err
	}
	matchesShortWrite := f.ShortWritePath != "" && strings.Contains(path, f.ShortWritePath)
	matchesDropOnClose := f.DropOnClosePath != "" && strings.Contains(path, f.DropOnClosePath)
	if matchesShortWrite || matchesDropOnClose {
		return &faultFile{File: file, fs: f, matchesShortWrite: matchesShortWrite, matchesDropOnClose: matchesDropOnClose}, nil
	}
	return file, nil
}

func (f *FaultFS) Open(path string) (File, error) {
	file, err := f.inner.Open(path)
	return f.wrap(path, file, err)
}

func (f *FaultFS) Create(path string) (File, error) {
	file, err := f.inner.Create(path)
	return f.wrap(path, file, err)
}

func (f *FaultFS) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	file, err := f.inner.OpenFile(path, flag, perm)
	return f.wrap(path, file, err)
}

func (f *FaultFS) ReadFile(path string) ([]byte, error) { return f.inner.ReadFile(path) }

func (f *FaultFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	return f.inner.WriteFile(path, data, perm)
}

func (f *FaultFS) ReadDir(path string) ([]os.DirEntry, error)   { return f.inner.ReadDir(path) }
func (f *FaultFS) MkdirAll(path string, perm os.FileMode) error { return f.inner.MkdirAll(path, perm) }
func (f *FaultFS) Stat(path string) (os.FileInfo, error)        { return f.inner.Stat(path) }
func (f *FaultFS) Exists(path string) (bool, error)             { return f.inner.Exists(path) }
func (f *FaultFS) Remove(path string) error                     { return f.inner.Remove(path) }
func (f *FaultFS) RemoveAll(path string) error                  { return f.inner.RemoveAll(path) }
func (f *FaultFS) Rename(oldpath, newpath string) error         { return f.inner.Rename(oldpath, newpath) }

// faultFile wraps one [File] whose path matches a configured fault.
type faultFile struct {
	File
	fs                 *FaultFS
	matchesShortWrite  bool
	matchesDropOnClose bool
}

func (ff *faultFile) Write(p []byte) (int, error) {
	if ff.matchesShortWrite && !ff.fs.shortWriteArmed {
		ff.fs.shortWriteArmed = true
		if len(p) > 1 {
			n, err := ff.File.Write(p[:len(p)-1])
			if err != nil {
				return n, err
			}
			return n, nil
		}
	}
	return ff.File.Write(p)
}

func (ff *faultFile) Close() error {
	if ff.matchesDropOnClose && !ff.fs.dropOnCloseArmed {
		ff.fs.dropOnCloseArmed = true
		_ = ff.File.Close()
		return nil
	}
	return ff.File.Close()
}

// Compile-time interface checks.
var _ FS = (*FaultFS)(nil)
var _ File = (*faultFile)(nil)
