package mailindex

import "errors"

// Error classification. Callers classify with errors.Is; wrapped context is
// added at call sites with fmt.Errorf("%w: ...").
var (
	// ErrNotFound indicates no compatible index file exists in the directory.
	ErrNotFound = errors.New("mailindex: no compatible index found")

	// ErrIncompatible indicates a candidate index file's compat_data or
	// version does not match this process. The file is not ours.
	ErrIncompatible = errors.New("mailindex: incompatible index file")

	// ErrCorrupt indicates structural corruption: short header or uid-zero
	// where a live uid was expected. The current operation fails. Only a
	// file shorter than the header gets REBUILD set (patched onto the file
	// by mmap.go); a uid-zero slot found by LookupBySeq sets FSCK instead,
	// and the other sites set no flag. A file length that isn't
	// header + k*record is not reported with this error: the partial tail
	// is truncated away when mapping.
	ErrCorrupt = errors.New("mailindex: corrupt index")

	// ErrInconsistent indicates the on-disk indexid changed under this
	// handle (the file was rebuilt by another process). The handle is
	// permanently inconsistent; only Close is legal afterward.
	ErrInconsistent = errors.New("mailindex: inconsistent handle")

	// ErrClosed indicates an operation on a handle that was already closed.
	ErrClosed = errors.New("mailindex: handle closed")

	// ErrLockContract indicates a forbidden lock transition (e.g. SHARED ->
	// EXCLUSIVE) or an operation attempted without the required lock. These
	// are programming errors.
	ErrLockContract = errors.New("mailindex: lock contract violation")

	// ErrAlreadyExpunged indicates an operation targeted a record whose uid
	// is already zero (a tombstone). Grounded on original_source behavior:
	// mail-index.c rejects double-expunge rather than silently no-op'ing.
	ErrAlreadyExpunged = errors.New("mailindex: record already expunged")

	// ErrRecordOutOfRange indicates a sequence number or byte offset outside
	// the current record array.
	ErrRecordOutOfRange = errors.New("mailindex: record out of range")

	// ErrUIDRangeEmpty indicates lookup_uid_range was called with
	// first_uid > last_uid.
	ErrUIDRangeEmpty = errors.New("mailindex: empty uid range")
)

// IsInconsistencyError reports whether err (or anything it wraps) indicates
// the handle became inconsistent, per spec §7.3.
func IsInconsistencyError(err error) bool {
	return errors.Is(err, ErrInconsistent)
}

// GetLastError returns the most recent I/O-failure-class error recorded on
// the handle, or nil. Most mutating operations already return this error
// directly; GetLastError exists for callers that drop returned errors from
// read paths that the spec describes as returning a bare success/fail flag.
func (idx *Index) GetLastError() error {
	return idx.lastErr
}
