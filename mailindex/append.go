package mailindex

import (
	"fmt"
	"io"
)

// Append implements the append sequence of §4.5: assigns the next UID,
// extends the file by one record, and applies flag-delta bookkeeping as if
// the record transitioned from no flags to initialFlags. Must be called
// under an exclusive lock.
func (idx *Index) Append(initialFlags uint32) (Record, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkOpen(); err != nil {
		return Record{}, err
	}
	if err := idx.requireLocked(Exclusive); err != nil {
		return Record{}, err
	}
	if err := idx.checkConsistency(); err != nil {
		return Record{}, err
	}

	h := idx.hdr()
	uid := h.NextUID()
	h.SetNextUID(uid + 1)

	buf := make([]byte, recordSize)
	rec := record{buf: buf}
	rec.SetUID(uid)
	rec.SetMsgFlags(initialFlags)

	if _, err := idx.file.Seek(0, io.SeekEnd); err != nil {
		idx.lastErr = err
		return Record{}, fmt.Errorf("mailindex: seek to end: %w", err)
	}

	n, err := idx.file.Write(buf)
	if err != nil {
		idx.lastErr = err
		return Record{}, fmt.Errorf("mailindex: append write: %w", err)
	}
	if n != len(buf) {
		err := fmt.Errorf("mailindex: short write appending record (%d of %d bytes)", n, len(buf))
		idx.lastErr = err
		return Record{}, err
	}

	h.SetMessagesCount(h.MessagesCount() + 1)
	idx.applyFlagDeltaLocked(uid, 0, initialFlags)

	if err := idx.mapLocked(); err != nil {
		return Record{}, err
	}

	slot := idx.slotCount() - 1

	if err := idx.hash.Insert(uid, slot); err != nil {
		return Record{}, fmt.Errorf("mailindex: update uid hash: %w", err)
	}

	seq := idx.hdr().MessagesCount()
	idx.cacheLookup(slot, seq)

	return recordToRecord(slot, seq, idx.rec(slot)), nil
}
