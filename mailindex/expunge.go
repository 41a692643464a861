package mailindex

import "fmt"

// Expunge implements §4.6: tombstones rec in place, updates the hole
// descriptor, hash and modification log, and applies flag-delta bookkeeping
// for the transition to no flags. Must be called under an exclusive lock.
//
// seq == 0 means the caller does not want an entry appended to the
// modification log (an internal expunge not externally visible).
func (idx *Index) Expunge(rec Record, external bool) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkOpen(); err != nil {
		return err
	}
	if err := idx.requireLocked(Exclusive); err != nil {
		return err
	}
	if err := idx.checkConsistency(); err != nil {
		return err
	}

	if rec.slot >= idx.slotCount() {
		return ErrRecordOutOfRange
	}

	r := idx.rec(rec.slot)
	if r.IsTombstone() {
		return ErrAlreadyExpunged
	}

	uid := r.UID()
	oldFlags := r.MsgFlags()

	if rec.Seq != 0 {
		if err := idx.log.AppendExpunge(rec.Seq, uid, external); err != nil {
			return fmt.Errorf("mailindex: append expunge to modlog: %w", err)
		}
	}

	if err := idx.hash.Remove(uid); err != nil {
		return fmt.Errorf("mailindex: remove uid from hash: %w", err)
	}

	r.clear()

	if idx.lastLookupValid {
		switch {
		case idx.lastLookupSlot == rec.slot:
			idx.lastLookupValid = false
		case idx.lastLookupSeq > rec.Seq:
			idx.lastLookupSeq--
		}
	}

	idx.updateHoleDescriptorOnExpungeLocked(rec.slot)

	h := idx.hdr()
	h.SetMessagesCount(h.MessagesCount() - 1)
	idx.applyFlagDeltaLocked(uid, oldFlags, 0)

	if h.MessagesCount() == 0 {
		if err := idx.file.Truncate(headerSize); err != nil {
			return fmt.Errorf("mailindex: truncate empty index: %w", err)
		}
		if err := idx.store.Reset(); err != nil {
			return fmt.Errorf("mailindex: reset data store: %w", err)
		}

		h.SetFirstHolePosition(0)
		h.SetFirstHoleRecords(0)

		return idx.mapLocked()
	}

	return nil
}

// updateHoleDescriptorOnExpungeLocked implements §4.6 step 5.
func (idx *Index) updateHoleDescriptorOnExpungeLocked(slot uint32) {
	h := idx.hdr()

	offset := uint64(headerSize) + uint64(slot)*recordSize

	holePos := h.FirstHolePosition()
	holeRecords := h.FirstHoleRecords()

	switch {
	case holePos == 0:
		h.SetFirstHolePosition(offset)
		h.SetFirstHoleRecords(1)

	case offset+recordSize == holePos:
		h.SetFirstHolePosition(offset)
		h.SetFirstHoleRecords(holeRecords + 1)

	case offset == holePos+uint64(holeRecords)*recordSize:
		h.SetFirstHoleRecords(holeRecords + 1)
		idx.absorbContiguousTombstonesLocked()

	default:
		h.SetFlags(h.Flags() | FlagCompress)
		if offset < holePos {
			h.SetFirstHolePosition(offset)
			h.SetFirstHoleRecords(1)
		}
	}
}

// absorbContiguousTombstonesLocked greedily extends first_hole_records over
// any further contiguous tombstones immediately following the current hole,
// mirroring update_first_hole_records.
func (idx *Index) absorbContiguousTombstonesLocked() {
	h := idx.hdr()
	n := idx.slotCount()

	start := uint32((h.FirstHolePosition()-headerSize)/recordSize) + h.FirstHoleRecords()

	count := h.FirstHoleRecords()
	for start < n && idx.rec(start).IsTombstone() {
		count++
		start++
	}

	h.SetFirstHoleRecords(count)
}
