package mailindex

import "fmt"

// SetFlags implements §4.7: replaces rec's msg_flags wholesale, applying
// flag-delta bookkeeping and appending to the modification log. A call that
// does not change anything succeeds silently without touching the log.
// Must be called under an exclusive lock.
func (idx *Index) SetFlags(rec Record, newFlags uint32, external bool) error {
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

	oldFlags := r.MsgFlags()
	if oldFlags == newFlags {
		return nil
	}

	bit, value, changed := idx.applyFlagDeltaLocked(r.UID(), oldFlags, newFlags)
	r.SetMsgFlags(newFlags)

	if rec.Seq != 0 && changed {
		if err := idx.log.AppendFlagChange(rec.Seq, r.UID(), bit, value, external); err != nil {
			return fmt.Errorf("mailindex: append flag change to modlog: %w", err)
		}
	}

	return nil
}

// applyFlagDeltaLocked implements index_mark_flag_changes (§4.7): exactly
// one transition per call, in this priority order - unseen->seen,
// seen->unseen, undeleted->deleted, deleted->undeleted. Preserved as-is
// rather than generalized to handle multiple simultaneous bit flips in one
// call; a caller changing both SEEN and DELETED in the same SetFlags call
// gets only the highest-priority counter updated, matching the upstream
// quirk this was distilled from. Returns the single bit/value that actually
// transitioned, and changed=false if newFlags carried no recognized
// transition (so the caller appends nothing to the modification log).
func (idx *Index) applyFlagDeltaLocked(uid uint32, oldFlags, newFlags uint32) (bit uint32, newValue bool, changed bool) {
	h := idx.hdr()

	wasSeen := oldFlags&MsgSeen != 0
	isSeen := newFlags&MsgSeen != 0
	wasDeleted := oldFlags&MsgDeleted != 0
	isDeleted := newFlags&MsgDeleted != 0

	switch {
	case !wasSeen && isSeen:
		h.SetSeenMessagesCount(h.SeenMessagesCount() + 1)
		return MsgSeen, true, true

	case wasSeen && !isSeen:
		total := h.MessagesCount()
		if h.SeenMessagesCount() == total || uid < h.FirstUnseenUIDLowwater() || h.FirstUnseenUIDLowwater() == 0 {
			h.SetFirstUnseenUIDLowwater(uid)
		}
		h.SetSeenMessagesCount(h.SeenMessagesCount() - 1)
		return MsgSeen, false, true

	case !wasDeleted && isDeleted:
		h.SetDeletedMessagesCount(h.DeletedMessagesCount() + 1)
		if h.FirstDeletedUIDLowwater() == 0 || uid < h.FirstDeletedUIDLowwater() {
			h.SetFirstDeletedUIDLowwater(uid)
		}
		return MsgDeleted, true, true

	case wasDeleted && !isDeleted:
		h.SetDeletedMessagesCount(h.DeletedMessagesCount() - 1)
		return MsgDeleted, false, true
	}

	return 0, false, false
}
