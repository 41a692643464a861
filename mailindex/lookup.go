package mailindex

import "fmt"

// Record is a caller-facing handle on one index slot: a value, not a
// pointer, so callers can hold it across operations that may remap the
// underlying file; re-resolve via LookupBySeq/LookupUIDRange after any
// mutation if you need the live view again.
type Record struct {
	Seq          uint32
	UID          uint32
	MsgFlags     uint32
	CachedFields uint32
	DataSize     uint32
	DataPos      uint64

	slot uint32
}

func recordToRecord(slot uint32, seq uint32, r record) Record {
	return Record{
		Seq:          seq,
		UID:          r.UID(),
		MsgFlags:     r.MsgFlags(),
		CachedFields: r.CachedFields(),
		DataSize:     r.DataSize(),
		DataPos:      r.DataPos(),
		slot:         slot,
	}
}

// LookupBySeq implements lookup_by_seq(s) (§4.4). s is 1-based.
func (idx *Index) LookupBySeq(seq uint32) (Record, bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkOpen(); err != nil {
		return Record{}, false, err
	}
	if err := idx.requireLocked(Shared); err != nil {
		return Record{}, false, err
	}
	if err := idx.checkConsistency(); err != nil {
		return Record{}, false, err
	}

	if seq == 0 {
		return Record{}, false, fmt.Errorf("%w: sequence numbers are 1-based", ErrRecordOutOfRange)
	}

	if idx.lastLookupValid && seq == idx.lastLookupSeq {
		r := idx.rec(idx.lastLookupSlot)
		if !r.IsTombstone() {
			return recordToRecord(idx.lastLookupSlot, seq, r), true, nil
		}
	}

	holePos := idx.hdr().FirstHolePosition()
	seekOffset := uint64(headerSize) + uint64(seq-1)*recordSize

	if holePos == 0 || holePos > seekOffset {
		n := idx.slotCount()
		if seq > n {
			return Record{}, false, nil
		}

		slot := seq - 1
		r := idx.rec(slot)

		if r.IsTombstone() {
			idx.hdr().SetFlags(idx.hdr().Flags() | FlagFsck)
			return Record{}, false, fmt.Errorf("%w: live slot has uid=0 below recorded hole", ErrCorrupt)
		}

		idx.cacheLookup(slot, seq)

		return recordToRecord(slot, seq, r), true, nil
	}

	return idx.walkToSeqLocked(seq, holePos)
}

// walkToSeqLocked advances from the cached position (if it is before seq)
// or from just past the first hole, counting only live records, until
// position seq is reached.
func (idx *Index) walkToSeqLocked(seq uint32, holePos uint64) (Record, bool, error) {
	var (
		slot   uint32
		curSeq uint32
	)

	if idx.lastLookupValid && idx.lastLookupSeq < seq {
		slot = idx.lastLookupSlot + 1
		curSeq = idx.lastLookupSeq
	} else {
		holeRecords := idx.hdr().FirstHoleRecords()
		slot = uint32((holePos-headerSize)/recordSize) + holeRecords
		curSeq = 0

		n := idx.slotCount()
		for i := uint32(0); i < slot && i < n; i++ {
			if !idx.rec(i).IsTombstone() {
				curSeq++
			}
		}
	}

	n := idx.slotCount()

	for slot < n {
		r := idx.rec(slot)
		if !r.IsTombstone() {
			curSeq++
			if curSeq == seq {
				idx.cacheLookup(slot, seq)
				return recordToRecord(slot, seq, r), true, nil
			}
		}
		slot++
	}

	return Record{}, false, nil
}

func (idx *Index) cacheLookup(slot, seq uint32) {
	idx.lastLookupValid = true
	idx.lastLookupSlot = slot
	idx.lastLookupSeq = seq
}

// LookupUIDRange implements lookup_uid_range(first_uid, last_uid) (§4.4).
func (idx *Index) LookupUIDRange(firstUID, lastUID uint32) (Record, bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkOpen(); err != nil {
		return Record{}, false, err
	}
	if err := idx.requireLocked(Shared); err != nil {
		return Record{}, false, err
	}
	if err := idx.checkConsistency(); err != nil {
		return Record{}, false, err
	}

	if firstUID > lastUID {
		return Record{}, false, ErrUIDRangeEmpty
	}

	probeLast := lastUID
	if probeLast > firstUID+4 {
		probeLast = firstUID + 4
	}

	for uid := firstUID; uid <= probeLast; uid++ {
		slot, ok := idx.hash.Lookup(uid)
		if !ok {
			continue
		}
		if slot >= idx.slotCount() {
			continue
		}

		r := idx.rec(slot)
		if r.IsTombstone() || r.UID() != uid {
			continue
		}

		seq := idx.seqForSlotLocked(slot)

		return recordToRecord(slot, seq, r), true, nil
	}

	n := idx.slotCount()
	seq := uint32(0)

	for i := uint32(0); i < n; i++ {
		r := idx.rec(i)
		if r.IsTombstone() {
			continue
		}

		seq++

		if r.UID() >= firstUID && r.UID() <= lastUID {
			return recordToRecord(i, seq, r), true, nil
		}
	}

	return Record{}, false, nil
}

// Next implements next(rec) (§4.4): the first record after rec with uid≠0.
func (idx *Index) Next(rec Record) (Record, bool, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkOpen(); err != nil {
		return Record{}, false, err
	}
	if err := idx.requireLocked(Shared); err != nil {
		return Record{}, false, err
	}

	n := idx.slotCount()
	seq := rec.Seq

	for slot := rec.slot + 1; slot < n; slot++ {
		r := idx.rec(slot)
		if r.IsTombstone() {
			continue
		}
		seq++
		return recordToRecord(slot, seq, r), true, nil
	}

	return Record{}, false, nil
}

// GetSequence implements get_sequence(rec) (§4.4).
func (idx *Index) GetSequence(rec Record) (uint32, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkOpen(); err != nil {
		return 0, err
	}
	if err := idx.requireLocked(Shared); err != nil {
		return 0, err
	}

	if idx.lastLookupValid && rec.slot == idx.lastLookupSlot {
		return idx.lastLookupSeq, nil
	}

	return idx.seqForSlotLocked(rec.slot), nil
}

func (idx *Index) seqForSlotLocked(slot uint32) uint32 {
	holePos := idx.hdr().FirstHolePosition()
	slotOffset := uint64(headerSize) + uint64(slot)*recordSize

	if holePos == 0 || slotOffset < holePos {
		return slot + 1
	}

	holeRecords := idx.hdr().FirstHoleRecords()
	start := uint32((holePos-headerSize)/recordSize) + holeRecords

	seq := uint32(0)
	for i := uint32(0); i < start; i++ {
		if !idx.rec(i).IsTombstone() {
			seq++
		}
	}

	for i := start; i <= slot; i++ {
		if !idx.rec(i).IsTombstone() {
			seq++
		}
	}

	return seq
}
