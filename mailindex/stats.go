package mailindex

// Stats is a snapshot of the header counters a caller can read under a
// shared lock without walking the record array.
type Stats struct {
	MessagesCount           uint32
	SeenMessagesCount       uint32
	DeletedMessagesCount    uint32
	NextUID                 uint32
	UIDValidity             uint32
	FirstUnseenUIDLowwater  uint32
	FirstDeletedUIDLowwater uint32
	LastNonrecentUID        uint32
}

// Stat returns a snapshot of the current header counters. Requires at least
// a shared lock.
func (idx *Index) Stat() (Stats, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkOpen(); err != nil {
		return Stats{}, err
	}
	if err := idx.requireLocked(Shared); err != nil {
		return Stats{}, err
	}

	h := idx.hdr()

	return Stats{
		MessagesCount:           h.MessagesCount(),
		SeenMessagesCount:       h.SeenMessagesCount(),
		DeletedMessagesCount:    h.DeletedMessagesCount(),
		NextUID:                 h.NextUID(),
		UIDValidity:             h.UIDValidity(),
		FirstUnseenUIDLowwater:  h.FirstUnseenUIDLowwater(),
		FirstDeletedUIDLowwater: h.FirstDeletedUIDLowwater(),
		LastNonrecentUID:        h.LastNonrecentUID(),
	}, nil
}

// MessagesCount is a convenience accessor equivalent to Stat().MessagesCount.
func (idx *Index) MessagesCount() uint32 { return idx.statField(func(h header) uint32 { return h.MessagesCount() }) }

// SeenMessagesCount is a convenience accessor equivalent to Stat().SeenMessagesCount.
func (idx *Index) SeenMessagesCount() uint32 {
	return idx.statField(func(h header) uint32 { return h.SeenMessagesCount() })
}

// DeletedMessagesCount is a convenience accessor equivalent to Stat().DeletedMessagesCount.
func (idx *Index) DeletedMessagesCount() uint32 {
	return idx.statField(func(h header) uint32 { return h.DeletedMessagesCount() })
}

// NextUID is a convenience accessor equivalent to Stat().NextUID.
func (idx *Index) NextUID() uint32 { return idx.statField(func(h header) uint32 { return h.NextUID() }) }

func (idx *Index) statField(get func(header) uint32) uint32 {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed || idx.lockState == Unlock || len(idx.data) < headerSize {
		return 0
	}

	return get(idx.hdr())
}

// SetFsckFlag sets the FSCK recovery flag in the mapped header. Requires an
// exclusive lock. Releasing that lock cleanly clears FSCK again, so the flag
// only survives to the next open if the handle is dropped without a clean
// unlock; every open runs the consistency sweep regardless, because its
// own exclusive acquire sets FSCK before the recovery cascade runs.
func (idx *Index) SetFsckFlag() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.checkOpen(); err != nil {
		return err
	}
	if err := idx.requireLocked(Exclusive); err != nil {
		return err
	}

	h := idx.hdr()
	h.SetFlags(h.Flags() | FlagFsck)

	return nil
}
