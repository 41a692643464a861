package mailindex

import "encoding/binary"

// On-disk format constants for the index file header (§3).
const (
	indexMagic     = "MIDX"
	indexVersion   = 1
	headerSize     = 128
	recordSize     = 24
	headerMagicLen = 4
)

// Header field byte offsets. Reserved bytes from offReservedStart through
// headerSize are implicitly zero and available for future fields without
// bumping indexVersion, the same role the teacher's slotcache format.go
// reserved block plays for its SLC1 header.
const (
	offMagic                   = 0   // [4]byte
	offCompatData              = 4   // [4]byte
	offVersion                 = 8   // uint32
	offIndexID                 = 12  // uint64
	offFlags                   = 20  // uint32
	offCacheFields             = 24  // uint32
	offUIDValidity             = 28  // uint32
	offNextUID                 = 32  // uint32
	offMessagesCount           = 36  // uint32
	offSeenMessagesCount       = 40  // uint32
	offDeletedMessagesCount    = 44  // uint32
	offFirstUnseenUIDLowwater  = 48  // uint32
	offFirstDeletedUIDLowwater = 52  // uint32
	offFirstHolePosition       = 56  // uint64
	offFirstHoleRecords        = 64  // uint32
	offLastNonrecentUID        = 68  // uint32
	offReservedStart           = 72
)

// compatData is the size/endian fingerprint written into every header we
// create and checked on every candidate we open. A mismatch means "not ours"
// per §4.1, not "corrupt" - such a file is simply ignored during discovery.
var compatData = [4]byte{
	1, // format flag byte
	4, // sizeof(uint32) fields (NextUID, MessagesCount, ...)
	8, // sizeof(int64) time-bearing fields (IndexID)
	8, // sizeof(uint64) offset fields (FirstHolePosition, record DataPos)
}

// Header flag bits (§3 "flags" field).
const (
	FlagRebuild      uint32 = 1 << 0
	FlagFsck         uint32 = 1 << 1
	FlagCompress     uint32 = 1 << 2
	FlagCompressData uint32 = 1 << 3
	FlagRebuildHash  uint32 = 1 << 4
	FlagCacheFields  uint32 = 1 << 5
)

// Message flag bits (record "msg_flags" field). The spec only assigns
// counting semantics to SEEN and DELETED; the rest are carried for realism
// (a real mailbox index tracks them) but have no lowwater/counter behavior.
const (
	MsgSeen     uint32 = 1 << 0
	MsgDeleted  uint32 = 1 << 1
	MsgAnswered uint32 = 1 << 2
	MsgFlagged  uint32 = 1 << 3
	MsgDraft    uint32 = 1 << 4
)

// Data-store field identifiers, used as bits in a record's cached_fields
// bitset and as the field tag understood by the [DataStore] (§3 "cached_fields").
const (
	FieldLocation uint8 = 1 << 0
	FieldHeaders  uint8 = 1 << 1
	FieldEnvelope uint8 = 1 << 2
)

// checkHeaderCompat validates compat_data and version against a header-sized
// buffer, per §4.1's compat check. It does not look at any other field.
func checkHeaderCompat(buf []byte) error {
	if len(buf) < headerSize {
		return ErrCorrupt
	}

	if string(buf[offMagic:offMagic+headerMagicLen]) != indexMagic {
		return ErrIncompatible
	}

	var got [4]byte

	copy(got[:], buf[offCompatData:offCompatData+4])

	if got != compatData {
		return ErrIncompatible
	}

	version := binary.LittleEndian.Uint32(buf[offVersion : offVersion+4])
	if version != indexVersion {
		return ErrIncompatible
	}

	return nil
}

// encodeNewHeader writes a freshly initialized header (REBUILD set, per
// §4.2 create step 1) into a headerSize-byte buffer.
func encodeNewHeader(indexID uint64, uidValidity uint32) []byte {
	buf := make([]byte, headerSize)

	copy(buf[offMagic:], indexMagic)
	copy(buf[offCompatData:], compatData[:])
	binary.LittleEndian.PutUint32(buf[offVersion:], indexVersion)
	binary.LittleEndian.PutUint64(buf[offIndexID:], indexID)
	binary.LittleEndian.PutUint32(buf[offFlags:], FlagRebuild)
	binary.LittleEndian.PutUint32(buf[offUIDValidity:], uidValidity)
	binary.LittleEndian.PutUint32(buf[offNextUID:], 1)

	return buf
}

// header is a thin, bounds-checked view over the live header bytes of an
// open mapping. It never retains the slice across a remap; callers fetch a
// fresh view after any dirty-mmap refresh (see mmap.go).
type header struct {
	buf []byte // exactly headerSize bytes, aliasing the mapping
}

func (h header) IndexID() uint64    { return binary.LittleEndian.Uint64(h.buf[offIndexID:]) }
func (h header) Flags() uint32      { return binary.LittleEndian.Uint32(h.buf[offFlags:]) }
func (h header) CacheFields() uint32 {
	return binary.LittleEndian.Uint32(h.buf[offCacheFields:])
}
func (h header) UIDValidity() uint32 {
	return binary.LittleEndian.Uint32(h.buf[offUIDValidity:])
}
func (h header) NextUID() uint32       { return binary.LittleEndian.Uint32(h.buf[offNextUID:]) }
func (h header) MessagesCount() uint32 {
	return binary.LittleEndian.Uint32(h.buf[offMessagesCount:])
}
func (h header) SeenMessagesCount() uint32 {
	return binary.LittleEndian.Uint32(h.buf[offSeenMessagesCount:])
}
func (h header) DeletedMessagesCount() uint32 {
	return binary.LittleEndian.Uint32(h.buf[offDeletedMessagesCount:])
}
func (h header) FirstUnseenUIDLowwater() uint32 {
	return binary.LittleEndian.Uint32(h.buf[offFirstUnseenUIDLowwater:])
}
func (h header) FirstDeletedUIDLowwater() uint32 {
	return binary.LittleEndian.Uint32(h.buf[offFirstDeletedUIDLowwater:])
}
func (h header) FirstHolePosition() uint64 {
	return binary.LittleEndian.Uint64(h.buf[offFirstHolePosition:])
}
func (h header) FirstHoleRecords() uint32 {
	return binary.LittleEndian.Uint32(h.buf[offFirstHoleRecords:])
}
func (h header) LastNonrecentUID() uint32 {
	return binary.LittleEndian.Uint32(h.buf[offLastNonrecentUID:])
}

func (h header) SetFlags(v uint32)      { binary.LittleEndian.PutUint32(h.buf[offFlags:], v) }
func (h header) SetCacheFields(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[offCacheFields:], v)
}
func (h header) SetUIDValidity(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[offUIDValidity:], v)
}
func (h header) SetNextUID(v uint32) { binary.LittleEndian.PutUint32(h.buf[offNextUID:], v) }
func (h header) SetMessagesCount(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[offMessagesCount:], v)
}
func (h header) SetSeenMessagesCount(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[offSeenMessagesCount:], v)
}
func (h header) SetDeletedMessagesCount(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[offDeletedMessagesCount:], v)
}
func (h header) SetFirstUnseenUIDLowwater(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[offFirstUnseenUIDLowwater:], v)
}
func (h header) SetFirstDeletedUIDLowwater(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[offFirstDeletedUIDLowwater:], v)
}
func (h header) SetFirstHolePosition(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[offFirstHolePosition:], v)
}
func (h header) SetFirstHoleRecords(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[offFirstHoleRecords:], v)
}
func (h header) SetLastNonrecentUID(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[offLastNonrecentUID:], v)
}

func (h header) SetIndexID(v uint64) { binary.LittleEndian.PutUint64(h.buf[offIndexID:], v) }
