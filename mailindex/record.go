package mailindex

import "encoding/binary"

// Record field byte offsets, within a single recordSize-byte slot.
const (
	recOffUID         = 0  // uint32
	recOffMsgFlags     = 4  // uint32
	recOffCachedFields = 8  // uint32 (bitset of Field* constants)
	recOffDataSize     = 12 // uint32
	recOffDataPos      = 16 // uint64
)

// record is a bounds-checked view over one recordSize-byte slot of the live
// mapping. Like header, it must not be retained across a remap.
type record struct {
	buf []byte // exactly recordSize bytes, aliasing the mapping
}

// recordAt returns a view over the record at the given zero-based slot index
// within data (the full mapping, header included). It does not validate that
// index is within the live record count; callers do that against
// header.MessagesCount / the mapping length.
func recordAt(data []byte, index uint32) record {
	start := headerSize + int(index)*recordSize
	return record{buf: data[start : start+recordSize]}
}

func (r record) UID() uint32         { return binary.LittleEndian.Uint32(r.buf[recOffUID:]) }
func (r record) MsgFlags() uint32    { return binary.LittleEndian.Uint32(r.buf[recOffMsgFlags:]) }
func (r record) CachedFields() uint32 {
	return binary.LittleEndian.Uint32(r.buf[recOffCachedFields:])
}
func (r record) DataSize() uint32 { return binary.LittleEndian.Uint32(r.buf[recOffDataSize:]) }
func (r record) DataPos() uint64  { return binary.LittleEndian.Uint64(r.buf[recOffDataPos:]) }

// IsTombstone reports whether this slot has been expunged (§4.6): a
// tombstone keeps its slot but zeroes the uid in place rather than shifting
// later records down.
func (r record) IsTombstone() bool { return r.UID() == 0 }

func (r record) SetUID(v uint32) { binary.LittleEndian.PutUint32(r.buf[recOffUID:], v) }
func (r record) SetMsgFlags(v uint32) {
	binary.LittleEndian.PutUint32(r.buf[recOffMsgFlags:], v)
}
func (r record) SetCachedFields(v uint32) {
	binary.LittleEndian.PutUint32(r.buf[recOffCachedFields:], v)
}
func (r record) SetDataSize(v uint32) { binary.LittleEndian.PutUint32(r.buf[recOffDataSize:], v) }
func (r record) SetDataPos(v uint64)  { binary.LittleEndian.PutUint64(r.buf[recOffDataPos:], v) }

// HasFlag reports whether all bits in mask are set in msg_flags.
func (r record) HasFlag(mask uint32) bool { return r.MsgFlags()&mask == mask }

// clear zeroes the entire slot, turning a live record into a tombstone and
// dropping any cached field bits / data pointer it held.
func (r record) clear() {
	for i := range r.buf {
		r.buf[i] = 0
	}
}
