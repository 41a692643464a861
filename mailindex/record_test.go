package mailindex

import "testing"

func TestRecordAt_BoundsAndRoundTrip(t *testing.T) {
	data := make([]byte, headerSize+3*recordSize)

	r0 := recordAt(data, 0)
	r0.SetUID(42)
	r0.SetMsgFlags(MsgSeen | MsgDeleted)
	r0.SetDataSize(128)
	r0.SetDataPos(99)

	r1 := recordAt(data, 1)
	if !r1.IsTombstone() {
		t.Fatalf("freshly zeroed record should be a tombstone")
	}

	got := recordAt(data, 0)
	if got.UID() != 42 {
		t.Fatalf("UID() = %d, want 42", got.UID())
	}
	if !got.HasFlag(MsgSeen) {
		t.Fatalf("expected MsgSeen flag set")
	}
	if !got.HasFlag(MsgDeleted) {
		t.Fatalf("expected MsgDeleted flag set")
	}
	if got.DataSize() != 128 {
		t.Fatalf("DataSize() = %d, want 128", got.DataSize())
	}
	if got.DataPos() != 99 {
		t.Fatalf("DataPos() = %d, want 99", got.DataPos())
	}
}

func TestRecord_ClearMakesTombstone(t *testing.T) {
	data := make([]byte, headerSize+recordSize)
	r := recordAt(data, 0)
	r.SetUID(7)

	if r.IsTombstone() {
		t.Fatalf("record with uid=7 must not be a tombstone")
	}

	r.clear()

	if !r.IsTombstone() {
		t.Fatalf("cleared record must be a tombstone")
	}
}
