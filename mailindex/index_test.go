package mailindex

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maildeck/mailidx/datastore"
	"github.com/maildeck/mailidx/modlog"
	"github.com/maildeck/mailidx/pkg/fs"
	"github.com/maildeck/mailidx/uidhash"
)

func testFactory(t *testing.T, filesys fs.FS) Factory {
	t.Helper()

	return func(dir string) (Subsystems, error) {
		store, err := datastore.Open(filesys, dir+"/data")
		if err != nil {
			return Subsystems{}, err
		}

		hash, err := uidhash.Open(dir + "/hash")
		if err != nil {
			return Subsystems{}, err
		}

		log, err := modlog.Open(dir + "/log")
		if err != nil {
			return Subsystems{}, err
		}

		return Subsystems{Store: store, Hash: hash, Log: log}, nil
	}
}

func openFresh(t *testing.T) (*Index, string) {
	t.Helper()

	dir := t.TempDir()
	filesys := fs.NewReal()

	idx, err := OpenOrCreate(filesys, dir, false, testFactory(t, filesys))
	require.NoError(t, err)

	return idx, dir
}

func TestOpenOrCreate_CreatesFreshMailbox(t *testing.T) {
	idx, _ := openFresh(t)
	defer idx.Close()

	require.NoError(t, idx.SetLock(Shared))
	defer idx.SetLock(Unlock)

	stats, err := idx.Stat()
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.MessagesCount)
	require.EqualValues(t, 1, stats.NextUID)
}

func TestAppend_AssignsMonotonicUIDsAndIncrementsCounters(t *testing.T) {
	idx, _ := openFresh(t)
	defer idx.Close()

	require.NoError(t, idx.SetLock(Exclusive))
	defer idx.SetLock(Unlock)

	rec1, err := idx.Append(MsgSeen)
	require.NoError(t, err)
	require.EqualValues(t, 1, rec1.UID)
	require.EqualValues(t, 1, rec1.Seq)

	rec2, err := idx.Append(0)
	require.NoError(t, err)
	require.EqualValues(t, 2, rec2.UID)
	require.EqualValues(t, 2, rec2.Seq)

	stats, err := idx.Stat()
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.MessagesCount)
	require.EqualValues(t, 1, stats.SeenMessagesCount)
	require.EqualValues(t, 3, stats.NextUID)
}

func TestExpunge_TombstonesInPlaceWithoutShifting(t *testing.T) {
	idx, _ := openFresh(t)
	defer idx.Close()

	require.NoError(t, idx.SetLock(Exclusive))
	defer idx.SetLock(Unlock)

	rec1, err := idx.Append(0)
	require.NoError(t, err)
	rec2, err := idx.Append(0)
	require.NoError(t, err)

	require.NoError(t, idx.Expunge(rec1, true))

	stats, err := idx.Stat()
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.MessagesCount)

	got, ok, err := idx.LookupUIDRange(rec2.UID, rec2.UID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec2.UID, got.UID)

	_, ok, err = idx.LookupUIDRange(rec1.UID, rec1.UID)
	require.NoError(t, err)
	require.False(t, ok, "tombstoned uid must not resolve")
}

func TestExpunge_RejectsDoubleExpunge(t *testing.T) {
	idx, _ := openFresh(t)
	defer idx.Close()

	require.NoError(t, idx.SetLock(Exclusive))
	defer idx.SetLock(Unlock)

	rec, err := idx.Append(0)
	require.NoError(t, err)

	require.NoError(t, idx.Expunge(rec, true))

	err = idx.Expunge(rec, true)
	require.ErrorIs(t, err, ErrAlreadyExpunged)
}

func TestExpunge_AppendsModLogEntryTaggedWithSeqAndUID(t *testing.T) {
	idx, dir := openFresh(t)

	require.NoError(t, idx.SetLock(Exclusive))

	_, err := idx.Append(0)
	require.NoError(t, err)
	rec2, err := idx.Append(0)
	require.NoError(t, err)

	require.NoError(t, idx.Expunge(rec2, true))
	require.NoError(t, idx.SetLock(Unlock))
	require.NoError(t, idx.Close())

	log, err := modlog.Open(dir + "/log")
	require.NoError(t, err)
	defer log.Close()

	entries, err := log.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "expunge", entries[0].Kind)
	require.EqualValues(t, 2, entries[0].Seq)
	require.EqualValues(t, 2, entries[0].UID)
	require.True(t, entries[0].External)
}

func TestSetFlags_UpdatesSeenAndDeletedCounters(t *testing.T) {
	idx, _ := openFresh(t)
	defer idx.Close()

	require.NoError(t, idx.SetLock(Exclusive))
	defer idx.SetLock(Unlock)

	rec, err := idx.Append(0)
	require.NoError(t, err)

	require.NoError(t, idx.SetFlags(rec, MsgSeen, true))

	stats, err := idx.Stat()
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.SeenMessagesCount)

	rec, ok, err := idx.LookupBySeq(rec.Seq)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, idx.SetFlags(rec, MsgSeen|MsgDeleted, true))

	stats, err = idx.Stat()
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.DeletedMessagesCount)
}

func TestSetFlags_AppendsModLogEntryForSingleBitTransition(t *testing.T) {
	idx, dir := openFresh(t)

	require.NoError(t, idx.SetLock(Exclusive))

	rec, err := idx.Append(0)
	require.NoError(t, err)

	require.NoError(t, idx.SetFlags(rec, MsgSeen|MsgDeleted, true))
	require.NoError(t, idx.SetLock(Unlock))
	require.NoError(t, idx.Close())

	log, err := modlog.Open(dir + "/log")
	require.NoError(t, err)
	defer log.Close()

	entries, err := log.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the highest-priority transition is logged")
	require.Equal(t, "flags", entries[0].Kind)
	require.EqualValues(t, 1, entries[0].Seq)
	require.EqualValues(t, 1, entries[0].UID)
	require.EqualValues(t, MsgSeen, entries[0].Bit)
	require.True(t, entries[0].NewValue)
	require.True(t, entries[0].External)
}

func TestLockContract_SharedToExclusiveForbidden(t *testing.T) {
	idx, _ := openFresh(t)
	defer idx.Close()

	require.NoError(t, idx.SetLock(Shared))
	defer idx.SetLock(Unlock)

	err := idx.SetLock(Exclusive)
	require.ErrorIs(t, err, ErrLockContract)
}

func TestReopen_PreservesMessages(t *testing.T) {
	idx, dir := openFresh(t)

	require.NoError(t, idx.SetLock(Exclusive))

	rec, err := idx.Append(MsgSeen)
	require.NoError(t, err)

	require.NoError(t, idx.SetLock(Unlock))
	require.NoError(t, idx.Close())

	filesys := fs.NewReal()

	idx2, err := OpenOrCreate(filesys, dir, false, testFactory(t, filesys))
	require.NoError(t, err)
	defer idx2.Close()

	require.NoError(t, idx2.SetLock(Shared))
	defer idx2.SetLock(Unlock)

	got, ok, err := idx2.LookupUIDRange(rec.UID, rec.UID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.UID, got.UID)
}
