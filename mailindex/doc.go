// Package mailindex implements a persistent, memory-mapped mail index: a
// per-mailbox on-disk data structure mapping a monotonically increasing UID
// and a dense sequence number to a compact metadata record for each message.
//
// The index coordinates three auxiliary subsystems that are injected as
// interfaces ([DataStore], [UIDHash], [ModLog]) rather than built in: an
// append-only variable-length data store, a persistent UID->offset hash
// accelerator, and a modification-change journal. The index file itself is a
// fixed header followed by a dense array of fixed-size records, accessed
// in-place through a memory mapping.
//
// Concurrency is per-process, cooperating with other processes only through
// advisory file locks: an [Index] handle is either UNLOCK, SHARED or
// EXCLUSIVE, and SHARED -> EXCLUSIVE upgrades are forbidden by contract (drop
// to UNLOCK and reacquire instead). Crash consistency relies on header flags
// (FSCK, REBUILD, COMPRESS, ...) that persist a "needs recovery" decision
// across process exit; there is no in-place partial recovery of records.
package mailindex
