// Package datastore implements the append-oriented variable-length field
// store a mailidx record's data_pos/data_size pair points into (spec §2.2):
// message location, header snapshots, envelope data and similar per-message
// blobs that don't fit the fixed-size index record.
package datastore

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sync"

	"github.com/maildeck/mailidx/pkg/fs"
)

// entryHeaderSize is the fixed framing around each stored blob: a field tag
// and payload length written before it, and a CRC32C over tag, length and
// payload written after it.
const entryHeaderSize = 1 + 4 + 4

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Store is a single append-only data file for one mailbox.
type Store struct {
	mu   sync.Mutex
	fsys fs.FS
	path string
	file fs.File

	size    uint64 // current end-of-file offset, next Append lands here
	deleted uint64 // bytes belonging to fields no live record references
}

// Open opens or creates the data store file at path.
func Open(fsys fs.FS, path string) (*Store, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("datastore: open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("datastore: stat: %w", err)
	}

	return &Store{
		fsys: fsys,
		path: path,
		file: f,
		size: uint64(fi.Size()),
	}, nil
}

// Append writes a new field blob at the end of the store and returns its
// position and size for storage in an index record.
func (s *Store) Append(field uint8, data []byte) (uint64, uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, entryHeaderSize+len(data))
	buf[0] = field
	binary.LittleEndian.PutUint32(buf[1:], uint32(len(data)))
	copy(buf[5:], data)
	crc := crc32.Checksum(buf[:5+len(data)], crcTable)
	binary.LittleEndian.PutUint32(buf[5+len(data):], crc)

	if _, err := s.file.Seek(int64(s.size), 0); err != nil {
		return 0, 0, fmt.Errorf("datastore: seek: %w", err)
	}

	n, err := s.file.Write(buf)
	if err != nil {
		return 0, 0, fmt.Errorf("datastore: write: %w", err)
	}
	if n != len(buf) {
		return 0, 0, fmt.Errorf("datastore: short write (%d of %d bytes)", n, len(buf))
	}

	pos := s.size
	s.size += uint64(len(buf))

	return pos, uint32(len(data)), nil
}

// Read returns the payload previously written at pos with the given size,
// verifying its checksum.
func (s *Store) Read(pos uint64, size uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, entryHeaderSize+int(size))

	if _, err := s.file.Seek(int64(pos), 0); err != nil {
		return nil, fmt.Errorf("datastore: seek: %w", err)
	}

	n, err := readFull(s.file, buf)
	if err != nil {
		return nil, fmt.Errorf("datastore: read at %d: %w", pos, err)
	}
	if n != len(buf) {
		return nil, fmt.Errorf("datastore: truncated entry at %d", pos)
	}

	wantSize := binary.LittleEndian.Uint32(buf[1:])
	if wantSize != size {
		return nil, fmt.Errorf("datastore: size mismatch at %d: record says %d, entry says %d", pos, size, wantSize)
	}

	gotCRC := binary.LittleEndian.Uint32(buf[5+size:])
	wantCRC := crc32.Checksum(buf[:5+size], crcTable)
	if gotCRC != wantCRC {
		return nil, fmt.Errorf("datastore: checksum mismatch at %d", pos)
	}

	payload := make([]byte, size)
	copy(payload, buf[5:5+size])

	return payload, nil
}

func readFull(f fs.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("short read")
		}
	}
	return total, nil
}

// MarkDeleted records that size bytes previously returned by Append are no
// longer referenced by any live record (the owning index record was
// expunged or its field was superseded). It does not reclaim the space;
// compaction happens via [Store.Reset] driven by the COMPRESS_DATA flag.
func (s *Store) MarkDeleted(size uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted += uint64(size)
}

// DeletedBytes returns the number of bytes marked deleted since the last
// Reset.
func (s *Store) DeletedBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted
}

// Reset truncates the store to empty, discarding all stored data.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.file.Truncate(0); err != nil {
		return fmt.Errorf("datastore: truncate: %w", err)
	}

	s.size = 0
	s.deleted = 0

	return nil
}

// Sync flushes buffered writes to stable storage.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Sync()
}

// Close closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
