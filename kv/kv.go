// Package kv defines the sharded key/value collaborator contract the
// fingerprinting core depends on, per spec.md §6. Storage mechanics (file
// layout, durability, compaction) are the collaborator's concern; this
// package only fixes the interface and the reserved TrackMeta keyspace.
package kv

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/cwbudde/algo-fprint/config"
	"github.com/cwbudde/algo-fprint/fperr"
	"github.com/cwbudde/algo-fprint/keylayout"
)

// Mode selects how Open treats an existing store.
type Mode int

const (
	Create Mode = iota
	ReadWrite
	ReadOnly
)

// Entry is one (key, value) pair produced by a sorted iterator, used by
// BulkMerge.
type Entry struct {
	Key   uint64
	Value []byte
}

// Iterator is the opaque capability spec.md §9 describes: a pull-based
// cursor over heterogeneous backings (in-memory buffer, file, merged
// streams).
type Iterator interface {
	// Next returns the next entry; ok is false once exhausted.
	Next() (e Entry, ok bool, err error)
}

// sliceIterator adapts a pre-sorted slice to Iterator.
type sliceIterator struct {
	entries []Entry
	pos     int
}

// NewSliceIterator wraps a sorted slice of entries as an Iterator.
func NewSliceIterator(entries []Entry) Iterator {
	return &sliceIterator{entries: entries}
}

func (s *sliceIterator) Next() (Entry, bool, error) {
	if s.pos >= len(s.entries) {
		return Entry{}, false, nil
	}
	e := s.entries[s.pos]
	s.pos++
	return e, true, nil
}

// KV is the sharded key/value collaborator contract from spec.md §6.
type KV interface {
	// Get fetches the value at (shard, key); ok is false if absent.
	Get(shard int, key uint64) (value []byte, ok bool, err error)
	// PutAppend appends bytes to the value slot at (shard, key), atomic with
	// respect to concurrent readers.
	PutAppend(shard int, key uint64, value []byte) error
	// BulkMerge consumes a sorted stream of (key, bytes) and installs it as
	// the canonical state of shard, used to finalize after a build.
	BulkMerge(shard int, it Iterator) error
	// FinalizeShards persists any buffered state for durability.
	FinalizeShards() error
	// Close releases the handle.
	Close() error
	// Shards returns the shard count fixed at Open/Create time.
	Shards() int

	// GetTrackMeta and PutTrackMeta access the reserved keyspace, isolated
	// from packed landmark keys by a distinguished reserved shard index
	// (Shards()), per spec.md §4.7/§6.
	GetTrackMeta(trackID uint64) (meta TrackMeta, ok bool, err error)
	PutTrackMeta(trackID uint64, meta TrackMeta) error
}

// TrackMeta is the per-track descriptor persisted in the reserved keyspace,
// per spec.md §3/§6.
type TrackMeta struct {
	TrackID          uint64
	SR               int
	FFT              int
	Hop              int
	Frames           int
	AudioCRC64       uint64
	KeyLayoutVersion uint32
}

// reservedShard is the distinguished partition index TrackMeta lives in; it
// is never populated with landmark postings.
func reservedShard(shards int) int { return shards }

// ShardForKey implements spec.md §4.7's shard_for_key: field<shard>(key) mod
// shards when bits_shard > 0, else a stable non-cryptographic hash of the
// key's low bits. It operates on the logical key integer, never the
// serialized bytes, to stay endian-independent per spec.md §9.
func ShardForKey(layout config.KeyLayout, k keylayout.Key, shards int) int {
	if shards <= 0 {
		return 0
	}
	if layout.BitsShard > 0 {
		return int(keylayout.FieldShard(layout, k)) % shards
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(k))
	h := xxhash.Sum64(buf[:])
	return int(h % uint64(shards))
}

// ErrOpen wraps an opening failure as a KvOpenError.
func ErrOpen(format string, args ...any) error { return fperr.New(fperr.KvOpenError, format, args...) }

// ErrRead wraps a read failure as a KvReadError.
func ErrRead(format string, args ...any) error { return fperr.New(fperr.KvReadError, format, args...) }

// ErrWrite wraps a write failure as a KvWriteError.
func ErrWrite(format string, args ...any) error { return fperr.New(fperr.KvWriteError, format, args...) }

// ErrMerge wraps a bulk-merge failure as a KvMergeError.
func ErrMerge(format string, args ...any) error { return fperr.New(fperr.KvMergeError, format, args...) }
