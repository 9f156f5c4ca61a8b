// Package memkv is an in-memory implementation of kv.KV, used by the default
// test suite and by ephemeral identify-only sessions.
package memkv

import (
	"sync"

	"github.com/cwbudde/algo-fprint/kv"
)

// Store is a concurrency-safe, in-memory sharded KV.
type Store struct {
	mu     sync.RWMutex
	shards int
	data   []map[uint64][]byte // len(data) == shards+1; the last slot is reserved for TrackMeta
}

// New creates an empty in-memory store with the given shard count.
func New(shards int) *Store {
	data := make([]map[uint64][]byte, shards+1)
	for i := range data {
		data[i] = make(map[uint64][]byte)
	}
	return &Store{shards: shards, data: data}
}

func (s *Store) Shards() int { return s.shards }

func (s *Store) Get(shard int, key uint64) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if shard < 0 || shard >= s.shards {
		return nil, false, kv.ErrRead("shard %d out of range [0,%d)", shard, s.shards)
	}
	v, ok := s.data[shard][key]
	if !ok {
		return nil, false, nil
	}
	// Return a copy so callers cannot mutate stored bytes, matching the
	// append-only semantics of a real backing store.
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Store) PutAppend(shard int, key uint64, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if shard < 0 || shard >= s.shards {
		return kv.ErrWrite("shard %d out of range [0,%d)", shard, s.shards)
	}
	existing := s.data[shard][key]
	merged := make([]byte, len(existing)+len(value))
	copy(merged, existing)
	copy(merged[len(existing):], value)
	s.data[shard][key] = merged
	return nil
}

func (s *Store) BulkMerge(shard int, it kv.Iterator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if shard < 0 || shard >= s.shards {
		return kv.ErrMerge("shard %d out of range [0,%d)", shard, s.shards)
	}
	next := make(map[uint64][]byte)
	for {
		e, ok, err := it.Next()
		if err != nil {
			return kv.ErrMerge("%v", err)
		}
		if !ok {
			break
		}
		next[e.Key] = append(next[e.Key], e.Value...)
	}
	s.data[shard] = next
	return nil
}

func (s *Store) FinalizeShards() error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) GetTrackMeta(trackID uint64) (kv.TrackMeta, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[s.shards][trackID]
	if !ok {
		return kv.TrackMeta{}, false, nil
	}
	m, ok := kv.UnmarshalTrackMeta(v)
	if !ok {
		return kv.TrackMeta{}, false, kv.ErrRead("corrupt track meta record for track %d", trackID)
	}
	return m, true, nil
}

func (s *Store) PutTrackMeta(trackID uint64, meta kv.TrackMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.shards][trackID] = kv.MarshalTrackMeta(meta)
	return nil
}
