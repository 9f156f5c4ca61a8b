// Package filekv is a disk-backed sharded append-only KV. Its file layout,
// durability, and compaction mechanics are deliberately minimal: spec.md §1
// treats the KV engine's internals as an external collaborator, so this is a
// reference backing, not a production storage engine.
//
// Layout: one flat file per shard, holding a sequence of
// [key uvarint][vallen uvarint][value bytes] records. Opening a shard
// replays its file to rebuild an in-memory value cache; PutAppend
// writes a new record and appends the value to the in-memory cache so Get
// never re-reads the file. A sentinel file holds the shard count so
// reopening with a mismatched count fails, per spec.md §6.
package filekv

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/cwbudde/algo-fprint/kv"
)

// Store is a disk-backed sharded KV.
type Store struct {
	dir    string
	mode   kv.Mode
	shards int

	mu    sync.RWMutex
	cache []map[uint64][]byte // len == shards+1, last is reserved (TrackMeta)
	files []*os.File          // append handles, nil in ReadOnly mode
	locks []*os.File          // flock handles
}

func shardPath(dir string, shard int) string {
	return filepath.Join(dir, fmt.Sprintf("shard_%04d.fpkv", shard))
}

func headerPath(dir string) string { return filepath.Join(dir, "HEADER") }

// Open opens or creates a sharded store at dir. Reopening with a different
// shard count than the one recorded in the store's header fails with a
// KvOpenError, per spec.md §6.
func Open(dir string, mode kv.Mode, shards int) (*Store, error) {
	if shards < 1 {
		return nil, kv.ErrOpen("shards must be >= 1")
	}
	if mode == kv.Create {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, kv.ErrOpen("%v", err)
		}
		if err := writeHeader(dir, shards); err != nil {
			return nil, kv.ErrOpen("%v", err)
		}
	} else {
		storedShards, err := readHeader(dir)
		if err != nil {
			return nil, kv.ErrOpen("%v", err)
		}
		if storedShards != shards {
			return nil, kv.ErrOpen("store has %d shards, opened with %d", storedShards, shards)
		}
	}

	s := &Store{
		dir:    dir,
		mode:   mode,
		shards: shards,
		cache:  make([]map[uint64][]byte, shards+1),
		files:  make([]*os.File, shards+1),
		locks:  make([]*os.File, shards+1),
	}

	for i := 0; i <= shards; i++ {
		m, f, lock, err := openShardFile(dir, i, mode)
		if err != nil {
			return nil, kv.ErrOpen("shard %d: %v", i, err)
		}
		s.cache[i] = m
		s.files[i] = f
		s.locks[i] = lock
	}
	return s, nil
}

func writeHeader(dir string, shards int) error {
	return os.WriteFile(headerPath(dir), []byte(fmt.Sprintf("%d\n", shards)), 0o644)
}

func readHeader(dir string) (int, error) {
	b, err := os.ReadFile(headerPath(dir))
	if err != nil {
		return 0, err
	}
	var n int
	if _, err := fmt.Sscanf(string(b), "%d\n", &n); err != nil {
		return 0, fmt.Errorf("corrupt header: %v", err)
	}
	return n, nil
}

func openShardFile(dir string, shard int, mode kv.Mode) (map[uint64][]byte, *os.File, *os.File, error) {
	path := shardPath(dir, shard)
	m := make(map[uint64][]byte)

	rf, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := replay(rf, m); err != nil {
		rf.Close()
		return nil, nil, nil, err
	}
	rf.Close()

	if mode == kv.ReadOnly {
		return m, nil, nil, nil
	}

	wf, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := unix.Flock(int(wf.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		wf.Close()
		return nil, nil, nil, fmt.Errorf("shard %d is locked by another writer: %v", shard, err)
	}
	return m, wf, wf, nil
}

func replay(f *os.File, into map[uint64][]byte) error {
	r := bufio.NewReader(f)
	for {
		key, val, err := readRecord(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		into[key] = append(into[key], val...)
	}
}

func readRecord(r *bufio.Reader) (key uint64, val []byte, err error) {
	key, err = binary.ReadUvarint(r)
	if err != nil {
		return 0, nil, err
	}
	vlen, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, nil, io.ErrUnexpectedEOF
	}
	val = make([]byte, vlen)
	if _, err := io.ReadFull(r, val); err != nil {
		return 0, nil, io.ErrUnexpectedEOF
	}
	return key, val, nil
}

func appendRecord(w io.Writer, key uint64, val []byte) error {
	var hdr [2 * binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], key)
	n += binary.PutUvarint(hdr[n:], uint64(len(val)))
	if _, err := w.Write(hdr[:n]); err != nil {
		return err
	}
	_, err := w.Write(val)
	return err
}

func (s *Store) Shards() int { return s.shards }

func (s *Store) Get(shard int, key uint64) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if shard < 0 || shard >= s.shards {
		return nil, false, kv.ErrRead("shard %d out of range [0,%d)", shard, s.shards)
	}
	v, ok := s.cache[shard][key]
	if !ok {
		return nil, false, nil
	}
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
	if s.files[shard] == nil {
		return kv.ErrWrite("store opened read-only")
	}
	if err := appendRecord(s.files[shard], key, value); err != nil {
		return kv.ErrWrite("%v", err)
	}
	s.cache[shard][key] = append(s.cache[shard][key], value...)
	return nil
}

func (s *Store) BulkMerge(shard int, it kv.Iterator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if shard < 0 || shard >= s.shards {
		return kv.ErrMerge("shard %d out of range [0,%d)", shard, s.shards)
	}
	if s.files[shard] == nil {
		return kv.ErrMerge("store opened read-only")
	}

	path := shardPath(s.dir, shard)
	tmpPath := path + ".merging"
	tf, err := os.Create(tmpPath)
	if err != nil {
		return kv.ErrMerge("%v", err)
	}

	next := make(map[uint64][]byte)
	for {
		e, ok, err := it.Next()
		if err != nil {
			tf.Close()
			os.Remove(tmpPath)
			return kv.ErrMerge("%v", err)
		}
		if !ok {
			break
		}
		if err := appendRecord(tf, e.Key, e.Value); err != nil {
			tf.Close()
			os.Remove(tmpPath)
			return kv.ErrMerge("%v", err)
		}
		next[e.Key] = append(next[e.Key], e.Value...)
	}
	if err := tf.Close(); err != nil {
		os.Remove(tmpPath)
		return kv.ErrMerge("%v", err)
	}

	s.files[shard].Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return kv.ErrMerge("%v", err)
	}
	wf, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return kv.ErrMerge("%v", err)
	}
	s.files[shard] = wf
	s.cache[shard] = next
	return nil
}

func (s *Store) FinalizeShards() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.files {
		if f == nil {
			continue
		}
		if err := f.Sync(); err != nil {
			return kv.ErrWrite("%v", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f != nil {
			f.Close()
		}
	}
	return nil
}

func (s *Store) GetTrackMeta(trackID uint64) (kv.TrackMeta, bool, error) {
	v, ok, err := s.Get(s.shards, trackID)
	if err != nil || !ok {
		return kv.TrackMeta{}, ok, err
	}
	m, ok := kv.UnmarshalTrackMeta(v)
	if !ok {
		return kv.TrackMeta{}, false, kv.ErrRead("corrupt track meta record for track %d", trackID)
	}
	return m, true, nil
}

func (s *Store) PutTrackMeta(trackID uint64, meta kv.TrackMeta) error {
	// TrackMeta is written once per track (spec.md §3), so a plain append of
	// the full record is safe: GetTrackMeta always reads the latest append.
	return s.replaceTrackMeta(trackID, kv.MarshalTrackMeta(meta))
}

func (s *Store) replaceTrackMeta(trackID uint64, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files[s.shards] == nil {
		return kv.ErrWrite("store opened read-only")
	}
	if err := appendRecord(s.files[s.shards], trackID, record); err != nil {
		return kv.ErrWrite("%v", err)
	}
	// TrackMeta is a last-write-wins record, not a delta log: overwrite
	// rather than concatenate, unlike landmark postings.
	s.cache[s.shards][trackID] = record
	return nil
}
