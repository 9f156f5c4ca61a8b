// Package postings encodes and decodes per-(key,track) anchor time lists as
// self-delimiting, delta-encoded varint blocks, per spec.md §4.7.
package postings

import (
	"encoding/binary"

	"github.com/cwbudde/algo-fprint/fperr"
)

// Anchor is one decoded (track, absolute time) pair.
type Anchor struct {
	TrackID uint64
	Time    uint64
}

// EncodeBlock serializes one posting block for a single (key, track): the
// track id, count, first absolute time, then strictly-positive deltas.
// times must be sorted strictly increasing and non-empty.
func EncodeBlock(trackID uint64, times []uint64) ([]byte, error) {
	if len(times) == 0 {
		return nil, fperr.New(fperr.InvalidArgument, "posting block requires n >= 1")
	}
	for i := 1; i < len(times); i++ {
		if times[i] <= times[i-1] {
			return nil, fperr.New(fperr.InvalidArgument, "times must be strictly increasing")
		}
	}

	buf := make([]byte, 0, 10*(len(times)+2))
	buf = appendUvarint(buf, trackID)
	buf = appendUvarint(buf, uint64(len(times)))
	buf = appendUvarint(buf, times[0])
	for i := 1; i < len(times); i++ {
		buf = appendUvarint(buf, times[i]-times[i-1])
	}
	return buf, nil
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// Decode parses the concatenation of one or more posting blocks, tolerating
// concatenation across appends per spec.md §4.7/§5. It returns every decoded
// anchor in order; a malformed or truncated block returns the anchors
// decoded so far plus *fperr.Error{Kind: IntegrityError}, matching scenario
// S6 in spec.md §8.
func Decode(data []byte) ([]Anchor, error) {
	var out []Anchor
	pos := 0
	for pos < len(data) {
		trackID, n1, ok := readUvarint(data[pos:])
		if !ok {
			return out, fperr.New(fperr.IntegrityError, "truncated track_id varint at offset %d", pos)
		}
		pos += n1

		count, n2, ok := readUvarint(data[pos:])
		if !ok {
			return out, fperr.New(fperr.IntegrityError, "truncated count varint at offset %d", pos)
		}
		pos += n2
		if count == 0 {
			return out, fperr.New(fperr.IntegrityError, "posting block has n=0 at offset %d", pos)
		}

		t0, n3, ok := readUvarint(data[pos:])
		if !ok {
			return out, fperr.New(fperr.IntegrityError, "truncated t0 varint at offset %d", pos)
		}
		pos += n3

		out = append(out, Anchor{TrackID: trackID, Time: t0})
		prev := t0
		for i := uint64(1); i < count; i++ {
			delta, n, ok := readUvarint(data[pos:])
			if !ok {
				return out, fperr.New(fperr.IntegrityError, "truncated delta varint at offset %d", pos)
			}
			pos += n
			if delta == 0 {
				return out, fperr.New(fperr.IntegrityError, "non-positive delta at offset %d", pos)
			}
			prev += delta
			out = append(out, Anchor{TrackID: trackID, Time: prev})
		}
	}
	return out, nil
}

func readUvarint(b []byte) (uint64, int, bool) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, 0, false
	}
	return v, n, true
}
