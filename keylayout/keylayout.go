// Package keylayout packs and unpacks landmark keys per spec.md §4.6.
package keylayout

import (
	"encoding/binary"

	"github.com/cwbudde/algo-fprint/config"
	"github.com/cwbudde/algo-fprint/fperr"
)

// Key is the packed landmark key as a logical 64-bit integer. Shard
// assignment must operate on this logical value, never on the serialized
// bytes, to stay endian-independent per spec.md §9.
type Key uint64

// Fields is the unpacked (f_a, f_t, dt_bin) tuple plus the layout-carried
// shard/version fields.
type Fields struct {
	Shard   uint32
	Version uint32
	FA      uint32
	FT      uint32
	DtBin   uint32
}

func maskFor(bits int) uint64 {
	if bits <= 0 {
		return 0
	}
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(bits)) - 1
}

// Pack packs (fa, ft, dtBin) into the low bits of the layout's total width,
// with version and then shard packed directly above f_a, giving the order
// [shard?][ver?][f_a][f_t][dt_bin], most significant first. The fields are
// contiguous from bit 0; when their bit sum is below total_bits, the bits
// above the shard field stay zero rather than the shard being aligned to the
// top of the width. Any field that overflows its budget returns
// *fperr.Error{Kind: NumericOverflow}.
func Pack(l config.KeyLayout, shard, version, fa, ft, dtBin uint32) (Key, error) {
	if uint64(fa) > maskFor(l.BitsFA) {
		return 0, fperr.New(fperr.NumericOverflow, "f_a=%d exceeds %d bits", fa, l.BitsFA)
	}
	if uint64(ft) > maskFor(l.BitsFT) {
		return 0, fperr.New(fperr.NumericOverflow, "f_t=%d exceeds %d bits", ft, l.BitsFT)
	}
	if uint64(dtBin) > maskFor(l.BitsDT) {
		return 0, fperr.New(fperr.NumericOverflow, "dt_bin=%d exceeds %d bits", dtBin, l.BitsDT)
	}
	if l.BitsShard > 0 && uint64(shard) > maskFor(l.BitsShard) {
		return 0, fperr.New(fperr.NumericOverflow, "shard=%d exceeds %d bits", shard, l.BitsShard)
	}
	if l.BitsVer > 0 && uint64(version) > maskFor(l.BitsVer) {
		return 0, fperr.New(fperr.NumericOverflow, "version=%d exceeds %d bits", version, l.BitsVer)
	}

	var v uint64
	shift := 0
	v |= uint64(dtBin) << shift
	shift += l.BitsDT
	v |= uint64(ft) << shift
	shift += l.BitsFT
	v |= uint64(fa) << shift
	shift += l.BitsFA
	if l.BitsVer > 0 {
		v |= uint64(version) << shift
		shift += l.BitsVer
	}
	if l.BitsShard > 0 {
		v |= uint64(shard) << shift
	}

	if l.TotalBits < 64 && v > maskFor(l.TotalBits) {
		return 0, fperr.New(fperr.NumericOverflow, "packed key exceeds total_bits=%d", l.TotalBits)
	}
	return Key(v), nil
}

// Unpack reverses Pack, per the round-trip law in spec.md §8.
func Unpack(l config.KeyLayout, k Key) Fields {
	v := uint64(k)
	shift := 0

	dtBin := uint32(v>>shift) & uint32(maskFor(l.BitsDT))
	shift += l.BitsDT
	ft := uint32(v>>shift) & uint32(maskFor(l.BitsFT))
	shift += l.BitsFT
	fa := uint32(v>>shift) & uint32(maskFor(l.BitsFA))
	shift += l.BitsFA

	var version, shard uint32
	if l.BitsVer > 0 {
		version = uint32(v>>shift) & uint32(maskFor(l.BitsVer))
		shift += l.BitsVer
	}
	if l.BitsShard > 0 {
		shard = uint32(v>>shift) & uint32(maskFor(l.BitsShard))
	}

	return Fields{Shard: shard, Version: version, FA: fa, FT: ft, DtBin: dtBin}
}

// FieldShard extracts just the shard field, per spec.md §4.7
// shard_for_key(key) = field<shard>(key) mod shards.
func FieldShard(l config.KeyLayout, k Key) uint32 {
	if l.BitsShard == 0 {
		return 0
	}
	shift := l.BitsDT + l.BitsFT + l.BitsFA + l.BitsVer
	return uint32(uint64(k)>>shift) & uint32(maskFor(l.BitsShard))
}

// Marshal serializes k to 16 raw bytes in the layout's declared endianness,
// zero-padding unused high bytes, per spec.md §6.
func Marshal(l config.KeyLayout, k Key) [16]byte {
	var out [16]byte
	var buf [8]byte
	if l.Endian == config.BigEndian {
		binary.BigEndian.PutUint64(buf[:], uint64(k))
		copy(out[8:], buf[:])
	} else {
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
		copy(out[:8], buf[:])
	}
	return out
}

// Unmarshal parses the 16-byte serialized form back into a Key.
func Unmarshal(l config.KeyLayout, b [16]byte) Key {
	if l.Endian == config.BigEndian {
		return Key(binary.BigEndian.Uint64(b[8:16]))
	}
	return Key(binary.LittleEndian.Uint64(b[0:8]))
}
