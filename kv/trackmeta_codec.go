package kv

import "encoding/binary"

const trackMetaSize = 8*6 + 4

// MarshalTrackMeta serializes a TrackMeta to a fixed-width binary record.
func MarshalTrackMeta(m TrackMeta) []byte {
	buf := make([]byte, trackMetaSize)
	binary.LittleEndian.PutUint64(buf[0:8], m.TrackID)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(int64(m.SR)))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(int64(m.FFT)))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(int64(m.Hop)))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(int64(m.Frames)))
	binary.LittleEndian.PutUint64(buf[40:48], m.AudioCRC64)
	binary.LittleEndian.PutUint32(buf[48:52], m.KeyLayoutVersion)
	return buf
}

// UnmarshalTrackMeta parses the fixed-width binary record produced by
// MarshalTrackMeta. ok is false if buf is the wrong length.
func UnmarshalTrackMeta(buf []byte) (TrackMeta, bool) {
	if len(buf) != trackMetaSize {
		return TrackMeta{}, false
	}
	return TrackMeta{
		TrackID:          binary.LittleEndian.Uint64(buf[0:8]),
		SR:               int(int64(binary.LittleEndian.Uint64(buf[8:16]))),
		FFT:              int(int64(binary.LittleEndian.Uint64(buf[16:24]))),
		Hop:              int(int64(binary.LittleEndian.Uint64(buf[24:32]))),
		Frames:           int(int64(binary.LittleEndian.Uint64(buf[32:40]))),
		AudioCRC64:       binary.LittleEndian.Uint64(buf[40:48]),
		KeyLayoutVersion: binary.LittleEndian.Uint32(buf[48:52]),
	}, true
}
