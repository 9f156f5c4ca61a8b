package kv

import (
	"testing"

	"github.com/cwbudde/algo-fprint/config"
	"github.com/cwbudde/algo-fprint/keylayout"
)

func TestShardForKeyUsesEmbeddedField(t *testing.T) {
	l := config.DefaultKeyLayout()
	key, err := keylayout.Pack(l, 5, 1, 10, 20, 30)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if got := ShardForKey(l, key, 16); got != 5%16 {
		t.Errorf("ShardForKey = %d, want %d", got, 5%16)
	}
}

func TestShardForKeyFallsBackToHashWithoutShardBits(t *testing.T) {
	l := config.DefaultKeyLayout()
	l.BitsShard = 0
	key := keylayout.Key(0x1234)
	a := ShardForKey(l, key, 16)
	b := ShardForKey(l, key, 16)
	if a != b {
		t.Error("ShardForKey is not deterministic for the same key")
	}
	if a < 0 || a >= 16 {
		t.Errorf("ShardForKey = %d out of range [0,16)", a)
	}
}

func TestShardForKeyZeroShards(t *testing.T) {
	l := config.DefaultKeyLayout()
	if got := ShardForKey(l, keylayout.Key(1), 0); got != 0 {
		t.Errorf("ShardForKey with shards=0 = %d, want 0", got)
	}
}

func TestTrackMetaMarshalRoundTrip(t *testing.T) {
	m := TrackMeta{TrackID: 1, SR: 44100, FFT: 2048, Hop: 512, Frames: 12345, AudioCRC64: 0xabcdef, KeyLayoutVersion: 3}
	got, ok := UnmarshalTrackMeta(MarshalTrackMeta(m))
	if !ok || got != m {
		t.Errorf("UnmarshalTrackMeta(MarshalTrackMeta(m)) = %+v, ok=%v, want %+v", got, ok, m)
	}
}

func TestUnmarshalTrackMetaRejectsBadLength(t *testing.T) {
	if _, ok := UnmarshalTrackMeta([]byte{1, 2, 3}); ok {
		t.Error("UnmarshalTrackMeta accepted a too-short buffer")
	}
}
