package signal

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-fprint/fperr"
)

func sine(freq, sr float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / sr)
	}
	return out
}

func TestConditionEmptyAudio(t *testing.T) {
	_, _, err := Condition(nil, 16000, Options{TargetSR: 16000})
	if !fperr.Is(err, fperr.EmptyAudio) {
		t.Fatalf("Condition(nil) err = %v, want EmptyAudio", err)
	}
	_, _, err = Condition([][]float64{{}}, 16000, Options{TargetSR: 16000})
	if !fperr.Is(err, fperr.EmptyAudio) {
		t.Fatalf("Condition(empty channel) err = %v, want EmptyAudio", err)
	}
}

func TestConditionDownmixesStereo(t *testing.T) {
	n := 4096
	left := sine(440, 44100, n)
	right := make([]float64, n)
	for i := range right {
		right[i] = -left[i]
	}

	pcm, side, err := Condition([][]float64{left, right}, 44100, Options{TargetSR: 44100, KeepSide: true})
	if err != nil {
		t.Fatalf("Condition: %v", err)
	}
	if side == nil {
		t.Fatal("Condition with KeepSide=true returned nil side")
	}
	if len(pcm.Samples) != n {
		t.Errorf("len(pcm.Samples) = %d, want %d (no resample requested)", len(pcm.Samples), n)
	}
}

func TestConditionResamplesToTargetSR(t *testing.T) {
	n := 8192
	mono := sine(440, 44100, n)
	pcm, _, err := Condition([][]float64{mono}, 44100, Options{TargetSR: 16000})
	if err != nil {
		t.Fatalf("Condition: %v", err)
	}
	if pcm.SR != 16000 {
		t.Errorf("pcm.SR = %d, want 16000", pcm.SR)
	}
	wantLen := int(float64(n) * 16000 / 44100)
	if diff := len(pcm.Samples) - wantLen; diff < -10 || diff > 10 {
		t.Errorf("len(pcm.Samples) = %d, want close to %d", len(pcm.Samples), wantLen)
	}
}

func TestConditionMonoPassthroughPreservesShape(t *testing.T) {
	n := 2048
	mono := sine(1000, 16000, n)
	pcm, side, err := Condition([][]float64{mono}, 16000, Options{TargetSR: 16000})
	if err != nil {
		t.Fatalf("Condition: %v", err)
	}
	if side != nil {
		t.Error("Condition without KeepSide should not produce a side signal")
	}
	if len(pcm.Samples) != n {
		t.Errorf("len(pcm.Samples) = %d, want %d", len(pcm.Samples), n)
	}
}
