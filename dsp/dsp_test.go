package dsp

import (
	"math"
	"testing"
)

func TestBiquadResetClearsState(t *testing.T) {
	b := NewLowpass(1000, 16000, 0.707)
	for i := 0; i < 10; i++ {
		b.Process(1)
	}
	b.Reset()
	if b.x1 != 0 || b.x2 != 0 || b.y1 != 0 || b.y2 != 0 {
		t.Error("Reset did not clear filter state")
	}
}

func TestLowpassAttenuatesHighFrequency(t *testing.T) {
	sr := 16000.0
	lp := NewLowpass(500, sr, 0.707)

	var energy float64
	for i := 0; i < 2000; i++ {
		v := lp.Process(sampleSine(6000, sr, i))
		if i > 200 { // skip filter settling
			energy += v * v
		}
	}
	if energy > 50 {
		t.Errorf("lowpass did not attenuate a 6kHz tone: residual energy %f", energy)
	}
}

func TestHighpassBlocksDC(t *testing.T) {
	hp := NewHighpass(40, 16000, 0.707)
	var last float64
	for i := 0; i < 4000; i++ {
		last = hp.Process(1) // constant DC input
	}
	if last > 0.01 {
		t.Errorf("highpass did not block DC: residual %f", last)
	}
}

func TestFlushDenormals(t *testing.T) {
	if FlushDenormals(1e-310) != 0 {
		t.Error("FlushDenormals did not flush a denormal value")
	}
	if FlushDenormals(1.5) != 1.5 {
		t.Error("FlushDenormals altered a normal value")
	}
}

func sampleSine(freq, sr float64, i int) float64 {
	return math.Sin(2 * math.Pi * freq * float64(i) / sr)
}
