package scale

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-fprint/config"
	"github.com/cwbudde/algo-fprint/stft"
)

func TestLogDBMonotonic(t *testing.T) {
	out := logDB([]float64{0, 0.001, 0.1, 1, 10})
	for i := 1; i < len(out); i++ {
		if out[i] <= out[i-1] {
			t.Errorf("logDB not monotonic at %d: %v", i, out)
		}
	}
}

func TestPCENNonNegative(t *testing.T) {
	mag := make([]float64, 4*8)
	for i := range mag {
		mag[i] = float64(i%5) * 0.1
	}
	out := pcen(mag, 4, 8, 0.98, 2.0, 0.5, 1e-6)
	for i, v := range out {
		if v < -1e-9 {
			t.Errorf("pcen[%d] = %f, want >= 0", i, v)
		}
	}
}

func TestBandCropSelectsRange(t *testing.T) {
	sr, fft := 16000, 1024
	k := fft/2 + 1
	tFrames := 3
	scaled := make([]float64, tFrames*k)
	for i := range scaled {
		scaled[i] = float64(i)
	}

	s := BandCrop(scaled, tFrames, k, sr, fft, 300, 5000)
	binHz := float64(sr) / float64(fft)
	wantF0 := int(math.Ceil(300 / binHz))
	wantF1 := int(math.Floor(5000 / binHz))
	if s.F0Bin != wantF0 {
		t.Errorf("F0Bin = %d, want %d", s.F0Bin, wantF0)
	}
	if s.Fp != wantF1-wantF0+1 {
		t.Errorf("Fp = %d, want %d", s.Fp, wantF1-wantF0+1)
	}
	if s.At(0, 0) != scaled[wantF0] {
		t.Errorf("At(0,0) = %f, want %f", s.At(0, 0), scaled[wantF0])
	}
}

func TestPercentileClipBounds(t *testing.T) {
	s := &Spec{T: 1, Fp: 100}
	s.Val = make([]float64, 100)
	for i := range s.Val {
		s.Val[i] = float64(i)
	}
	lo, hi := PercentileClip(s, 5, 95)
	if lo >= hi {
		t.Fatalf("PercentileClip lo=%f >= hi=%f", lo, hi)
	}
	for _, v := range s.Val {
		if v < lo || v > hi {
			t.Errorf("value %f outside clip bounds [%f,%f]", v, lo, hi)
		}
	}
}

func TestApplyDoGDisabledPassesThrough(t *testing.T) {
	s := &Spec{T: 2, Fp: 4, Val: []float64{1, 2, 3, 4, 5, 6, 7, 8}}
	cfg := config.DefaultFeatureCfg()
	cfg.DoGEnabled = false
	surfaces := ApplyDoG(s, cfg)
	if surfaces.Det != s || surfaces.Base != s {
		t.Error("ApplyDoG with DoGEnabled=false should return the input surface unchanged")
	}
}

func TestApplyDoGHighlightsNarrowPeak(t *testing.T) {
	fp := 21
	s := &Spec{T: 1, Fp: fp, Val: make([]float64, fp)}
	s.Val[fp/2] = 100 // a single narrow spike amid a flat floor

	cfg := config.DefaultFeatureCfg()
	cfg.DoGSigma1, cfg.DoGSigma2 = 1.0, 4.0
	surfaces := ApplyDoG(s, cfg)

	if surfaces.Det.At(0, fp/2) <= 0 {
		t.Errorf("DoG detection surface at the spike = %f, want > 0", surfaces.Det.At(0, fp/2))
	}
}

func TestScaleDispatchesOnUnit(t *testing.T) {
	spec := &stft.Spec{Mag: []float64{0.5, 1, 2, 4}, T: 2, K: 2}

	cfg := config.DefaultFeatureCfg()
	cfg.Unit = config.UnitLogDB
	logOut := Scale(spec, cfg)
	if len(logOut) != len(spec.Mag) {
		t.Fatalf("Scale(log-dB) length = %d, want %d", len(logOut), len(spec.Mag))
	}

	cfg.Unit = config.UnitPCENLogDB
	pcenOut := Scale(spec, cfg)
	if len(pcenOut) != len(spec.Mag) {
		t.Fatalf("Scale(pcen) length = %d, want %d", len(pcenOut), len(spec.Mag))
	}
}
