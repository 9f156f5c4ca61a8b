// Package scale maps STFT magnitude into a perceptual/compressed surface,
// crops it to a frequency band, clips outliers, and optionally runs a
// frequency-only Difference-of-Gaussians enhancement, per spec.md §4.3.
package scale

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-fprint/config"
	"github.com/cwbudde/algo-fprint/dsp"
	"github.com/cwbudde/algo-fprint/stft"
)

// Spec is a banded, scaled time-frequency surface, matching spec.md's
// ScaledSpec entity. Val is row-major over time: Val[t*Fp+f].
type Spec struct {
	Val   []float64
	T     int
	Fp    int
	F0Bin int
	Unit  config.ScaleUnit
}

func (s *Spec) At(t, f int) float64 { return s.Val[t*s.Fp+f] }
func (s *Spec) Set(t, f int, v float64) { s.Val[t*s.Fp+f] = v }

const logEps = 1e-8

// logDB applies 20*log10(max(eps, mag)) to every cell of a T*K spectrogram.
func logDB(mag []float64) []float64 {
	out := make([]float64, len(mag))
	for i, m := range mag {
		v := m
		if v < logEps {
			v = logEps
		}
		out[i] = 20 * math.Log10(v)
	}
	return out
}

// pcen applies Per-Channel Energy Normalization with fixed smoothing, gain,
// bias and exponent parameters for spec.md §4.3's "pcen_log_db" unit. The
// output is PCEN's root compression (E/M + delta)^r - delta^r; no logarithm
// is applied. The smoother runs independently per
// frequency bin across time, the conventional PCEN formulation.
func pcen(mag []float64, tFrames, k int, alpha, delta, r, eps float64) []float64 {
	out := make([]float64, len(mag))
	m := make([]float64, k) // running smoothed energy per bin
	for f := 0; f < k; f++ {
		m[f] = mag[f] * mag[f]
	}
	for t := 0; t < tFrames; t++ {
		row := mag[t*k : t*k+k]
		outRow := out[t*k : t*k+k]
		for f := 0; f < k; f++ {
			e := row[f] * row[f]
			m[f] = (1-alpha)*m[f] + alpha*e
			denom := math.Pow(m[f]+eps, 0.5) // alpha baked in via smoother only, root fixed at 0.5
			agc := e / denom
			v := math.Pow(agc+delta, r) - math.Pow(delta, r)
			outRow[f] = dsp.FlushDenormals(v)
		}
	}
	return out
}

// Scale converts raw STFT magnitude into the configured scale unit.
func Scale(s *stft.Spec, cfg config.FeatureCfg) []float64 {
	switch cfg.Unit {
	case config.UnitPCENLogDB:
		return pcen(s.Mag, s.T, s.K, cfg.PCENAlpha, cfg.PCENDelta, cfg.PCENR, cfg.PCENEps)
	default:
		return logDB(s.Mag)
	}
}

// BandCrop selects the contiguous bins whose center frequency falls in
// [bandMinHz, bandMaxHz], per spec.md §4.3.
func BandCrop(scaled []float64, tFrames, k, sr, fft int, bandMinHz, bandMaxHz float64) *Spec {
	binHz := float64(sr) / float64(fft)
	f0 := int(math.Ceil(bandMinHz / binHz))
	f1 := int(math.Floor(bandMaxHz / binHz))
	if f0 < 0 {
		f0 = 0
	}
	if f1 >= k {
		f1 = k - 1
	}
	fp := f1 - f0 + 1
	if fp < 1 {
		fp = 1
		f1 = f0
	}

	out := &Spec{Val: make([]float64, tFrames*fp), T: tFrames, Fp: fp, F0Bin: f0}
	for t := 0; t < tFrames; t++ {
		srcRow := scaled[t*k+f0 : t*k+f0+fp]
		copy(out.Val[t*fp:t*fp+fp], srcRow)
	}
	return out
}

// maxClipSamples bounds how many cells PercentileClip inspects directly; for
// larger grids it strides deterministically, per spec.md §4.3.
const maxClipSamples = 200000

// PercentileClip computes the pLo/pHi percentiles over all cells (using a
// fixed, deterministic stride when the grid is large) and clips values into
// [lo, hi] in place. It returns the computed bounds.
func PercentileClip(s *Spec, pLo, pHi float64) (lo, hi float64) {
	n := len(s.Val)
	if n == 0 {
		return 0, 0
	}
	stride := 1
	if n > maxClipSamples {
		stride = n / maxClipSamples
		if stride < 1 {
			stride = 1
		}
	}

	sample := make([]float64, 0, n/stride+1)
	for i := 0; i < n; i += stride {
		sample = append(sample, s.Val[i])
	}
	sort.Float64s(sample)

	lo = stat.Quantile(pLo/100, stat.Empirical, sample, nil)
	hi = stat.Quantile(pHi/100, stat.Empirical, sample, nil)
	if hi < lo {
		lo, hi = hi, lo
	}

	for i, v := range s.Val {
		if v < lo {
			s.Val[i] = lo
		} else if v > hi {
			s.Val[i] = hi
		}
	}
	return lo, hi
}

// Surfaces holds the detection and base surfaces that peak extraction reads,
// per spec.md §4.3/§4.4.
type Surfaces struct {
	Det  *Spec
	Base *Spec
}

// ApplyDoG blurs s along frequency only with two sigmas and returns
// (detection=G1-G2, base=G1). When cfg.DoGEnabled is false, both surfaces
// equal s unchanged.
func ApplyDoG(s *Spec, cfg config.FeatureCfg) Surfaces {
	if !cfg.DoGEnabled {
		return Surfaces{Det: s, Base: s}
	}
	g1 := gaussianBlurFreq(s, cfg.DoGSigma1)
	g2 := gaussianBlurFreq(s, cfg.DoGSigma2)
	det := &Spec{Val: make([]float64, len(s.Val)), T: s.T, Fp: s.Fp, F0Bin: s.F0Bin, Unit: s.Unit}
	for i := range det.Val {
		det.Val[i] = g1.Val[i] - g2.Val[i]
	}
	return Surfaces{Det: det, Base: g1}
}

// gaussianKernel returns a normalized 1-D Gaussian kernel truncated at
// ceil(3*sigma).
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	if radius < 1 {
		radius = 1
	}
	k := make([]float64, 2*radius+1)
	for i := -radius; i <= radius; i++ {
		k[i+radius] = math.Exp(-float64(i*i) / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// gaussianBlurFreq applies a separable Gaussian blur along the frequency axis
// only, with edge-clamped boundary handling.
func gaussianBlurFreq(s *Spec, sigma float64) *Spec {
	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2
	out := &Spec{Val: make([]float64, len(s.Val)), T: s.T, Fp: s.Fp, F0Bin: s.F0Bin, Unit: s.Unit}

	for t := 0; t < s.T; t++ {
		row := s.Val[t*s.Fp : t*s.Fp+s.Fp]
		outRow := out.Val[t*s.Fp : t*s.Fp+s.Fp]
		for f := 0; f < s.Fp; f++ {
			var acc float64
			for j, w := range kernel {
				src := f + j - radius
				if src < 0 {
					src = 0
				} else if src >= s.Fp {
					src = s.Fp - 1
				}
				acc += w * row[src]
			}
			outRow[f] = dsp.FlushDenormals(acc)
		}
	}
	return out
}
