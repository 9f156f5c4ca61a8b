// Package stft computes a framed magnitude spectrogram from conditioned PCM,
// with an optional time-frequency reassignment pass, per spec.md §4.2.
package stft

import (
	"math"

	"github.com/cwbudde/algo-fprint/dsp"
	"github.com/cwbudde/algo-fprint/fperr"
)

// Spec is the output magnitude time-frequency grid, laid out row-major as
// Mag[t*K+f], matching spec.md's STFTSpec entity.
type Spec struct {
	Mag  []float64 // T*K, row-major over time
	SR   int
	FFT  int
	Hop  int
	T    int
	K    int
}

func (s *Spec) at(t, f int) float64 { return s.Mag[t*s.K+f] }

// hann returns a length-n Hann window.
func hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := 0; i < n; i++ {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// timeRampWindow returns win[i] * (i - center), used for the reassignment
// time-derivative STFT.
func timeRampWindow(win []float64) []float64 {
	n := len(win)
	center := float64(n-1) / 2
	out := make([]float64, n)
	for i, w := range win {
		out[i] = w * (float64(i) - center)
	}
	return out
}

// freqDerivWindow returns the discrete centered derivative of win, used for
// the reassignment frequency-derivative STFT.
func freqDerivWindow(win []float64) []float64 {
	n := len(win)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		lo, hi := i-1, i+1
		var a, b float64
		if lo >= 0 {
			a = win[lo]
		}
		if hi < n {
			b = win[hi]
		}
		out[i] = (b - a) / 2
	}
	return out
}

// Transform computes a magnitude spectrogram from mono PCM, per spec.md
// §4.2. Frames beyond the last full window are discarded; T==0 yields
// *fperr.Error{Kind: NoFrames}.
//
// When reassign is true, the output is the reassigned magnitude: energy from
// each analysis bin is redistributed to the frequency bin nearest its
// instantaneous-frequency estimate (derived from the standard and
// frequency-derivative window STFTs), preserving total per-frame energy.
// Energy is moved along frequency only; the time-ramp window STFT is computed
// but no energy is moved across frames. This
// is the one convention spec.md §9 asks implementations to pin; it must not
// be changed without bumping the config layout version.
func Transform(samples []float64, sr, fft, hop int, reassign bool) (*Spec, error) {
	n := len(samples)
	t := 0
	if n >= fft {
		t = 1 + (n-fft)/hop
	}
	k := fft/2 + 1

	if t == 0 {
		return nil, fperr.New(fperr.NoFrames, "need >= %d samples at hop %d, got %d", fft, hop, n)
	}

	plan, err := getFFTPlan(fft)
	if err != nil {
		return nil, err
	}

	win := hann(fft)
	spec := &Spec{Mag: make([]float64, t*k), SR: sr, FFT: fft, Hop: hop, T: t, K: k}

	if !reassign {
		buf := make([]float64, fft)
		out := make([]complex128, k)
		for fr := 0; fr < t; fr++ {
			start := fr * hop
			for i := 0; i < fft; i++ {
				buf[i] = samples[start+i] * win[i]
			}
			if err := plan.forward(out, buf); err != nil {
				return nil, err
			}
			row := spec.Mag[fr*k : fr*k+k]
			for f := 0; f < k; f++ {
				row[f] = dsp.FlushDenormals(cmplxAbs(out[f]))
			}
		}
		return spec, nil
	}

	twin := timeRampWindow(win)
	dwin := freqDerivWindow(win)

	bufX := make([]float64, fft)
	bufT := make([]float64, fft)
	bufD := make([]float64, fft)
	outX := make([]complex128, k)
	outT := make([]complex128, k)
	outD := make([]complex128, k)

	const eps = 1e-12
	for fr := 0; fr < t; fr++ {
		start := fr * hop
		for i := 0; i < fft; i++ {
			s := samples[start+i]
			bufX[i] = s * win[i]
			bufT[i] = s * twin[i]
			bufD[i] = s * dwin[i]
		}
		if err := plan.forward(outX, bufX); err != nil {
			return nil, err
		}
		if err := plan.forward(outT, bufT); err != nil {
			return nil, err
		}
		if err := plan.forward(outD, bufD); err != nil {
			return nil, err
		}

		row := spec.Mag[fr*k : fr*k+k]
		for f := 0; f < k; f++ {
			x := outX[f]
			mag := cmplxAbs(x)
			energy := mag * mag
			if mag < eps {
				continue
			}
			// Instantaneous frequency correction in bins:
			// domega = -Im(Xd/X) * fft / (2*pi). A reassigned estimate more
			// than one bin from its analysis bin is pinned back to it
			// instead of applied, guarding against the spurious jumps
			// reassignment produces near spectral discontinuities.
			ratioD := outD[f] / x
			domega := -imag(ratioD) * float64(fft) / (2 * math.Pi)
			shift := int(math.Round(domega))
			newBin := f
			if shift >= -1 && shift <= 1 {
				newBin = f + shift
			}
			if newBin < 0 {
				newBin = 0
			}
			if newBin >= k {
				newBin = k - 1
			}
			row[newBin] = dsp.FlushDenormals(math.Sqrt(row[newBin]*row[newBin] + energy))
		}
	}

	return spec, nil
}

func cmplxAbs(c complex128) float64 {
	re, im := real(c), imag(c)
	return math.Sqrt(re*re + im*im)
}
