// Package signal conditions raw decoded PCM into the mono, resampled signal
// the spectral stages require, per spec.md §4.1.
package signal

import (
	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"

	"github.com/cwbudde/algo-fprint/dsp"
	"github.com/cwbudde/algo-fprint/fperr"
)

// PCM is mono audio at a declared rate, matching spec.md's PCM entity.
type PCM struct {
	Samples []float64
	SR      int
}

// Side, when requested, carries (L-R)/2 alongside the conditioned mid signal.
// It is produced for external collaborators and unused by the core.
type Side struct {
	Samples []float64
}

// Options controls signal conditioning.
type Options struct {
	TargetSR   int
	CutoffHz   float64
	KeepSide   bool
	HighpassQ  float64
	LowpassQ   float64
}

const defaultQ = 0.707 // Butterworth Q, matching the teacher's NewLowpass callers.

// Condition downmixes, DC-blocks, anti-alias filters, and resamples raw
// decoded channels into a PCM at opts.TargetSR. Downmix is mid = (L+R)/2;
// if opts.KeepSide, side = (L-R)/2 is also returned (unused by the core).
//
// Failure modes: empty input -> EmptyAudio; unsupported resample ratio ->
// ResampleError.
func Condition(channels [][]float64, inputSR int, opts Options) (PCM, *Side, error) {
	if len(channels) == 0 || len(channels[0]) == 0 {
		return PCM{}, nil, fperr.New(fperr.EmptyAudio, "no samples")
	}

	mid := downmixMid(channels)
	var side *Side
	if opts.KeepSide && len(channels) >= 2 {
		side = &Side{Samples: downmixSide(channels[0], channels[1])}
	}

	hq := opts.HighpassQ
	if hq <= 0 {
		hq = defaultQ
	}
	mid = highpass(mid, opts.CutoffHz, float64(inputSR), hq)

	if inputSR != opts.TargetSR {
		lq := opts.LowpassQ
		if lq <= 0 {
			lq = defaultQ
		}
		nyquistTarget := float64(opts.TargetSR) / 2
		if nyquistTarget < float64(inputSR)/2 {
			mid = lowpass(mid, nyquistTarget*0.9, float64(inputSR), lq)
		}

		r, err := dspresample.NewForRates(
			float64(inputSR),
			float64(opts.TargetSR),
			dspresample.WithQuality(dspresample.QualityBest),
		)
		if err != nil {
			return PCM{}, nil, fperr.New(fperr.ResampleError, "%v", err)
		}
		mid = r.Process(mid)
	}

	return PCM{Samples: mid, SR: opts.TargetSR}, side, nil
}

func downmixMid(channels [][]float64) []float64 {
	if len(channels) == 1 {
		out := make([]float64, len(channels[0]))
		copy(out, channels[0])
		return out
	}
	n := len(channels[0])
	for _, c := range channels[1:] {
		if len(c) < n {
			n = len(c)
		}
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for _, c := range channels {
			sum += c[i]
		}
		out[i] = sum / float64(len(channels))
	}
	return out
}

func downmixSide(l, r []float64) []float64 {
	n := len(l)
	if len(r) < n {
		n = len(r)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = (l[i] - r[i]) / 2
	}
	return out
}

func highpass(in []float64, cutoff, sr, q float64) []float64 {
	if cutoff <= 0 {
		return in
	}
	f := dsp.NewHighpass(cutoff, sr, q)
	out := make([]float64, len(in))
	for i, s := range in {
		out[i] = dsp.FlushDenormals(f.Process(s))
	}
	return out
}

func lowpass(in []float64, cutoff, sr, q float64) []float64 {
	if cutoff <= 0 || cutoff >= sr/2 {
		return in
	}
	f := dsp.NewLowpass(cutoff, sr, q)
	out := make([]float64, len(in))
	for i, s := range in {
		out[i] = dsp.FlushDenormals(f.Process(s))
	}
	return out
}
