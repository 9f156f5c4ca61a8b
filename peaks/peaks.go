// Package peaks extracts spectral landmark peaks from a scaled surface, per
// spec.md §4.4.
package peaks

import (
	"sort"

	"github.com/cwbudde/algo-fprint/config"
	"github.com/cwbudde/algo-fprint/fperr"
	"github.com/cwbudde/algo-fprint/scale"
)

// Peak is a local maximum in the scaled surface, matching spec.md's Peak
// entity. Strength equals the base surface value at (T, F).
type Peak struct {
	T        int
	F        int
	Strength float64
}

// Thresholds computes a per-frame noise-floor-plus-margin threshold theta(t)
// from the base surface's band median, per spec.md §4.4.
func Thresholds(base *scale.Spec, marginDB float64) []float64 {
	theta := make([]float64, base.T)
	row := make([]float64, base.Fp)
	for t := 0; t < base.T; t++ {
		copy(row, base.Val[t*base.Fp:t*base.Fp+base.Fp])
		theta[t] = median(row) + marginDB
	}
	return theta
}

func median(xs []float64) float64 {
	tmp := append([]float64(nil), xs...)
	sort.Float64s(tmp)
	n := len(tmp)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return tmp[n/2]
	}
	return (tmp[n/2-1] + tmp[n/2]) / 2
}

// isLocalMax reports whether (t,f) is strictly greater than every cell in
// its neighborhood rectangle on the detection surface, ignoring out-of-range
// cells, per spec.md §4.4.
func isLocalMax(det *scale.Spec, t, f, neighDT, neighDF int) bool {
	v := det.At(t, f)
	for dt := -neighDT; dt <= neighDT; dt++ {
		tt := t + dt
		if tt < 0 || tt >= det.T {
			continue
		}
		for df := -neighDF; df <= neighDF; df++ {
			ff := f + df
			if ff < 0 || ff >= det.Fp {
				continue
			}
			if dt == 0 && df == 0 {
				continue
			}
			if det.At(tt, ff) >= v {
				return false
			}
		}
	}
	return true
}

type candidate struct {
	f        int
	strength float64 // base surface value
}

// Extract runs thresholding, 2-D local-maximum candidate detection,
// base-surface confirmation, and per-frame NMS with density control, per
// spec.md §4.4. Returns peaks sorted by (t, f) ascending; an empty result is
// *fperr.Error{Kind: NoPeaks}.
func Extract(surfaces scale.Surfaces, cfg config.FeatureCfg) ([]Peak, error) {
	det, base := surfaces.Det, surfaces.Base
	theta := Thresholds(base, cfg.SNRMarginDB)

	var peaks []Peak
	for t := 0; t < det.T; t++ {
		var confirmed []candidate
		for f := 0; f < det.Fp; f++ {
			if !isLocalMax(det, t, f, cfg.NeighDT, cfg.NeighDF) {
				continue
			}
			if base.At(t, f) < theta[t] {
				continue
			}
			confirmed = append(confirmed, candidate{f: f, strength: base.At(t, f)})
		}

		frame := selectFrame(confirmed, cfg)
		for _, c := range frame {
			peaks = append(peaks, Peak{T: t, F: c.f, Strength: c.strength})
		}
	}

	if len(peaks) == 0 {
		return nil, fperr.New(fperr.NoPeaks, "no peaks survived extraction")
	}

	sort.Slice(peaks, func(i, j int) bool {
		if peaks[i].T != peaks[j].T {
			return peaks[i].T < peaks[j].T
		}
		return peaks[i].F < peaks[j].F
	})
	return peaks, nil
}

// selectFrame applies per-frame NMS (greedy by descending strength, minimum
// frequency separation) then density control: caps at MaxPeaksPerFrame, and
// backfills from next-strongest rejected candidates (ignoring separation) if
// fewer than MinPeaksPerFrame survive.
func selectFrame(confirmed []candidate, cfg config.FeatureCfg) []candidate {
	if len(confirmed) == 0 {
		return nil
	}
	ranked := append([]candidate(nil), confirmed...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].strength != ranked[j].strength {
			return ranked[i].strength > ranked[j].strength
		}
		return ranked[i].f < ranked[j].f
	})

	var accepted []candidate
	var rejected []candidate
	for _, c := range ranked {
		if len(accepted) >= cfg.MaxPeaksPerFrame {
			rejected = append(rejected, c)
			continue
		}
		ok := true
		for _, a := range accepted {
			sep := a.f - c.f
			if sep < 0 {
				sep = -sep
			}
			if sep < cfg.NMSMinFreqSep {
				ok = false
				break
			}
		}
		if ok {
			accepted = append(accepted, c)
		} else {
			rejected = append(rejected, c)
		}
	}

	if len(accepted) < cfg.MinPeaksPerFrame {
		for _, c := range rejected {
			if len(accepted) >= cfg.MinPeaksPerFrame || len(accepted) >= cfg.MaxPeaksPerFrame {
				break
			}
			accepted = append(accepted, c)
		}
	}
	return accepted
}
