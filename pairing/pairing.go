// Package pairing selects anchor/target peak pairs and quantizes their time
// delta, per spec.md §4.5.
package pairing

import (
	"sort"

	"github.com/cwbudde/algo-fprint/config"
	"github.com/cwbudde/algo-fprint/peaks"
)

// Pair is one anchor/target landmark pairing with its quantized delta.
type Pair struct {
	Anchor peaks.Peak
	Target peaks.Peak
	DtBin  uint32
}

// deltaFreqHistogram builds the absolute-delta-f histogram over the whole
// track, used by the histogram-weighted ranking path to suppress hot comb
// lines, per spec.md §4.5.
func deltaFreqHistogram(pks []peaks.Peak, maxDf int) []int {
	h := make([]int, maxDf+1)
	for i := range pks {
		for j := range pks {
			if i == j {
				continue
			}
			d := pks[i].F - pks[j].F
			if d < 0 {
				d = -d
			}
			if d <= maxDf {
				h[d]++
			}
		}
	}
	return h
}

// Pair produces, for every anchor peak in sorted order, up to cfg.KMax
// target peaks within the forward window [dt_min, dt_max], per spec.md
// §4.5/§4.6's invariant |targets(a)| <= k_max.
func Pair(pks []peaks.Peak, cfg config.PairingCfg, dtBits int, histogramWeighted bool) []Pair {
	if len(pks) == 0 {
		return nil
	}

	var hist []int
	if histogramWeighted {
		maxDf := 0
		for _, p := range pks {
			if p.F > maxDf {
				maxDf = p.F
			}
		}
		hist = deltaFreqHistogram(pks, maxDf)
	}

	maxDtBin := uint32((1 << uint(dtBits)) - 1)

	var out []Pair
	for a := range pks {
		anchor := pks[a]
		var windowIdx []int
		for tIdx := a + 1; tIdx < len(pks); tIdx++ {
			dt := pks[tIdx].T - anchor.T
			if dt > cfg.DtMax {
				break
			}
			if dt < cfg.DtMin {
				continue
			}
			windowIdx = append(windowIdx, tIdx)
		}
		if len(windowIdx) == 0 {
			continue
		}

		sort.SliceStable(windowIdx, func(i, j int) bool {
			pi, pj := pks[windowIdx[i]], pks[windowIdx[j]]
			si, sj := rankScore(pi, anchor, hist), rankScore(pj, anchor, hist)
			if si != sj {
				return si > sj
			}
			di := absInt(pi.F - anchor.F)
			dj := absInt(pj.F - anchor.F)
			if di != dj {
				return di < dj
			}
			if pi.T != pj.T {
				return pi.T < pj.T
			}
			return pi.F < pj.F
		})

		n := cfg.KMax
		if n > len(windowIdx) {
			n = len(windowIdx)
		}
		for _, idx := range windowIdx[:n] {
			target := pks[idx]
			dt := target.T - anchor.T
			raw := float64(dt) / float64(cfg.DBin)
			rounded := roundHalfAwayFromZero(raw)
			if rounded < 0 {
				continue
			}
			if raw > float64(maxDtBin) {
				continue // drop, don't clamp: avoids spurious cap collisions.
			}
			out = append(out, Pair{Anchor: anchor, Target: target, DtBin: uint32(rounded)})
		}
	}
	return out
}

// rankScore is descending strength, or strength/(1+H[|df|]) for the
// histogram-weighted path.
func rankScore(p, anchor peaks.Peak, hist []int) float64 {
	if hist == nil {
		return p.Strength
	}
	df := absInt(p.F - anchor.F)
	if df >= len(hist) {
		return p.Strength
	}
	return p.Strength / (1 + float64(hist[df]))
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}
