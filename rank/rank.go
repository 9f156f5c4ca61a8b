// Package rank turns decoded posting matches into a scored identification
// decision: offset-bin voting, coverage and entropy gating, and a monotonic
// confidence calibration, per spec.md §4.8.
package rank

import (
	"math"
	"sort"

	"github.com/cwbudde/algo-fprint/config"
)

// Vote identifies one (candidate track, coarse offset bin) bucket.
type Vote struct {
	TrackID uint64
	OffBin  int64
}

// Tally accumulates votes for one query. OffBin is the quantized time
// alignment between a query anchor and a matched corpus anchor; raw (pre-
// quantization) offsets are kept per bucket so compactness can be judged
// without losing the bucket's coarse-grained identity.
type Tally struct {
	votes        map[Vote]int
	contributors map[Vote]map[uint64]struct{}
	rawOffsets   map[Vote][]int64
	queryAnchors map[uint64]struct{}
}

// NewTally returns an empty vote tally for a single query.
func NewTally() *Tally {
	return &Tally{
		votes:        make(map[Vote]int),
		contributors: make(map[Vote]map[uint64]struct{}),
		rawOffsets:   make(map[Vote][]int64),
		queryAnchors: make(map[uint64]struct{}),
	}
}

// Add registers one match: a query anchor at queryAnchorTime matched a
// posting for trackID at rawOffset (matched time minus query time), binned
// to offBin by the caller's pairing dt_bin step.
func (t *Tally) Add(trackID uint64, offBin, rawOffset int64, queryAnchorTime uint64) {
	v := Vote{TrackID: trackID, OffBin: offBin}
	t.votes[v]++
	if t.contributors[v] == nil {
		t.contributors[v] = make(map[uint64]struct{})
	}
	t.contributors[v][queryAnchorTime] = struct{}{}
	t.rawOffsets[v] = append(t.rawOffsets[v], rawOffset)
	t.queryAnchors[queryAnchorTime] = struct{}{}
}

// QueryAnchorCount returns the number of distinct query anchors seen,
// the denominator for Coverage.
func (t *Tally) QueryAnchorCount() int { return len(t.queryAnchors) }

// Coverage is the fraction of distinct query anchors that contributed a
// vote to bucket v.
func (t *Tally) Coverage(v Vote) float64 {
	if len(t.queryAnchors) == 0 {
		return 0
	}
	return float64(len(t.contributors[v])) / float64(len(t.queryAnchors))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// betterVote reports whether candidate beats current under the winner
// selection order: largest vote count, then smaller |off_bin|, then smaller
// track_id.
func betterVote(candVotes, curVotes int, cand, cur Vote) bool {
	if candVotes != curVotes {
		return candVotes > curVotes
	}
	ca, cb := abs64(cand.OffBin), abs64(cur.OffBin)
	if ca != cb {
		return ca < cb
	}
	return cand.TrackID < cur.TrackID
}

// TopWinner selects the highest-voted bucket, deterministic under map
// iteration order because betterVote defines a strict total order.
func (t *Tally) TopWinner() (Vote, int, bool) {
	var best Vote
	bestVotes := 0
	found := false
	for v, c := range t.votes {
		if !found || betterVote(c, bestVotes, v, best) {
			best, bestVotes, found = v, c, true
		}
	}
	return best, bestVotes, found
}

// WindowEntropy computes the Shannon entropy (bits) of the vote mass for
// trackID across off_bins within windowBins of center, normalized to that
// local distribution. A sharply peaked alignment has low entropy; an
// alignment spread evenly across many candidate offsets (consistent with a
// spurious match) has high entropy.
func (t *Tally) WindowEntropy(trackID uint64, center int64, windowBins int) float64 {
	counts := make(map[int64]int)
	total := 0
	for v, c := range t.votes {
		if v.TrackID != trackID {
			continue
		}
		if abs64(v.OffBin-center) > int64(windowBins) {
			continue
		}
		counts[v.OffBin] += c
		total += c
	}
	if total == 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

// offsetIQR returns the interquartile range of the raw (pre-bin) offsets
// that contributed to v, a compactness signal independent of bin width.
func (t *Tally) offsetIQR(v Vote) float64 {
	offs := t.rawOffsets[v]
	if len(offs) < 4 {
		return 0
	}
	sorted := append([]int64(nil), offs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	return q3 - q1
}

func percentile(sorted []int64, p float64) float64 {
	if len(sorted) == 1 {
		return float64(sorted[0])
	}
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return float64(sorted[lo])
	}
	frac := pos - float64(lo)
	return float64(sorted[lo])*(1-frac) + float64(sorted[hi])*frac
}

// CalibrateConfidence folds vote strength, coverage, and entropy into a
// single [0,1) score, monotonically increasing in votes and coverage and
// monotonically decreasing in entropy, so a caller comparing two Outcomes
// never sees strength invert relative to its inputs. Offset compactness
// (IQR) is reported on Outcome alongside this score but does not enter the
// calibration itself.
func CalibrateConfidence(votes int, coverage, entropy float64) float64 {
	raw := float64(votes) * coverage / (1 + entropy)
	return raw / (raw + 1)
}

// Outcome is the result of scoring one candidate bucket against the rank
// gates.
type Outcome struct {
	Match      bool
	TrackID    uint64
	OffBin     int64
	Votes      int
	Coverage   float64
	Entropy    float64
	IQR        float64
	Confidence float64
	Reason     string
}

// Decide applies the coverage and entropy gates to the top-voted bucket and
// returns the tagged Match/NoMatch outcome, per spec.md §4.8.
func Decide(t *Tally, cfg config.RankCfg) Outcome {
	winner, votes, ok := t.TopWinner()
	if !ok {
		return Outcome{Match: false, Reason: "no_votes"}
	}

	coverage := t.Coverage(winner)
	entropy := t.WindowEntropy(winner.TrackID, winner.OffBin, cfg.EntropyWindowBins)
	iqr := t.offsetIQR(winner)
	confidence := CalibrateConfidence(votes, coverage, entropy)

	out := Outcome{
		TrackID:    winner.TrackID,
		OffBin:     winner.OffBin,
		Votes:      votes,
		Coverage:   coverage,
		Entropy:    entropy,
		IQR:        iqr,
		Confidence: confidence,
	}

	if coverage < cfg.MinCoverage {
		out.Reason = "low_coverage"
		return out
	}
	if entropy > cfg.MaxEntropy {
		out.Reason = "high_entropy"
		return out
	}
	out.Match = true
	return out
}
