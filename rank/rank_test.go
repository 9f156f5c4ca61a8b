package rank

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-fprint/config"
)

func TestTopWinnerPicksHighestVotes(t *testing.T) {
	tally := NewTally()
	tally.Add(1, 10, 10, 100)
	tally.Add(1, 10, 10, 101)
	tally.Add(2, 20, 20, 100)

	winner, votes, ok := tally.TopWinner()
	if !ok {
		t.Fatal("TopWinner() ok=false")
	}
	if winner.TrackID != 1 || votes != 2 {
		t.Errorf("TopWinner() = %+v votes=%d, want TrackID=1 votes=2", winner, votes)
	}
}

func TestTopWinnerTieBreaksBySmallerOffsetThenTrackID(t *testing.T) {
	tally := NewTally()
	tally.Add(2, 50, 50, 1)
	tally.Add(1, 5, 5, 1)

	winner, _, _ := tally.TopWinner()
	if winner.TrackID != 1 || winner.OffBin != 5 {
		t.Errorf("TopWinner() = %+v, want the smaller |off_bin| bucket", winner)
	}
}

func TestCoverageFraction(t *testing.T) {
	tally := NewTally()
	tally.Add(1, 0, 0, 10)
	tally.Add(1, 0, 0, 20)
	tally.Add(2, 5, 5, 30)

	cov := tally.Coverage(Vote{TrackID: 1, OffBin: 0})
	if math.Abs(cov-2.0/3.0) > 1e-9 {
		t.Errorf("Coverage = %f, want 2/3", cov)
	}
}

func TestWindowEntropySharpVsSpread(t *testing.T) {
	sharp := NewTally()
	for i := 0; i < 10; i++ {
		sharp.Add(1, 5, 5, uint64(i))
	}
	spread := NewTally()
	for i := 0; i < 10; i++ {
		spread.Add(1, int64(i), int64(i), uint64(i))
	}

	hSharp := sharp.WindowEntropy(1, 5, 16)
	hSpread := spread.WindowEntropy(1, 5, 16)
	if hSharp != 0 {
		t.Errorf("sharp entropy = %f, want 0", hSharp)
	}
	if hSpread <= hSharp {
		t.Errorf("spread entropy %f should exceed sharp entropy %f", hSpread, hSharp)
	}
}

func TestCalibrateConfidenceMonotonic(t *testing.T) {
	base := CalibrateConfidence(5, 0.5, 1.0)

	if got := CalibrateConfidence(10, 0.5, 1.0); got <= base {
		t.Errorf("confidence did not increase with votes: %f vs %f", got, base)
	}
	if got := CalibrateConfidence(5, 0.9, 1.0); got <= base {
		t.Errorf("confidence did not increase with coverage: %f vs %f", got, base)
	}
	if got := CalibrateConfidence(5, 0.5, 2.0); got >= base {
		t.Errorf("confidence did not decrease with entropy: %f vs %f", got, base)
	}
	if base < 0 || base >= 1 {
		t.Errorf("confidence %f out of [0,1)", base)
	}
}

func TestDecideNoVotes(t *testing.T) {
	out := Decide(NewTally(), config.DefaultRankCfg())
	if out.Match {
		t.Error("Decide on an empty tally should not match")
	}
	if out.Reason == "" {
		t.Error("Decide on an empty tally should set a reason")
	}
}

func TestDecideGatesOnCoverage(t *testing.T) {
	cfg := config.DefaultRankCfg()
	cfg.MinCoverage = 0.9

	tally := NewTally()
	tally.Add(1, 0, 0, 1)
	for i := uint64(2); i <= 10; i++ {
		tally.queryAnchors[i] = struct{}{} // inflate the coverage denominator
	}

	out := Decide(tally, cfg)
	if out.Match {
		t.Error("Decide should reject low coverage")
	}
	if out.Reason != "low_coverage" {
		t.Errorf("Reason = %q", out.Reason)
	}
}

func TestDecideGatesOnEntropy(t *testing.T) {
	cfg := config.DefaultRankCfg()
	cfg.MaxEntropy = 0.01
	// Each of the 8 buckets holds one of 8 query anchors (coverage 1/8), so
	// the coverage gate is opened to let the entropy gate decide.
	cfg.MinCoverage = 0

	tally := NewTally()
	for i := 0; i < 8; i++ {
		tally.Add(1, int64(i), int64(i), uint64(i))
	}

	out := Decide(tally, cfg)
	if out.Match {
		t.Error("Decide should reject high entropy")
	}
	if out.Reason != "high_entropy" {
		t.Errorf("Reason = %q", out.Reason)
	}
}

func TestDecideMatches(t *testing.T) {
	cfg := config.DefaultRankCfg()
	tally := NewTally()
	for i := uint64(0); i < 20; i++ {
		tally.Add(1, 100, 100, i)
	}

	out := Decide(tally, cfg)
	if !out.Match {
		t.Fatalf("Decide should match a sharply peaked, fully-covered bucket: %+v", out)
	}
	if out.TrackID != 1 || out.OffBin != 100 {
		t.Errorf("Decide() = %+v", out)
	}
}

func TestOffsetIQRNeedsFourSamples(t *testing.T) {
	tally := NewTally()
	tally.Add(1, 0, 10, 1)
	tally.Add(1, 0, 20, 2)
	v := Vote{TrackID: 1, OffBin: 0}
	if got := tally.offsetIQR(v); got != 0 {
		t.Errorf("offsetIQR with <4 samples = %f, want 0", got)
	}

	tally.Add(1, 0, 30, 3)
	tally.Add(1, 0, 40, 4)
	if got := tally.offsetIQR(v); got <= 0 {
		t.Errorf("offsetIQR with 4 samples = %f, want > 0", got)
	}
}
