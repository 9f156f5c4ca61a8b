package pairing

import (
	"testing"

	"github.com/cwbudde/algo-fprint/config"
	"github.com/cwbudde/algo-fprint/peaks"
)

func TestPairWithinWindow(t *testing.T) {
	pks := []peaks.Peak{
		{T: 0, F: 10, Strength: 5},
		{T: 5, F: 20, Strength: 4},
		{T: 100, F: 30, Strength: 3}, // out of the dt_max window
	}
	cfg := config.PairingCfg{DtMin: 1, DtMax: 10, DBin: 1, KMax: 3}

	pairs := Pair(pks, cfg, 8, false)
	if len(pairs) != 1 {
		t.Fatalf("Pair = %+v, want exactly 1 in-window pair", pairs)
	}
	if pairs[0].Anchor.T != 0 || pairs[0].Target.T != 5 {
		t.Errorf("Pair()[0] = %+v, want anchor@0 target@5", pairs[0])
	}
}

func TestPairRespectsKMax(t *testing.T) {
	pks := []peaks.Peak{{T: 0, F: 0, Strength: 1}}
	for i := 1; i <= 5; i++ {
		pks = append(pks, peaks.Peak{T: i, F: i, Strength: float64(i)})
	}
	cfg := config.PairingCfg{DtMin: 1, DtMax: 10, DBin: 1, KMax: 2}

	pairs := Pair(pks, cfg, 8, false)
	var fromAnchor0 int
	for _, p := range pairs {
		if p.Anchor.T == 0 {
			fromAnchor0++
		}
	}
	if fromAnchor0 != 2 {
		t.Errorf("anchor@0 produced %d pairs, want k_max=2", fromAnchor0)
	}
}

func TestPairDropsOverflowingDtBin(t *testing.T) {
	pks := []peaks.Peak{
		{T: 0, F: 0, Strength: 1},
		{T: 100, F: 1, Strength: 1},
	}
	// dt_bits=2 => max dt_bin = 3; dt=100 with dt_bin(DBin=1) of 100 overflows.
	cfg := config.PairingCfg{DtMin: 1, DtMax: 200, DBin: 1, KMax: 3}

	pairs := Pair(pks, cfg, 2, false)
	if len(pairs) != 0 {
		t.Errorf("Pair() = %+v, want the overflowing dt_bin pair dropped, not clamped", pairs)
	}
}

func TestPairEmptyInput(t *testing.T) {
	cfg := config.DefaultPairingCfg()
	if pairs := Pair(nil, cfg, 8, false); pairs != nil {
		t.Errorf("Pair(nil) = %+v, want nil", pairs)
	}
}

func TestPairHistogramWeightedPrefersRareDelta(t *testing.T) {
	// An anchor at F=0 followed by six stronger targets at df=5 (a comb line)
	// and one target at df=11 (rare); the weighted path should prefer the rare
	// delta once the comb line dominates the histogram. Every later peak also
	// acts as an anchor, so only the pairs from the anchor at T=0 are checked.
	var pks []peaks.Peak
	pks = append(pks, peaks.Peak{T: 0, F: 0, Strength: 1})
	for i := 1; i <= 6; i++ {
		pks = append(pks, peaks.Peak{T: i, F: 5, Strength: 10})
	}
	pks = append(pks, peaks.Peak{T: 7, F: 11, Strength: 9})

	cfg := config.PairingCfg{DtMin: 1, DtMax: 10, DBin: 1, KMax: 1}
	all := Pair(pks, cfg, 8, true)
	var pairs []Pair
	for _, p := range all {
		if p.Anchor.T == 0 {
			pairs = append(pairs, p)
		}
	}
	if len(pairs) != 1 {
		t.Fatalf("anchor@0 pairs = %+v, want exactly 1 pair (k_max=1)", pairs)
	}
	if pairs[0].Target.F != 11 {
		t.Errorf("histogram-weighted pairing picked F=%d, want the rare delta F=11", pairs[0].Target.F)
	}
}
