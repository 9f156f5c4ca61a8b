// Package fingerprint orchestrates the signal/stft/scale/peaks/pairing/
// postings/kv/rank stages into two operations: building a shard set from a
// corpus of tracks, and identifying a query clip against it. The worker-pool
// dispatch in BuildCorpus mirrors the teacher's
// cmd/piano-fit/optimize.go runOptimization: a fixed goroutine pool pulled
// from runtime.GOMAXPROCS(0), atomic progress counters, and a mutex-guarded
// shared report in place of the teacher's mutex-guarded best candidate.
package fingerprint

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc64"
	"math"
	"math/bits"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/cwbudde/algo-fprint/config"
	"github.com/cwbudde/algo-fprint/fperr"
	"github.com/cwbudde/algo-fprint/keylayout"
	"github.com/cwbudde/algo-fprint/kv"
	"github.com/cwbudde/algo-fprint/pairing"
	"github.com/cwbudde/algo-fprint/peaks"
	"github.com/cwbudde/algo-fprint/postings"
	"github.com/cwbudde/algo-fprint/rank"
	"github.com/cwbudde/algo-fprint/scale"
	"github.com/cwbudde/algo-fprint/signal"
	"github.com/cwbudde/algo-fprint/stft"
)

// LandmarkKey is one packed key at its anchor's absolute frame time.
type LandmarkKey struct {
	Key  keylayout.Key
	Time uint64
}

// ExtractResult is the full set of landmark keys produced for one track or
// query clip, plus the frame count of its spectrogram (used for TrackMeta).
type ExtractResult struct {
	Keys   []LandmarkKey
	Frames int
}

// shardField derives the key's self-describing shard bits from its (f_a,
// f_t, dt_bin) content, so that shard_for_key(key) = field<shard>(key) mod
// shards never depends on information outside the key itself.
func shardField(fa, ft, dtBin uint32, bits int) uint32 {
	if bits <= 0 {
		return 0
	}
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[0:4], fa)
	binary.LittleEndian.PutUint32(buf[4:8], ft)
	binary.LittleEndian.PutUint32(buf[8:12], dtBin)
	h := xxhash.Sum64(buf[:])
	return uint32(h) & uint32((uint64(1)<<uint(bits))-1)
}

// ExtractKeys runs the full analysis pipeline on conditioned PCM: STFT,
// scale/band/DoG, peak extraction, pairing, and key packing. pairing.Pair
// already drops any pair whose dt_bin overflows the layout's bits_dt budget
// (spec.md's "drop, don't clamp" rule), so every pair reaching Pack here
// carries a legal dt_bin; an f_a/f_t/shard/version overflow at this point
// means the key layout's bit budget is too small for the configured band and
// feature settings, which is a fatal misconfiguration per spec.md §7, not a
// per-pair condition to tolerate.
func ExtractKeys(pcm signal.PCM, cfg config.Config) (ExtractResult, error) {
	spec, err := stft.Transform(pcm.Samples, pcm.SR, cfg.Feature.FFT, cfg.Feature.Hop, cfg.Feature.Reassignment)
	if err != nil {
		return ExtractResult{}, err
	}

	scaled := scale.Scale(spec, cfg.Feature)
	banded := scale.BandCrop(scaled, spec.T, spec.K, spec.SR, spec.FFT, cfg.Feature.BandMinHz, cfg.Feature.BandMaxHz)
	banded.Unit = cfg.Feature.Unit
	scale.PercentileClip(banded, cfg.Feature.PercentileLo, cfg.Feature.PercentileHi)
	surfaces := scale.ApplyDoG(banded, cfg.Feature)

	pks, err := peaks.Extract(surfaces, cfg.Feature)
	if err != nil {
		return ExtractResult{}, err
	}

	pairs := pairing.Pair(pks, cfg.Pairing, cfg.Layout.BitsDT, cfg.Feature.HistogramWeighted)

	keys := make([]LandmarkKey, 0, len(pairs))
	for _, p := range pairs {
		fa := uint32(p.Anchor.F)
		ft := uint32(p.Target.F)
		shard := shardField(fa, ft, p.DtBin, cfg.Layout.BitsShard)
		key, err := keylayout.Pack(cfg.Layout, shard, uint32(cfg.Layout.Version), fa, ft, p.DtBin)
		if err != nil {
			return ExtractResult{}, err
		}
		keys = append(keys, LandmarkKey{Key: key, Time: uint64(p.Anchor.T)})
	}

	return ExtractResult{Keys: keys, Frames: spec.T}, nil
}

// quantizeOffset bins a raw frame offset by dbin using a signed floor, per
// spec.md §4.8 step 3 (off_bin = floor((t_db - t_q)/dbin)); offsets can be
// negative (query overlaps the track's start), unlike pairing's
// forward-only dt_bin quantization, which rounds instead.
func quantizeOffset(raw int64, dbin int) int64 {
	if dbin <= 0 {
		dbin = 1
	}
	return int64(math.Floor(float64(raw) / float64(dbin)))
}

var crc64Table = crc64.MakeTable(crc64.ISO)

// audioCRC64 fingerprints conditioned PCM for TrackMeta.AudioCRC64, grounded
// in the same "hash the decoded signal" idea as a file-hash fixture check,
// adapted from bytes-of-file to bytes-of-samples.
func audioCRC64(samples []float64) uint64 {
	buf := make([]byte, 8*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], math.Float64bits(s))
	}
	return crc64.Checksum(buf, crc64Table)
}

func bucketForLength(n int) int {
	if n <= 0 {
		return 0
	}
	return bits.Len(uint(n + 1))
}

// Warning is a structured build-time diagnostic, richer than a bare string
// so CLI and log output can group by track without parsing text.
type Warning struct {
	TrackPath string
	Kind      string
	Message   string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.TrackPath, w.Kind, w.Message)
}

// BuildReport summarizes one BuildCorpus (or a single BuildTrack) call.
type BuildReport struct {
	TracksIngested  int
	KeysTotal       int
	UniqueKeys      int
	HotKeyHistogram map[int]int
	Warnings        []Warning
}

func newBuildReport() *BuildReport {
	return &BuildReport{HotKeyHistogram: make(map[int]int)}
}

func (r *BuildReport) merge(other *BuildReport) {
	r.TracksIngested += other.TracksIngested
	r.KeysTotal += other.KeysTotal
	r.UniqueKeys += other.UniqueKeys
	for bucket, n := range other.HotKeyHistogram {
		r.HotKeyHistogram[bucket] += n
	}
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// TrackInput is one corpus entry: already-decoded, not-yet-conditioned PCM
// channels at their native rate, plus the identity under which to index it.
type TrackInput struct {
	TrackID  uint64
	Path     string
	Channels [][]float64
	SR       int
}

// BuildTrack conditions, extracts, and indexes one track, returning a report
// scoped to that track alone. A track that yields no frames or no peaks is
// recorded as a warning and skipped, not treated as fatal, so a corpus build
// can tolerate a handful of bad files.
func BuildTrack(store kv.KV, cfg config.Config, in TrackInput, sigOpts signal.Options) (*BuildReport, error) {
	report := newBuildReport()

	pcm, _, err := signal.Condition(in.Channels, in.SR, sigOpts)
	if err != nil {
		if fperr.Is(err, fperr.EmptyAudio) {
			report.Warnings = append(report.Warnings, Warning{TrackPath: in.Path, Kind: "empty_audio", Message: err.Error()})
			return report, nil
		}
		return nil, err
	}

	result, err := ExtractKeys(pcm, cfg)
	if err != nil {
		if fperr.Is(err, fperr.NoFrames) || fperr.Is(err, fperr.NoPeaks) {
			report.Warnings = append(report.Warnings, Warning{TrackPath: in.Path, Kind: "no_landmarks", Message: err.Error()})
			return report, nil
		}
		return nil, err
	}

	grouped := make(map[keylayout.Key][]uint64, len(result.Keys))
	for _, lk := range result.Keys {
		grouped[lk.Key] = append(grouped[lk.Key], lk.Time)
	}

	for key, times := range grouped {
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
		dedup := times[:0:0]
		for i, t := range times {
			if i == 0 || t != times[i-1] {
				dedup = append(dedup, t)
			}
		}
		if len(dedup) == 0 {
			continue
		}

		block, err := postings.EncodeBlock(in.TrackID, dedup)
		if err != nil {
			return nil, err
		}
		shard := kv.ShardForKey(cfg.Layout, key, store.Shards())
		if err := store.PutAppend(shard, uint64(key), block); err != nil {
			return nil, err
		}

		report.KeysTotal += len(dedup)
		report.UniqueKeys++
		report.HotKeyHistogram[bucketForLength(len(dedup))]++
	}

	meta := kv.TrackMeta{
		TrackID:          in.TrackID,
		SR:               pcm.SR,
		FFT:              cfg.Feature.FFT,
		Hop:              cfg.Feature.Hop,
		Frames:           result.Frames,
		AudioCRC64:       audioCRC64(pcm.Samples),
		KeyLayoutVersion: cfg.LayoutVersion(),
	}
	if err := store.PutTrackMeta(in.TrackID, meta); err != nil {
		return nil, err
	}

	report.TracksIngested = 1
	return report, nil
}

// BuildCorpus indexes every track in inputs with a fixed-size worker pool,
// per spec.md §5: workers == 0 means runtime.GOMAXPROCS(0), progress is
// tracked with atomic counters, and per-track reports are merged into one
// shared BuildReport behind a mutex.
func BuildCorpus(ctx context.Context, store kv.KV, cfg config.Config, inputs []TrackInput, sigOpts signal.Options, workers int) (*BuildReport, error) {
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers < 1 {
		workers = 1
	}

	var (
		mu       sync.Mutex
		report   = newBuildReport()
		next     int64
		firstErr error
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					mu.Lock()
					if firstErr == nil {
						firstErr = ctx.Err()
					}
					mu.Unlock()
					return
				default:
				}

				idx := atomic.AddInt64(&next, 1) - 1
				if idx >= int64(len(inputs)) {
					return
				}

				trackReport, err := BuildTrack(store, cfg, inputs[idx], sigOpts)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("track %s: %w", inputs[idx].Path, err)
					}
				} else {
					report.merge(trackReport)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := store.FinalizeShards(); err != nil {
		return nil, err
	}
	return report, nil
}

// Match is a successful identification.
type Match struct {
	TrackID       uint64
	OffsetSeconds float64
	Score         float64
}

// IdentifyResult is the tagged Match/NoMatch decision from spec.md §4.8.
type IdentifyResult struct {
	Matched bool
	Match   Match
	Reason  string
}

// IdentifyOptions controls query-side signal conditioning.
type IdentifyOptions struct {
	Signal signal.Options
}

// Identify conditions a query clip, extracts its landmark keys, looks each
// up in store, accumulates offset votes per candidate track, and applies the
// coverage/entropy gates from spec.md §4.8. ctx cancellation or deadline is
// honored between key lookups, returning *fperr.Error{Kind: Timeout}.
func Identify(ctx context.Context, store kv.KV, cfg config.Config, channels [][]float64, inputSR int, opts IdentifyOptions) (IdentifyResult, error) {
	pcm, _, err := signal.Condition(channels, inputSR, opts.Signal)
	if err != nil {
		return IdentifyResult{}, err
	}

	result, err := ExtractKeys(pcm, cfg)
	if err != nil {
		return IdentifyResult{}, err
	}

	tally := rank.NewTally()
	wantVersion := cfg.LayoutVersion()

	for _, lk := range result.Keys {
		select {
		case <-ctx.Done():
			return IdentifyResult{}, fperr.New(fperr.Timeout, "identify deadline exceeded after %d/%d keys", tally.QueryAnchorCount(), len(result.Keys))
		default:
		}

		shard := kv.ShardForKey(cfg.Layout, lk.Key, store.Shards())
		raw, ok, err := store.Get(shard, uint64(lk.Key))
		if err != nil {
			return IdentifyResult{}, err
		}
		if !ok {
			continue
		}

		anchors, decErr := postings.Decode(raw)
		for _, a := range anchors {
			meta, ok, merr := store.GetTrackMeta(a.TrackID)
			if merr != nil {
				return IdentifyResult{}, merr
			}
			if !ok {
				continue
			}
			// A track built under a different KeyLayoutVersion can still
			// collide on a raw key by chance; per spec.md §7/§8 this is
			// fatal and strict, not a per-track skip, so it aborts before
			// any further votes accumulate.
			if meta.KeyLayoutVersion != wantVersion {
				return IdentifyResult{}, fperr.New(fperr.ConfigMismatch, "track %d was indexed with layout version %d, query uses %d", a.TrackID, meta.KeyLayoutVersion, wantVersion)
			}
			rawOffset := int64(a.Time) - int64(lk.Time)
			offBin := quantizeOffset(rawOffset, cfg.Pairing.DBin)
			tally.Add(a.TrackID, offBin, rawOffset, lk.Time)
		}
		_ = decErr // a truncated tail still yields the anchors decoded before it, per spec.md §8 S6
	}

	outcome := rank.Decide(tally, cfg.Rank)
	if !outcome.Match {
		return IdentifyResult{Matched: false, Reason: outcome.Reason}, nil
	}

	// sec = off_bin * delta_bin_frames * hop / sr.
	offsetSeconds := float64(outcome.OffBin) * float64(cfg.Pairing.DBin) * float64(cfg.Feature.Hop) / float64(cfg.Feature.TargetSR)
	return IdentifyResult{
		Matched: true,
		Match: Match{
			TrackID:       outcome.TrackID,
			OffsetSeconds: offsetSeconds,
			Score:         outcome.Confidence,
		},
	}, nil
}
