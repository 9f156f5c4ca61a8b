// Command fpindex builds a sharded landmark index from a directory of WAV
// files, in the teacher's cmd/*/main.go style: standard flag parsing, a
// local die() helper for fatal errors.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cwbudde/algo-fprint/config"
	"github.com/cwbudde/algo-fprint/fingerprint"
	"github.com/cwbudde/algo-fprint/internal/obslog"
	"github.com/cwbudde/algo-fprint/internal/wavio"
	"github.com/cwbudde/algo-fprint/kv"
	"github.com/cwbudde/algo-fprint/kv/filekv"
	"github.com/cwbudde/algo-fprint/signal"
)

func main() {
	corpusDir := flag.String("corpus", "", "Directory of WAV files to index (required)")
	indexDir := flag.String("index", "", "Output directory for the sharded index (required)")
	configPath := flag.String("config", "", "Optional JSON config path; defaults to config.Default()")
	shards := flag.Int("shards", 0, "Shard count override; 0 keeps the config's own value")
	workers := flag.Int("workers", 0, "Worker count; 0 uses runtime.GOMAXPROCS(0)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	if *corpusDir == "" || *indexDir == "" {
		die("both -corpus and -index are required")
	}

	logger := obslog.New(*logLevel)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadJSON(*configPath)
		if err != nil {
			die("failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *shards > 0 {
		cfg.Shards = *shards
	}
	if err := cfg.Validate(); err != nil {
		die("invalid config: %v", err)
	}

	paths, err := listWAVFiles(*corpusDir)
	if err != nil {
		die("failed to list corpus: %v", err)
	}
	if len(paths) == 0 {
		die("no .wav files found under %s", *corpusDir)
	}

	store, err := filekv.Open(*indexDir, storeMode(*indexDir), cfg.Shards)
	if err != nil {
		die("failed to open index: %v", err)
	}
	defer store.Close()

	inputs := make([]fingerprint.TrackInput, 0, len(paths))
	var decodeWarnings []fingerprint.Warning
	for i, p := range paths {
		channels, sr, err := wavio.Decode(p)
		if err != nil {
			decodeWarnings = append(decodeWarnings, fingerprint.Warning{TrackPath: p, Kind: "decode_error", Message: err.Error()})
			continue
		}
		inputs = append(inputs, fingerprint.TrackInput{
			TrackID:  uint64(i + 1),
			Path:     p,
			Channels: channels,
			SR:       sr,
		})
	}

	sigOpts := signal.Options{TargetSR: cfg.Feature.TargetSR, CutoffHz: cfg.Feature.CutoffHz}

	start := time.Now()
	report, err := fingerprint.BuildCorpus(context.Background(), store, cfg, inputs, sigOpts, *workers)
	if err != nil {
		die("build failed: %v", err)
	}
	// Decode failures happen before a track ever reaches BuildCorpus, but
	// they're still per-track DecodeError warnings per spec.md §7, so they
	// belong in the same report the rest of the warnings land in.
	report.Warnings = append(report.Warnings, decodeWarnings...)

	for _, w := range report.Warnings {
		logger.TrackWarning(w.TrackPath, w.Kind, w.Message)
	}
	logger.BuildProgress(report.TracksIngested, len(inputs), report.KeysTotal)
	fmt.Printf("Tracks ingested: %d/%d\n", report.TracksIngested, len(inputs))
	fmt.Printf("Keys total:      %d\n", report.KeysTotal)
	fmt.Printf("Unique keys:     %d\n", report.UniqueKeys)
	fmt.Printf("Warnings:        %d\n", len(report.Warnings))
	fmt.Printf("Elapsed:         %s\n", time.Since(start).Round(time.Millisecond))
}

func storeMode(indexDir string) kv.Mode {
	if _, err := os.Stat(filepath.Join(indexDir, "HEADER")); err == nil {
		return kv.ReadWrite
	}
	return kv.Create
}

func listWAVFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ".wav" {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
