// Command fpquery identifies a query clip against an already-built index,
// in the teacher's cmd/*/main.go style: standard flag parsing, a local
// die() helper for fatal errors.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
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
	indexDir := flag.String("index", "", "Index directory produced by fpindex (required)")
	queryPath := flag.String("query", "", "WAV file to identify (required)")
	configPath := flag.String("config", "", "Optional JSON config path; must match the one fpindex used")
	deadline := flag.Duration("deadline", 10*time.Second, "Identify deadline")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	if *indexDir == "" || *queryPath == "" {
		die("both -index and -query are required")
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
	if err := cfg.Validate(); err != nil {
		die("invalid config: %v", err)
	}

	store, err := filekv.Open(*indexDir, kv.ReadOnly, cfg.Shards)
	if err != nil {
		die("failed to open index: %v", err)
	}
	defer store.Close()

	channels, sr, err := wavio.Decode(*queryPath)
	if err != nil {
		die("failed to decode query: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *deadline)
	defer cancel()

	sigOpts := signal.Options{TargetSR: cfg.Feature.TargetSR, CutoffHz: cfg.Feature.CutoffHz}
	result, err := fingerprint.Identify(ctx, store, cfg, channels, sr, fingerprint.IdentifyOptions{Signal: sigOpts})
	if err != nil {
		die("identify failed: %v", err)
	}

	if !result.Matched {
		logger.IdentifyResult(false, 0, 0, 0, result.Reason)
		fmt.Printf("no match: %s\n", result.Reason)
		return
	}

	logger.IdentifyResult(true, result.Match.TrackID, result.Match.OffsetSeconds, result.Match.Score, "")
	fmt.Printf("track:  %d\n", result.Match.TrackID)
	fmt.Printf("offset: %.3fs\n", result.Match.OffsetSeconds)
	fmt.Printf("score:  %.4f\n", result.Match.Score)
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
