// Package obslog is the shared structured logger for build/identify
// progress and warnings. The teacher itself only reaches for
// fmt.Fprintf(os.Stderr, ...) and log.Printf; charmbracelet/log is adopted
// from the wider example pack because the leveled build-warning stream
// needs more than an unstructured stderr line.
package obslog

import (
	"os"

	"github.com/charmbracelet/log"
)

// Logger wraps a charmbracelet/log.Logger with the handful of fields every
// fpindex/fpquery call site wants attached (track path, warning kind, key
// count).
type Logger struct {
	*log.Logger
}

// New returns a Logger writing to stderr at the given level name
// ("debug", "info", "warn", "error"); an unrecognized name falls back to
// info, matching the teacher's tolerant flag-parsing style elsewhere.
func New(levelName string) *Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	l.SetLevel(parseLevel(levelName))
	return &Logger{Logger: l}
}

func parseLevel(name string) log.Level {
	switch name {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// TrackWarning logs one fingerprint.Warning at warn level with structured
// fields, so CLI output can be grepped or piped to a log aggregator without
// parsing free text.
func (l *Logger) TrackWarning(trackPath, kind, message string) {
	l.Warn("track warning", "path", trackPath, "kind", kind, "message", message)
}

// BuildProgress logs periodic corpus-build progress.
func (l *Logger) BuildProgress(done, total int, keysTotal int) {
	l.Info("build progress", "done", done, "total", total, "keys_total", keysTotal)
}

// IdentifyResult logs the outcome of one identify call.
func (l *Logger) IdentifyResult(matched bool, trackID uint64, offsetSeconds, score float64, reason string) {
	if matched {
		l.Info("identify match", "track_id", trackID, "offset_seconds", offsetSeconds, "score", score)
		return
	}
	l.Info("identify no match", "reason", reason)
}
