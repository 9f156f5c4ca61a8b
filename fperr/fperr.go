// Package fperr defines the exhaustive set of error kinds the fingerprinting
// core can raise, following the closed-enum style spec.md §7 requires.
package fperr

import "fmt"

// Kind enumerates every error category the pipeline can produce.
type Kind int

const (
	DecodeError Kind = iota
	UnsupportedFormat
	ResampleError
	ConfigMismatch
	InvalidArgument
	NumericOverflow
	KvOpenError
	KvReadError
	KvWriteError
	KvMergeError
	EmptyAudio
	NoFrames
	NoPeaks
	Timeout
	IntegrityError
)

func (k Kind) String() string {
	switch k {
	case DecodeError:
		return "DecodeError"
	case UnsupportedFormat:
		return "UnsupportedFormat"
	case ResampleError:
		return "ResampleError"
	case ConfigMismatch:
		return "ConfigMismatch"
	case InvalidArgument:
		return "InvalidArgument"
	case NumericOverflow:
		return "NumericOverflow"
	case KvOpenError:
		return "KvOpenError"
	case KvReadError:
		return "KvReadError"
	case KvWriteError:
		return "KvWriteError"
	case KvMergeError:
		return "KvMergeError"
	case EmptyAudio:
		return "EmptyAudio"
	case NoFrames:
		return "NoFrames"
	case NoPeaks:
		return "NoPeaks"
	case Timeout:
		return "Timeout"
	case IntegrityError:
		return "IntegrityError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a machine-readable error: a closed Kind plus a human message.
// It carries no embedded I/O specifics, per spec.md §7.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New constructs an *Error for the given kind with a formatted message.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Is reports whether err is an *Error of kind k.
func Is(err error, k Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == k
}
