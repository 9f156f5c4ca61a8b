// Package wavio reads and writes WAV files for the fingerprinting CLIs and
// test fixtures. It is a thin adapter over github.com/cwbudde/wav and
// github.com/go-audio/audio; the fingerprinting core never imports it
// directly (decoding is an external collaborator per spec.md §1/§6) but the
// cmd/ binaries and tests need a concrete decoder to exercise the pipeline.
package wavio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"

	"github.com/cwbudde/algo-fprint/fperr"
)

// Decode reads a WAV file and returns its channels deinterleaved as float64
// in [-1, 1], plus the file's native sample rate. Mono files return a single
// channel; anything else returns one slice per channel.
func Decode(path string) (channels [][]float64, sampleRate int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fperr.New(fperr.DecodeError, "%v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fperr.New(fperr.UnsupportedFormat, "not a valid wav file: %s", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fperr.New(fperr.DecodeError, "%v", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, fperr.New(fperr.UnsupportedFormat, "unusable wav buffer: %s", path)
	}

	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	peak := float64(int(1) << uint(buf.SourceBitDepth-1))
	if buf.SourceBitDepth <= 0 {
		peak = float64(int(1) << 15)
	}

	channels = make([][]float64, ch)
	for c := 0; c < ch; c++ {
		channels[c] = make([]float64, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < ch; c++ {
			channels[c][i] = float64(buf.Data[i*ch+c]) / peak
		}
	}
	return channels, buf.Format.SampleRate, nil
}

// WriteMono writes a single-channel WAV file, creating parent directories as
// needed, matching the teacher's fixture-writing convention.
func WriteMono(path string, samples []float64, sampleRate int) error {
	return writePCM(path, [][]float64{samples}, sampleRate)
}

// WriteStereo writes a two-channel interleaved WAV file.
func WriteStereo(path string, left, right []float64, sampleRate int) error {
	if len(left) != len(right) {
		return fmt.Errorf("wavio: left/right length mismatch")
	}
	return writePCM(path, [][]float64{left, right}, sampleRate)
}

func writePCM(path string, channels [][]float64, sampleRate int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	numCh := len(channels)
	enc := wav.NewEncoder(f, sampleRate, 16, numCh, 1)
	defer enc.Close()

	frames := 0
	if numCh > 0 {
		frames = len(channels[0])
	}
	data := make([]float32, frames*numCh)
	const peak = float32(1 << 15)
	for i := 0; i < frames; i++ {
		for c := 0; c < numCh; c++ {
			v := channels[c][i]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			data[i*numCh+c] = float32(v) * peak
		}
	}

	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: numCh,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	return enc.Write(buf)
}
