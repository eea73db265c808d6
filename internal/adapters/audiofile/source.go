// Package audiofile replays WAV and MP3 files as a ports.AudioSource.
package audiofile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
	"github.com/ewilliams-labs/voicecanvas/internal/core/ports"
)

// Source replays a decoded file. Each Read advances by Hop samples, so with
// Hop = sampleRate*tick the file plays back at real time through an extractor.
type Source struct {
	Path string
	// Hop is the number of samples to advance per Read. Zero advances by the
	// window length.
	Hop int
	// HopDuration, when set, overrides Hop using the file's sample rate.
	HopDuration time.Duration
}

var _ ports.AudioSource = Source{}

// Open decodes the whole file into memory.
func (s Source) Open(ctx context.Context) (ports.AudioStream, error) {
	samples, rate, err := Decode(s.Path)
	if err != nil {
		return nil, err
	}
	hop := s.Hop
	if s.HopDuration > 0 {
		hop = int(float64(rate) * s.HopDuration.Seconds())
	}
	return NewStream(samples, rate, hop), nil
}

// Decode reads a WAV or MP3 file as mono samples in [-1, 1].
func Decode(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audiofile: open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return decodeWAV(f)
	case ".mp3":
		return decodeMP3(f)
	default:
		return nil, 0, fmt.Errorf("audiofile: unsupported format %q: %w", filepath.Ext(path), domain.ErrInvalidInput)
	}
}

// Stream walks an in-memory sample buffer.
type Stream struct {
	samples []float32
	rate    int
	hop     int
	pos     int
}

// NewStream wraps decoded samples. A non-positive hop advances by the window length.
func NewStream(samples []float32, sampleRate, hop int) *Stream {
	return &Stream{samples: samples, rate: sampleRate, hop: hop}
}

// Read fills window from the current position, zero-padding past the end,
// then advances. It returns io.EOF once the position passes the last sample.
func (s *Stream) Read(window []float32) error {
	if s.pos >= len(s.samples) {
		return io.EOF
	}
	n := copy(window, s.samples[s.pos:])
	for i := n; i < len(window); i++ {
		window[i] = 0
	}
	step := s.hop
	if step <= 0 {
		step = len(window)
	}
	s.pos += step
	return nil
}

func (s *Stream) SampleRate() int { return s.rate }

// Duration is the length of the decoded audio.
func (s *Stream) Duration() time.Duration {
	if s.rate <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.samples)) / float64(s.rate) * float64(time.Second))
}

func (s *Stream) Close() error { return nil }
