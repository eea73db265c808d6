// Package portaudio captures the default input device as a ports.AudioSource.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/ewilliams-labs/voicecanvas/internal/audio"
	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
	"github.com/ewilliams-labs/voicecanvas/internal/core/ports"
)

const (
	DefaultSampleRate      = 44100
	DefaultFramesPerBuffer = 512
	defaultRingSize        = 8192
)

// capture is the subset of *portaudio.Stream the mic uses.
type capture interface {
	Start() error
	Stop() error
	Read() error
	Close() error
}

// openCapture opens a mono input stream that fills buf on every Read.
// Replaced in tests.
var openCapture = func(sampleRate, frames int, buf []float32) (capture, func(), error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, nil, err
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frames, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, nil, err
	}
	return stream, func() { _ = portaudio.Terminate() }, nil
}

// Mic is the default microphone. The zero value uses the defaults above.
type Mic struct {
	SampleRate      int
	FramesPerBuffer int
	// RingSize is how many recent samples are kept for analysis windows.
	RingSize int
}

var _ ports.AudioSource = Mic{}

// Open starts capturing. Any failure to acquire the device is reported as
// domain.ErrPermissionDenied since the host rarely says which it was.
func (m Mic) Open(ctx context.Context) (ports.AudioStream, error) {
	rate := m.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	frames := m.FramesPerBuffer
	if frames <= 0 {
		frames = DefaultFramesPerBuffer
	}
	ringSize := m.RingSize
	if ringSize <= 0 {
		ringSize = defaultRingSize
	}

	buf := make([]float32, frames)
	stream, terminate, err := openCapture(rate, frames, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open default input: %w: %v", domain.ErrPermissionDenied, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		terminate()
		return nil, fmt.Errorf("portaudio: start input: %w: %v", domain.ErrPermissionDenied, err)
	}

	s := &micStream{
		rate:      rate,
		capture:   stream,
		terminate: terminate,
		buf:       buf,
		ring:      audio.NewRing(ringSize),
		done:      make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

type micStream struct {
	rate      int
	capture   capture
	terminate func()
	buf       []float32
	ring      *audio.Ring

	mu      sync.Mutex
	readErr error
	closed  bool
	done    chan struct{}
}

// pump copies device buffers into the ring until the stream stops.
func (s *micStream) pump() {
	defer close(s.done)
	for {
		if err := s.capture.Read(); err != nil {
			s.mu.Lock()
			if !s.closed {
				s.readErr = err
				log.Printf("WARN portaudio: capture stopped: %v", err)
			}
			s.mu.Unlock()
			return
		}
		s.ring.Write(s.buf)
	}
}

// Read copies the most recent samples into window.
func (s *micStream) Read(window []float32) error {
	s.mu.Lock()
	err, closed := s.readErr, s.closed
	s.mu.Unlock()
	if closed {
		return errors.New("portaudio: stream closed")
	}
	if err != nil {
		return fmt.Errorf("portaudio: read: %w", err)
	}
	s.ring.Latest(window)
	return nil
}

func (s *micStream) SampleRate() int { return s.rate }

func (s *micStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.capture.Stop()
	<-s.done
	if cerr := s.capture.Close(); cerr != nil && err == nil {
		err = cerr
	}
	s.terminate()
	if err != nil {
		return fmt.Errorf("portaudio: close: %w", err)
	}
	return nil
}
