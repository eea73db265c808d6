package audio

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
	"github.com/ewilliams-labs/voicecanvas/internal/core/ports"
)

// DefaultTick approximates one animation frame.
const DefaultTick = 16 * time.Millisecond

// Extractor runs the sampling loop for one surface. Current is written only by
// the loop and may be read from any goroutine.
type Extractor struct {
	window int
	tick   time.Duration

	mu      sync.RWMutex
	current domain.AudioSample
	active  bool

	// startMu serializes Start and Stop so at most one loop owns the device.
	startMu sync.Mutex

	// lifecycle of the running loop; guarded by runMu
	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewExtractor creates an inactive extractor. Non-positive values fall back to
// DefaultWindow and DefaultTick.
func NewExtractor(window int, tick time.Duration) *Extractor {
	if window <= 0 {
		window = DefaultWindow
	}
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Extractor{window: window, tick: tick}
}

// Current returns the latest sample, or zero when inactive.
func (e *Extractor) Current() domain.AudioSample {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Active reports whether the sampling loop is running.
func (e *Extractor) Active() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// Snapshot returns the sample and active flag read under one lock.
func (e *Extractor) Snapshot() (domain.AudioSample, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current, e.active
}

// Start opens src and launches the sampling loop. Any running loop is stopped
// first. Failures to open the source leave the extractor inactive and are
// only logged; the returned flag tells the caller whether sampling started.
// Concurrent Start and Stop calls are serialized.
func (e *Extractor) Start(ctx context.Context, src ports.AudioSource) bool {
	e.startMu.Lock()
	defer e.startMu.Unlock()

	e.stopLoop()

	analyzer, err := NewAnalyzer(e.window)
	if err != nil {
		log.Printf("WARN audio: %v", err)
		return false
	}

	stream, err := src.Open(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			log.Printf("WARN audio: microphone permission denied, using default drawing mode: %v", err)
		} else {
			log.Printf("WARN audio: cannot open input, using default drawing mode: %v", err)
		}
		e.reset()
		return false
	}

	// The loop outlives the request that started it.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	e.runMu.Lock()
	e.cancel = cancel
	e.done = done
	e.runMu.Unlock()

	e.mu.Lock()
	e.active = true
	e.mu.Unlock()

	go e.run(loopCtx, stream, analyzer, done)
	return true
}

// Stop halts the loop, releases the device and resets Current to zero. It is
// safe to call when nothing is running. A Stop that races a Start waits for
// the device to open and then closes it.
func (e *Extractor) Stop() {
	e.startMu.Lock()
	defer e.startMu.Unlock()
	e.stopLoop()
}

func (e *Extractor) stopLoop() {
	e.runMu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.runMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	e.reset()
}

func (e *Extractor) run(ctx context.Context, stream ports.AudioStream, analyzer *Analyzer, done chan struct{}) {
	defer close(done)
	defer func() {
		if err := stream.Close(); err != nil {
			log.Printf("WARN audio: release input: %v", err)
		}
		e.reset()
	}()

	window := make([]float32, analyzer.Size())
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := stream.Read(window); err != nil {
			if errors.Is(err, io.EOF) {
				log.Printf("INFO audio: input stream ended")
			} else {
				log.Printf("WARN audio: read failed, stopping sampling: %v", err)
			}
			return
		}

		sample := analyzer.Analyze(window, stream.SampleRate())

		e.mu.Lock()
		e.current = sample
		e.mu.Unlock()
	}
}

func (e *Extractor) reset() {
	e.mu.Lock()
	e.current = domain.AudioSample{}
	e.active = false
	e.mu.Unlock()
}
