package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
	"github.com/ewilliams-labs/voicecanvas/internal/core/ports"
)

// --- Mocks ---

type mockSource struct {
	openErr error
	stream  *mockStream
}

func (m *mockSource) Open(ctx context.Context) (ports.AudioStream, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	return m.stream, nil
}

type mockStream struct {
	mu         sync.Mutex
	window     []float32
	sampleRate int
	reads      int
	maxReads   int // 0 means unlimited
	readErr    error
	closed     atomic.Int32
}

func (m *mockStream) Read(window []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return m.readErr
	}
	if m.maxReads > 0 && m.reads >= m.maxReads {
		return io.EOF
	}
	m.reads++
	copy(window, m.window)
	return nil
}

func (m *mockStream) SampleRate() int { return m.sampleRate }

func (m *mockStream) Close() error {
	m.closed.Add(1)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

// --- Tests ---

func TestExtractor_StartFailureStaysInactive(t *testing.T) {
	tests := []struct {
		name    string
		openErr error
	}{
		{name: "permission denied", openErr: fmt.Errorf("portaudio: %w", domain.ErrPermissionDenied)},
		{name: "no device", openErr: errors.New("no default input device")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(256, time.Millisecond)
			if e.Start(context.Background(), &mockSource{openErr: tt.openErr}) {
				t.Fatalf("Start returned true for failing source")
			}
			if e.Active() {
				t.Fatalf("extractor must stay inactive")
			}
			if got := e.Current(); got != (domain.AudioSample{}) {
				t.Fatalf("expected reset sample, got %+v", got)
			}
		})
	}
}

func TestExtractor_SamplesAndStops(t *testing.T) {
	stream := &mockStream{
		window:     sine(1024, 500, 8000, 0.5),
		sampleRate: 8000,
	}
	e := NewExtractor(1024, time.Millisecond)

	if !e.Start(context.Background(), &mockSource{stream: stream}) {
		t.Fatalf("Start returned false")
	}
	waitFor(t, func() bool { return e.Current().Volume > 0 })

	got := e.Current()
	if got.PitchHz != 500 {
		t.Fatalf("pitch: got %v, want 500", got.PitchHz)
	}
	if !e.Active() {
		t.Fatalf("expected active extractor")
	}

	e.Stop()
	if e.Active() {
		t.Fatalf("expected inactive after Stop")
	}
	if got := e.Current(); got != (domain.AudioSample{}) {
		t.Fatalf("expected zero sample after Stop, got %+v", got)
	}
	if stream.closed.Load() != 1 {
		t.Fatalf("expected stream closed once, got %d", stream.closed.Load())
	}

	// second stop is harmless
	e.Stop()
	if stream.closed.Load() != 1 {
		t.Fatalf("stream closed again on second Stop")
	}
}

func TestExtractor_EndOfStreamReleasesDevice(t *testing.T) {
	stream := &mockStream{
		window:     sine(256, 1000, 8000, 0.9),
		sampleRate: 8000,
		maxReads:   3,
	}
	e := NewExtractor(256, time.Millisecond)
	if !e.Start(context.Background(), &mockSource{stream: stream}) {
		t.Fatalf("Start returned false")
	}

	waitFor(t, func() bool { return stream.closed.Load() == 1 })
	waitFor(t, func() bool { return !e.Active() })
	if got := e.Current(); got != (domain.AudioSample{}) {
		t.Fatalf("expected reset sample after EOF, got %+v", got)
	}
	e.Stop()
}

func TestExtractor_RestartStopsPreviousLoop(t *testing.T) {
	first := &mockStream{window: make([]float32, 256), sampleRate: 8000}
	second := &mockStream{window: make([]float32, 256), sampleRate: 8000}
	e := NewExtractor(256, time.Millisecond)

	if !e.Start(context.Background(), &mockSource{stream: first}) {
		t.Fatalf("first Start failed")
	}
	if !e.Start(context.Background(), &mockSource{stream: second}) {
		t.Fatalf("second Start failed")
	}
	if first.closed.Load() != 1 {
		t.Fatalf("first stream should be released on restart")
	}
	e.Stop()
	if second.closed.Load() != 1 {
		t.Fatalf("second stream should be released on Stop")
	}
}

func TestExtractor_StartOutlivesRequestContext(t *testing.T) {
	stream := &mockStream{window: sine(256, 500, 8000, 0.5), sampleRate: 8000}
	e := NewExtractor(256, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	if !e.Start(ctx, &mockSource{stream: stream}) {
		t.Fatalf("Start failed")
	}
	cancel()

	time.Sleep(10 * time.Millisecond)
	if !e.Active() {
		t.Fatalf("loop must keep running after the starting context ends")
	}
	e.Stop()
}

// rendezvousSource hands out a fresh stream per Open. Each Open waits briefly
// for a second caller so that overlapping Starts would open together.
type rendezvousSource struct {
	arrive sync.WaitGroup

	mu      sync.Mutex
	streams []*mockStream
}

func newRendezvousSource(callers int) *rendezvousSource {
	r := &rendezvousSource{}
	r.arrive.Add(callers)
	return r
}

func (r *rendezvousSource) Open(ctx context.Context) (ports.AudioStream, error) {
	r.arrive.Done()
	met := make(chan struct{})
	go func() {
		r.arrive.Wait()
		close(met)
	}()
	select {
	case <-met:
	case <-time.After(50 * time.Millisecond):
	}

	window := make([]float32, 256)
	for i := range window {
		window[i] = 0.5
	}
	s := &mockStream{window: window, sampleRate: 8000}
	r.mu.Lock()
	r.streams = append(r.streams, s)
	r.mu.Unlock()
	return s, nil
}

func (r *rendezvousSource) opened() []*mockStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*mockStream(nil), r.streams...)
}

func TestExtractor_ConcurrentStartsLeaveOneLoop(t *testing.T) {
	src := newRendezvousSource(2)
	e := NewExtractor(256, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Start(context.Background(), src)
		}()
	}
	wg.Wait()

	streams := src.opened()
	if len(streams) != 2 {
		t.Fatalf("expected 2 opens, got %d", len(streams))
	}
	live := 0
	for _, s := range streams {
		if s.closed.Load() == 0 {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("expected exactly one open stream while running, got %d", live)
	}

	e.Stop()

	for i, s := range streams {
		if got := s.closed.Load(); got != 1 {
			t.Errorf("stream %d closed %d times, want 1", i, got)
		}
	}
	if e.Active() {
		t.Error("extractor still active after Stop")
	}
	if got := e.Current(); got != (domain.AudioSample{}) {
		t.Errorf("Current() = %+v after Stop, want zero", got)
	}
}

func TestExtractor_StopDuringOpenReleasesDevice(t *testing.T) {
	src := newRendezvousSource(1)
	gate := make(chan struct{})
	entered := make(chan struct{})
	e := NewExtractor(256, time.Millisecond)

	started := make(chan bool, 1)
	go func() {
		started <- e.Start(context.Background(), blockingSource{entered: entered, gate: gate, next: src})
	}()
	<-entered

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()
	close(gate)

	<-started
	<-stopped
	if len(src.opened()) != 1 {
		t.Fatalf("expected one open, got %d", len(src.opened()))
	}
	for _, s := range src.opened() {
		if s.closed.Load() != 1 {
			t.Errorf("stream left open after Stop")
		}
	}
	if e.Active() {
		t.Error("extractor still active after Stop")
	}
}

// blockingSource holds Open until gate closes.
type blockingSource struct {
	entered chan struct{}
	gate    chan struct{}
	next    ports.AudioSource
}

func (b blockingSource) Open(ctx context.Context) (ports.AudioStream, error) {
	close(b.entered)
	<-b.gate
	return b.next.Open(ctx)
}
