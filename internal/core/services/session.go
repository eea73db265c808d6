// Package services holds the application core: the submission pipeline and
// the per-canvas session that ties audio, mapping, drawing and analysis together.
package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	mathrand "math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/ewilliams-labs/voicecanvas/internal/audio"
	"github.com/ewilliams-labs/voicecanvas/internal/canvas"
	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
	"github.com/ewilliams-labs/voicecanvas/internal/core/ports"
	"github.com/ewilliams-labs/voicecanvas/internal/mapping"
	"github.com/ewilliams-labs/voicecanvas/internal/splatter"
)

const (
	SplatterChanceStart = 0.30
	SplatterChanceMove  = 0.05
)

// SessionConfig sizes and tunes a Session. Zero values take package defaults.
type SessionConfig struct {
	Width          int
	Height         int
	Profile        string
	DefaultModel   string
	Window         int
	Tick           time.Duration
	SplatterTTL    time.Duration
	RequestTimeout time.Duration
	SnapshotMaxDim int
	// Rand drives splatter chance and particle placement. Defaults to math/rand/v2.
	Rand func() float64
}

// SessionDeps are the ports a Session drives.
type SessionDeps struct {
	Analyzer ports.VisionAnalyzer
	// Source may be nil; StartMicrophone then reports inactive.
	Source  ports.AudioSource
	History ports.HistorySink
}

// Session owns one canvas and everything that feeds it.
type Session struct {
	id        string
	cfg       SessionConfig
	source    ports.AudioSource
	history   ports.HistorySink
	extractor *audio.Extractor
	splatters *splatter.Manager
	pipeline  *SubmissionPipeline

	mu      sync.Mutex
	surface *canvas.Surface
	mapper  mapping.Mapper
	model   string
	result  *domain.SubmissionResult
	closed  bool

	subMu   sync.Mutex
	subs    map[int]chan domain.Status
	nextSub int
}

// NewSession builds a session with an empty canvas and a stopped microphone.
func NewSession(cfg SessionConfig, deps SessionDeps) (*Session, error) {
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("service: %w: analyzer is required", domain.ErrInvalidInput)
	}
	if cfg.Width == 0 && cfg.Height == 0 {
		cfg.Width, cfg.Height = 800, 600
	}
	if cfg.Profile == "" {
		cfg.Profile = mapping.ProfileVivid
	}
	if cfg.Rand == nil {
		cfg.Rand = mathrand.Float64
	}

	surface, err := canvas.New(cfg.Width, cfg.Height)
	if err != nil {
		return nil, fmt.Errorf("service: create canvas: %w", err)
	}
	mapper, err := mapping.New(cfg.Profile)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}

	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		source:    deps.Source,
		history:   deps.History,
		extractor: audio.NewExtractor(cfg.Window, cfg.Tick),
		surface:   surface,
		mapper:    mapper,
		model:     cfg.DefaultModel,
		subs:      make(map[int]chan domain.Status),
	}
	s.splatters = splatter.NewManager(splatter.Options{
		TTL:      cfg.SplatterTTL,
		Rand:     cfg.Rand,
		OnExpire: func(domain.SplatterParticle) { s.notify() },
	})
	s.pipeline = NewSubmissionPipeline(deps.Analyzer, PipelineOptions{
		DefaultModel: cfg.DefaultModel,
		Timeout:      cfg.RequestTimeout,
		OnPhase:      func(domain.Phase) { s.notify() },
	})
	return s, nil
}

func (s *Session) ID() string { return s.id }

// StartMicrophone opens the audio source and reports whether capture is active.
// The capture loop outlives ctx; StopMicrophone or Close ends it. A closed
// session never reopens the device.
func (s *Session) StartMicrophone(ctx context.Context) bool {
	if s.source == nil {
		log.Printf("WARN session: no audio source configured")
		return false
	}
	if s.isClosed() {
		return false
	}
	active := s.extractor.Start(ctx, s.source)
	if active && s.isClosed() {
		// Close ran while the device was opening.
		s.extractor.Stop()
		return false
	}
	s.notify()
	return active
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) StopMicrophone() {
	s.extractor.Stop()
	s.notify()
}

// parameters reads one consistent sample for the current event.
func (s *Session) parameters() domain.DrawingParameters {
	sample, active := s.extractor.Snapshot()
	return s.mapper.Parameters(sample, active)
}

// PointerDown starts a stroke at a display-space point.
func (s *Session) PointerDown(p domain.Point, vp canvas.Viewport) {
	s.mu.Lock()
	at := s.surface.ToSurface(p, vp)
	s.surface.PointerDown(at, s.parameters())
	spawn := s.cfg.Rand() < SplatterChanceStart
	s.mu.Unlock()

	if spawn {
		s.splatters.Spawn(at)
	}
	s.notify()
}

// PointerMove extends the stroke. It reports whether a segment was drawn.
func (s *Session) PointerMove(p domain.Point, vp canvas.Viewport) bool {
	s.mu.Lock()
	at := s.surface.ToSurface(p, vp)
	_, drawn := s.surface.PointerMove(at, s.parameters())
	spawn := drawn && s.cfg.Rand() < SplatterChanceMove
	s.mu.Unlock()

	if spawn {
		s.splatters.Spawn(at)
	}
	if drawn {
		s.notify()
	}
	return drawn
}

func (s *Session) PointerUp() {
	s.mu.Lock()
	s.surface.PointerUp()
	s.mu.Unlock()
	s.notify()
}

func (s *Session) PointerLeave() {
	s.mu.Lock()
	s.surface.PointerLeave()
	s.mu.Unlock()
	s.notify()
}

// Clear wipes strokes and the last result. Live splatters fade on their own.
func (s *Session) Clear() {
	s.mu.Lock()
	s.surface.Clear()
	s.result = nil
	s.mu.Unlock()
	s.notify()
}

// SetProfile swaps the mapping profile for subsequent samples.
func (s *Session) SetProfile(name string) error {
	profile, err := mapping.Lookup(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.mapper.Profile = profile
	s.mu.Unlock()
	s.notify()
	return nil
}

// Snapshot encodes the canvas as PNG.
func (s *Session) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface.Snapshot(s.cfg.SnapshotMaxDim)
}

// Submit sends the current canvas for analysis. An empty canvas yields
// ErrInvalidInput, a closed session ErrSessionClosed, and a second concurrent
// call ErrSubmissionInFlight.
func (s *Session) Submit(ctx context.Context, modelID string) (domain.SubmissionResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.SubmissionResult{}, fmt.Errorf("service: submit: %w", domain.ErrSessionClosed)
	}
	if s.surface.Empty() {
		s.mu.Unlock()
		return domain.SubmissionResult{}, fmt.Errorf("service: nothing drawn: %w", domain.ErrInvalidInput)
	}
	if modelID != "" {
		s.model = modelID
	}
	model := s.model
	png, err := s.surface.Snapshot(s.cfg.SnapshotMaxDim)
	s.mu.Unlock()
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("service: snapshot: %w", err)
	}

	c, err := s.pipeline.Submit(ctx, png, model)
	if err != nil {
		return domain.SubmissionResult{}, err
	}

	s.record(c)
	if c.Stale {
		return c.Result, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return c.Result, nil
	}
	res := c.Result
	s.result = &res
	s.mu.Unlock()
	s.notify()
	return c.Result, nil
}

func (s *Session) record(c Completion) {
	if s.history == nil {
		return
	}
	now := time.Now()
	entropy := ulid.Monotonic(rand.Reader, 0)
	s.history.Record(domain.AnalysisRecord{
		ID:         ulid.MustNew(ulid.Timestamp(now), entropy).String(),
		SessionID:  s.id,
		ModelID:    c.ModelID,
		Kind:       c.Result.Kind,
		Text:       c.Result.Text,
		Reason:     c.Result.Reason,
		RetryAfter: c.Result.RetryAfter,
		Latency:    c.Latency,
		CreatedAt:  now.UTC(),
	})
}

// Status builds the read model.
func (s *Session) Status() domain.Status {
	sample, active := s.extractor.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.Status{
		SessionID:         s.id,
		Phase:             s.pipeline.Phase(),
		MicActive:         active,
		VolumeLevel:       sample.Volume,
		PitchHz:           sample.PitchHz,
		Profile:           s.mapper.Profile.Name(),
		Model:             s.model,
		CurrentParameters: s.mapper.Parameters(sample, active),
		Drawing:           s.surface.State() == canvas.Drawing,
		Strokes:           s.surface.Len(),
		Splatters:         s.splatters.Active(),
	}
	if s.result != nil {
		res := *s.result
		st.Result = &res
	}
	return st
}

// Subscribe returns a channel that receives the latest Status after each
// change. Slow readers only ever see the newest value.
func (s *Session) Subscribe() (<-chan domain.Status, func()) {
	ch := make(chan domain.Status, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
			s.subMu.Unlock()
		})
	}
}

func (s *Session) notify() {
	s.subMu.Lock()
	n := len(s.subs)
	s.subMu.Unlock()
	if n == 0 {
		return
	}

	st := s.Status()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

// Close stops the microphone, drops live splatters and invalidates any
// outstanding submission. Subscribers are closed.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.pipeline.Teardown()
	s.extractor.Stop()
	s.splatters.Close()

	s.subMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subMu.Unlock()
}
