package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
	"github.com/ewilliams-labs/voicecanvas/internal/core/ports"
)

const (
	SystemPrompt = "You must give safe, concise descriptions suitable for all ages. Speak like a pirate and use pirate and beach emojis. Never include inappropriate or suggestive content under any circumstances. You are an expert at interpreting rough sketches, doodles, and hand-drawn diagrams. Identify the key objects and then infer the intended meaning. You are a tool being used by shipwrecked hackers trying to help villagers that do not speak english on an island. Do not invent details that are not visible. Respond in no more than 4 short sentences, focusing only on the most important aspects. Avoid listing every feature or giving unnecessary detail."
	UserPrompt   = "What is in this image?"

	RateLimitedText = "The island spirits be too busy right now. Try again soon, ye scallywag! 🏴‍☠️"
	EmptyResultText = "The spirits whisper of mysteries too complex to decipher..."
	FailureText     = "The island spirits whisper of mysteries too complex to decipher..."
)

// PipelineOptions configures a SubmissionPipeline.
type PipelineOptions struct {
	DefaultModel string
	// Timeout bounds a single remote call. Zero leaves it to the caller's context.
	Timeout time.Duration
	// OnPhase is called when the pipeline enters or leaves the analyzing phase.
	OnPhase func(domain.Phase)
}

// Completion describes the last finished submission.
type Completion struct {
	Result  domain.SubmissionResult
	ModelID string
	Latency time.Duration
	// Stale is set when Teardown ran while the request was outstanding.
	Stale bool
}

// SubmissionPipeline sends sketch snapshots to a vision model, one at a time.
type SubmissionPipeline struct {
	analyzer ports.VisionAnalyzer
	opts     PipelineOptions

	inflight *semaphore.Weighted
	busy     atomic.Bool
	epoch    atomic.Uint64
	now      func() time.Time
}

// NewSubmissionPipeline constructs a pipeline around analyzer.
func NewSubmissionPipeline(analyzer ports.VisionAnalyzer, opts PipelineOptions) *SubmissionPipeline {
	return &SubmissionPipeline{
		analyzer: analyzer,
		opts:     opts,
		inflight: semaphore.NewWeighted(1),
		now:      time.Now,
	}
}

// Phase reports whether a submission is outstanding.
func (p *SubmissionPipeline) Phase() domain.Phase {
	if p.busy.Load() {
		return domain.PhaseAnalyzing
	}
	return domain.PhaseIdle
}

// Epoch changes every time Teardown is called.
func (p *SubmissionPipeline) Epoch() uint64 {
	return p.epoch.Load()
}

// Teardown invalidates any outstanding submission. Its result is still
// returned to the caller of Submit but marked stale.
func (p *SubmissionPipeline) Teardown() {
	p.epoch.Add(1)
}

// Submit analyzes snapshot. Remote failures come back as classified results;
// the error is reserved for ErrSubmissionInFlight and ErrInvalidInput.
func (p *SubmissionPipeline) Submit(ctx context.Context, snapshot []byte, modelID string) (Completion, error) {
	if len(snapshot) == 0 {
		return Completion{}, fmt.Errorf("service: empty snapshot: %w", domain.ErrInvalidInput)
	}
	if !p.inflight.TryAcquire(1) {
		return Completion{}, domain.ErrSubmissionInFlight
	}
	defer p.inflight.Release(1)

	if modelID == "" {
		modelID = p.opts.DefaultModel
	}
	epoch := p.epoch.Load()

	p.setBusy(true)
	defer p.setBusy(false)

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	started := p.now()
	text, err := p.analyzer.Describe(ctx, domain.SubmissionRequest{
		Image:        snapshot,
		ModelID:      modelID,
		SystemPrompt: SystemPrompt,
		UserPrompt:   UserPrompt,
	})

	c := Completion{
		Result:  classify(text, err),
		ModelID: modelID,
		Latency: p.now().Sub(started),
		Stale:   p.epoch.Load() != epoch,
	}
	switch c.Result.Kind {
	case domain.ResultRateLimited:
		log.Printf("WARN service: model %s rate limited (retry after %s)", modelID, c.Result.RetryAfter)
	case domain.ResultFailure:
		log.Printf("WARN service: analysis with %s failed: %s", modelID, c.Result.Reason)
	}
	if c.Stale {
		log.Printf("INFO service: discarding result from torn down session")
	}
	return c, nil
}

func (p *SubmissionPipeline) setBusy(v bool) {
	p.busy.Store(v)
	if p.opts.OnPhase != nil {
		if v {
			p.opts.OnPhase(domain.PhaseAnalyzing)
		} else {
			p.opts.OnPhase(domain.PhaseIdle)
		}
	}
}

func classify(text string, err error) domain.SubmissionResult {
	var rl *domain.RateLimitError
	switch {
	case err == nil && strings.TrimSpace(text) != "":
		return domain.Success(text)
	case err == nil:
		return domain.Success(EmptyResultText)
	case errors.As(err, &rl):
		return domain.RateLimited(RateLimitedText, rl.RetryAfter)
	default:
		return domain.Failure(FailureText, err.Error())
	}
}
