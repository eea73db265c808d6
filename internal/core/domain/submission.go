package domain

import "time"

// ResultKind tags a SubmissionResult.
type ResultKind string

const (
	ResultSuccess     ResultKind = "success"
	ResultRateLimited ResultKind = "rate_limited"
	ResultFailure     ResultKind = "failure"
)

// SubmissionRequest is what gets sent to the vision model.
type SubmissionRequest struct {
	Image        []byte
	ModelID      string
	SystemPrompt string
	UserPrompt   string
}

// SubmissionResult is the classified outcome of one submit call.
type SubmissionResult struct {
	Kind       ResultKind    `json:"kind"`
	Text       string        `json:"text"`
	Reason     string        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

func Success(text string) SubmissionResult {
	return SubmissionResult{Kind: ResultSuccess, Text: text}
}

func RateLimited(text string, retryAfter time.Duration) SubmissionResult {
	return SubmissionResult{Kind: ResultRateLimited, Text: text, RetryAfter: retryAfter}
}

func Failure(text, reason string) SubmissionResult {
	return SubmissionResult{Kind: ResultFailure, Text: text, Reason: reason}
}

// Phase is the submission phase shown to the user.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAnalyzing Phase = "analyzing"
)

// Status is the read model the presentation layer polls or subscribes to.
type Status struct {
	SessionID         string             `json:"session_id"`
	Phase             Phase              `json:"phase"`
	MicActive         bool               `json:"mic_active"`
	VolumeLevel       float64            `json:"volume_level"`
	PitchHz           float64            `json:"pitch_hz"`
	Profile           string             `json:"profile"`
	Model             string             `json:"model"`
	CurrentParameters DrawingParameters  `json:"current_parameters"`
	Drawing           bool               `json:"drawing"`
	Strokes           int                `json:"strokes"`
	Splatters         []SplatterParticle `json:"splatters"`
	Result            *SubmissionResult  `json:"result"`
}

// AnalysisRecord is one row of submission history. It never carries the image.
type AnalysisRecord struct {
	ID         string        `json:"id"`
	SessionID  string        `json:"session_id"`
	ModelID    string        `json:"model_id"`
	Kind       ResultKind    `json:"kind"`
	Text       string        `json:"text"`
	Reason     string        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Latency    time.Duration `json:"latency"`
	CreatedAt  time.Time     `json:"created_at"`
}
