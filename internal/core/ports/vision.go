package ports

import (
	"context"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
)

// VisionAnalyzer describes a sketch using a remote or local vision model.
//
// Implementations return *domain.RateLimitError when the endpoint signals 429,
// an empty string when the response parsed but carried no message, and a
// wrapped error for every other failure.
type VisionAnalyzer interface {
	Describe(ctx context.Context, req domain.SubmissionRequest) (string, error)
}
