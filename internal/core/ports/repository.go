package ports

import (
	"context"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
)

// AnalysisRepository stores the outcome history of sketch submissions.
type AnalysisRepository interface {
	Save(ctx context.Context, rec domain.AnalysisRecord) error
	// Get returns domain.ErrNotFound when no record has the id.
	Get(ctx context.Context, id string) (domain.AnalysisRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.AnalysisRecord, error)
}

// HistorySink accepts records for asynchronous persistence. Record never
// blocks and reports whether the record was queued.
type HistorySink interface {
	Record(rec domain.AnalysisRecord) bool
}
