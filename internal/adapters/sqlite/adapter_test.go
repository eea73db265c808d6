package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := NewAdapter(":memory:")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestAdapter_SaveAndGet(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		rec     domain.AnalysisRecord
		lookup  string
		wantErr error
	}{
		{
			name: "success record",
			rec: domain.AnalysisRecord{
				ID:        "01HZX0000000000000000000A1",
				SessionID: "s1",
				ModelID:   "qwen/qwen2.5-vl-32b-instruct:free",
				Kind:      domain.ResultSuccess,
				Text:      "a boat",
				Latency:   1500 * time.Millisecond,
				CreatedAt: created,
			},
			lookup: "01HZX0000000000000000000A1",
		},
		{
			name: "rate limited record keeps retry hint",
			rec: domain.AnalysisRecord{
				ID:         "01HZX0000000000000000000A2",
				SessionID:  "s1",
				ModelID:    "m",
				Kind:       domain.ResultRateLimited,
				Text:       "busy",
				RetryAfter: 3 * time.Second,
				CreatedAt:  created,
			},
			lookup: "01HZX0000000000000000000A2",
		},
		{
			name:    "not found",
			rec:     domain.AnalysisRecord{ID: "x", SessionID: "s", ModelID: "m", Kind: domain.ResultFailure, Text: "t", CreatedAt: created},
			lookup:  "missing",
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t)
			if err := a.Save(context.Background(), tt.rec); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, err := a.Get(context.Background(), tt.lookup)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !got.CreatedAt.Equal(tt.rec.CreatedAt) {
				t.Fatalf("created_at: got %v want %v", got.CreatedAt, tt.rec.CreatedAt)
			}
			want := tt.rec
			got.CreatedAt, want.CreatedAt = time.Time{}, time.Time{}
			if got != want {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
			}
		})
	}
}

func TestAdapter_SaveRejectsMissingID(t *testing.T) {
	a := newTestAdapter(t)
	err := a.Save(context.Background(), domain.AnalysisRecord{Text: "x"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAdapter_SaveDefaultsCreatedAt(t *testing.T) {
	a := newTestAdapter(t)
	before := time.Now().Add(-time.Second)
	if err := a.Save(context.Background(), domain.AnalysisRecord{ID: "r1", SessionID: "s", ModelID: "m", Kind: domain.ResultSuccess, Text: "t"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := a.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CreatedAt.Before(before) {
		t.Fatalf("expected created_at to default to now, got %v", got.CreatedAt)
	}
}

func TestAdapter_ListRecent(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		limit   int
		wantIDs []string
	}{
		{name: "empty", count: 0, limit: 10, wantIDs: []string{}},
		{name: "newest first", count: 3, limit: 10, wantIDs: []string{"r2", "r1", "r0"}},
		{name: "limited", count: 5, limit: 2, wantIDs: []string{"r4", "r3"}},
		{name: "zero limit uses default", count: 2, limit: 0, wantIDs: []string{"r1", "r0"}},
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAdapter(t)
			for i := 0; i < tt.count; i++ {
				rec := domain.AnalysisRecord{
					ID:        "r" + string(rune('0'+i)),
					SessionID: "s",
					ModelID:   "m",
					Kind:      domain.ResultSuccess,
					Text:      "t",
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				}
				if err := a.Save(context.Background(), rec); err != nil {
					t.Fatalf("save: %v", err)
				}
			}

			got, err := a.ListRecent(context.Background(), tt.limit)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("expected %d records, got %d", len(tt.wantIDs), len(got))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Fatalf("record %d: got %s want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestAdapter_ReopenMigratesIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	a, err := NewAdapter(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := a.Save(context.Background(), domain.AnalysisRecord{ID: "r1", SessionID: "s", ModelID: "m", Kind: domain.ResultSuccess, Text: "kept"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = a.Close()

	b, err := NewAdapter(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer b.Close()

	got, err := b.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Text != "kept" {
		t.Fatalf("unexpected text %q", got.Text)
	}
}
