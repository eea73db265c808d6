// Package sqlite provides a SQLite-backed implementation of the analysis history port.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
	_ "github.com/mattn/go-sqlite3" // Import the driver anonymously
)

const defaultListLimit = 50

// Adapter implements the analysis repository port for SQLite
type Adapter struct {
	db *sql.DB
}

// NewAdapter creates a connection and runs the schema migration
func NewAdapter(storagePath string) (*Adapter, error) {
	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	// Every connection to ":memory:" is its own database.
	if storagePath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	adapter := &Adapter{db: db}

	if err := adapter.migrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return adapter, nil
}

// Close ensures the DB connection is closed gracefully
func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) Save(ctx context.Context, rec domain.AnalysisRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("failed to save analysis: %w: missing id", domain.ErrInvalidInput)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO analyses (id, session_id, model_id, kind, text, reason, retry_after_ms, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind,
			text=excluded.text,
			reason=excluded.reason,
			retry_after_ms=excluded.retry_after_ms,
			latency_ms=excluded.latency_ms;
	`
	if _, err := a.db.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.SessionID,
		rec.ModelID,
		string(rec.Kind),
		rec.Text,
		rec.Reason,
		rec.RetryAfter.Milliseconds(),
		rec.Latency.Milliseconds(),
		rec.CreatedAt.UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	return nil
}

func (a *Adapter) Get(ctx context.Context, id string) (domain.AnalysisRecord, error) {
	row := a.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	rec, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.AnalysisRecord{}, domain.ErrNotFound
		}
		return domain.AnalysisRecord{}, fmt.Errorf("failed to load analysis: %w", err)
	}
	return rec, nil
}

// ListRecent returns up to limit records, newest first.
func (a *Adapter) ListRecent(ctx context.Context, limit int) ([]domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := a.db.QueryContext(ctx, selectColumns+" ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	records := []domain.AnalysisRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analyses: %w", err)
	}

	return records, nil
}

const selectColumns = `
	SELECT id, session_id, model_id, kind, text, IFNULL(reason, ''),
		IFNULL(retry_after_ms, 0), IFNULL(latency_ms, 0), created_at
	FROM analyses`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (domain.AnalysisRecord, error) {
	var (
		rec        domain.AnalysisRecord
		kind       string
		retryAfter int64
		latency    int64
		created    int64
	)
	if err := s.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.ModelID,
		&kind,
		&rec.Text,
		&rec.Reason,
		&retryAfter,
		&latency,
		&created,
	); err != nil {
		return domain.AnalysisRecord{}, err
	}
	rec.Kind = domain.ResultKind(kind)
	rec.RetryAfter = time.Duration(retryAfter) * time.Millisecond
	rec.Latency = time.Duration(latency) * time.Millisecond
	rec.CreatedAt = time.UnixMilli(created).UTC()
	return rec, nil
}

func (a *Adapter) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		text TEXT NOT NULL,
		reason TEXT,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS analyses_created_at ON analyses(created_at);
	`
	if _, err := a.db.Exec(query); err != nil {
		return err
	}

	// Columns added after the first schema.
	for _, stmt := range []string{
		"ALTER TABLE analyses ADD COLUMN retry_after_ms INTEGER",
	} {
		if _, err := a.db.Exec(stmt); err != nil {
			if !isDuplicateColumnError(err) {
				return err
			}
		}
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "duplicate column") || strings.Contains(err.Error(), "already exists"))
}
