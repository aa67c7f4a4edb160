package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mosarlab/graphrag/internal/core/domain"
)

// HistoryRepository persists one row per answered question for audit
// and tuning of the routing thresholds.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *HistoryRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS answer_history (
	id TEXT PRIMARY KEY,
	question TEXT NOT NULL,
	language TEXT NOT NULL,
	query_path TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	fallback_reason TEXT,
	citation_count INTEGER NOT NULL,
	duration_ms DOUBLE PRECISION NOT NULL,
	error TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS answer_history_created_at_idx ON answer_history (created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure answer_history schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *HistoryRepository) RecordAnswer(ctx context.Context, rec domain.AnswerRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO answer_history (id, question, language, query_path, confidence, fallback_reason, citation_count, duration_ms, error, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, rec.ID, rec.Question, rec.Language, string(rec.QueryPath), rec.Confidence, rec.FallbackReason, rec.CitationCount, rec.DurationMS, rec.Error, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// ListRecent returns the newest records first.
func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]domain.AnswerRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, question, language, query_path, confidence, fallback_reason, citation_count, duration_ms, error, created_at
FROM answer_history
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list answer history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AnswerRecord, 0)
	for rows.Next() {
		var rec domain.AnswerRecord
		var path string
		err := rows.Scan(
			&rec.ID,
			&rec.Question,
			&rec.Language,
			&path,
			&rec.Confidence,
			&rec.FallbackReason,
			&rec.CitationCount,
			&rec.DurationMS,
			&rec.Error,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan answer record: %w", err)
		}
		rec.QueryPath = domain.QueryPath(path)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answer history: %w", err)
	}
	return out, nil
}
