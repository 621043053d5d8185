package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	schemaLockKey           = int64(2026101701)
)

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

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if _, err := tx.ExecContext(ctx, viewsDDL); err != nil {
		return fmt.Errorf("execute views ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS videos (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL DEFAULT '',
	filepath TEXT NOT NULL DEFAULT '',
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	frame_count INTEGER NOT NULL DEFAULT 0,
	has_transcript BOOLEAN NOT NULL DEFAULT FALSE,
	youtube_id TEXT,
	youtube_url TEXT,
	ingestion_date TIMESTAMPTZ NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS rubrics (
	name TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	sort_order INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS evaluations (
	id BIGSERIAL PRIMARY KEY,
	video_id TEXT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
	rubric_name TEXT NOT NULL,
	version INTEGER NOT NULL CHECK (version >= 1),
	status TEXT NOT NULL CHECK (status IN ('pending', 'in_progress', 'completed', 'failed')),
	evaluator TEXT NOT NULL DEFAULT '',
	model_name TEXT NOT NULL DEFAULT '',
	cost DOUBLE PRECISION NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_message TEXT,
	result JSONB,
	summary TEXT,
	result_path TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (video_id, rubric_name, version)
);

CREATE INDEX IF NOT EXISTS idx_evaluations_video_rubric ON evaluations(video_id, rubric_name, version DESC);
CREATE INDEX IF NOT EXISTS idx_evaluations_status ON evaluations(status);
CREATE INDEX IF NOT EXISTS idx_evaluations_created_at ON evaluations(created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_evaluations_result_path ON evaluations(result_path) WHERE result_path IS NOT NULL;
`

const viewsDDL = `
CREATE OR REPLACE VIEW video_status AS
SELECT
	v.id AS video_id,
	v.title,
	v.duration_seconds,
	v.frame_count,
	v.has_transcript,
	v.youtube_url,
	v.ingestion_date,
	COUNT(e.id) AS total_evaluations,
	COALESCE(SUM(CASE WHEN e.status = 'completed' THEN 1 ELSE 0 END), 0) AS completed_count,
	COALESCE(SUM(CASE WHEN e.status = 'failed' THEN 1 ELSE 0 END), 0) AS failed_count,
	COALESCE(SUM(CASE WHEN e.status IN ('pending', 'in_progress') THEN 1 ELSE 0 END), 0) AS pending_count,
	COALESCE(SUM(e.cost), 0) AS total_cost,
	MAX(e.completed_at) AS last_evaluated_at
FROM videos v
LEFT JOIN evaluations e ON e.video_id = v.id
GROUP BY v.id;

CREATE OR REPLACE VIEW rubric_completion_stats AS
SELECT
	r.name AS rubric_name,
	r.display_name,
	r.category,
	r.sort_order,
	COUNT(DISTINCT CASE WHEN e.status = 'completed' THEN e.video_id END) AS videos_completed,
	(SELECT COUNT(*) FROM videos) AS total_videos,
	COUNT(e.id) AS total_runs,
	COALESCE(AVG(CASE WHEN e.status = 'completed' THEN e.duration_seconds END), 0) AS avg_duration_seconds,
	COALESCE(SUM(e.cost), 0) AS total_cost
FROM rubrics r
LEFT JOIN evaluations e ON e.rubric_name = r.name
WHERE r.is_active
GROUP BY r.name, r.display_name, r.category, r.sort_order;

CREATE OR REPLACE VIEW recent_evaluations AS
SELECT
	e.id AS evaluation_id,
	e.video_id,
	v.title AS video_title,
	e.rubric_name,
	e.version,
	e.status,
	e.evaluator,
	e.model_name,
	e.cost,
	e.duration_seconds,
	e.created_at,
	e.completed_at
FROM evaluations e
JOIN videos v ON v.id = e.video_id
ORDER BY e.created_at DESC, e.id DESC;
`

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
