package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

type VideoRepository struct {
	db *sql.DB
}

func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

const videoColumns = `id, title, filename, filepath, duration_seconds, frame_count, has_transcript,
	youtube_id, youtube_url, ingestion_date, metadata, created_at, updated_at`

func (r *VideoRepository) Upsert(ctx context.Context, video *domain.Video) (bool, error) {
	metadata, err := json.Marshal(video.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal video metadata: %w", err)
	}
	if video.Metadata == nil {
		metadata = []byte("{}")
	}
	now := time.Now().UTC()
	if video.IngestionDate.IsZero() {
		video.IngestionDate = now
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin video tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM videos WHERE id = ?)`, video.ID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check video: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO videos (`+videoColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (id) DO UPDATE SET
	title = excluded.title,
	filename = excluded.filename,
	filepath = excluded.filepath,
	duration_seconds = excluded.duration_seconds,
	frame_count = excluded.frame_count,
	has_transcript = excluded.has_transcript,
	youtube_id = excluded.youtube_id,
	youtube_url = excluded.youtube_url,
	ingestion_date = excluded.ingestion_date,
	metadata = excluded.metadata,
	updated_at = excluded.updated_at
`,
		video.ID, video.Title, video.Filename, video.Filepath, video.DurationSeconds, video.FrameCount,
		video.HasTranscript, nullableString(video.YouTubeID), nullableString(video.YouTubeURL),
		video.IngestionDate.UTC(), string(metadata), now, now,
	)
	if err != nil {
		return false, fmt.Errorf("upsert video: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT created_at, updated_at FROM videos WHERE id = ?`, video.ID).
		Scan(&video.CreatedAt, &video.UpdatedAt); err != nil {
		return false, fmt.Errorf("read video timestamps: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit video tx: %w", err)
	}
	return !exists, nil
}

func (r *VideoRepository) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrVideoNotFound, "get video", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan video: %w", err)
	}
	return &video, nil
}

func (r *VideoRepository) List(ctx context.Context) ([]domain.Video, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+videoColumns+` FROM videos ORDER BY ingestion_date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return out, nil
}

func (r *VideoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete video rows affected: %w", err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrVideoNotFound, "delete video", fmt.Errorf("id=%s", id))
	}
	return nil
}

func scanVideo(row rowScanner) (domain.Video, error) {
	var v domain.Video
	var youtubeID, youtubeURL sql.NullString
	var metadata string
	err := row.Scan(
		&v.ID, &v.Title, &v.Filename, &v.Filepath, &v.DurationSeconds, &v.FrameCount, &v.HasTranscript,
		&youtubeID, &youtubeURL, &v.IngestionDate, &metadata, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return domain.Video{}, err
	}
	v.YouTubeID = youtubeID.String
	v.YouTubeURL = youtubeURL.String
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &v.Metadata); err != nil {
			return domain.Video{}, fmt.Errorf("unmarshal video metadata: %w", err)
		}
	}
	return v, nil
}
