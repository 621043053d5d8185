package postgres

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

// Upsert inserts the video or refreshes every mutable column; created reports which happened.
func (r *VideoRepository) Upsert(ctx context.Context, video *domain.Video) (bool, error) {
	metadata, err := json.Marshal(nonNilMetadata(video.Metadata))
	if err != nil {
		return false, fmt.Errorf("marshal video metadata: %w", err)
	}
	now := time.Now().UTC()
	if video.IngestionDate.IsZero() {
		video.IngestionDate = now
	}

	row := r.db.QueryRowContext(ctx, `
INSERT INTO videos (`+videoColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	filename = EXCLUDED.filename,
	filepath = EXCLUDED.filepath,
	duration_seconds = EXCLUDED.duration_seconds,
	frame_count = EXCLUDED.frame_count,
	has_transcript = EXCLUDED.has_transcript,
	youtube_id = EXCLUDED.youtube_id,
	youtube_url = EXCLUDED.youtube_url,
	ingestion_date = EXCLUDED.ingestion_date,
	metadata = EXCLUDED.metadata,
	updated_at = EXCLUDED.updated_at
RETURNING created_at, updated_at, (xmax = 0) AS inserted
`,
		video.ID, video.Title, video.Filename, video.Filepath, video.DurationSeconds, video.FrameCount,
		video.HasTranscript, nullableString(video.YouTubeID), nullableString(video.YouTubeURL),
		video.IngestionDate, metadata, now,
	)

	var inserted bool
	if err := row.Scan(&video.CreatedAt, &video.UpdatedAt, &inserted); err != nil {
		return false, fmt.Errorf("upsert video: %w", err)
	}
	return inserted, nil
}

func (r *VideoRepository) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
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

// Delete removes the video; evaluations go with it through the foreign key.
func (r *VideoRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM videos WHERE id = $1`, id)
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
	var metadata []byte
	err := row.Scan(
		&v.ID, &v.Title, &v.Filename, &v.Filepath, &v.DurationSeconds, &v.FrameCount, &v.HasTranscript,
		&youtubeID, &youtubeURL, &v.IngestionDate, &metadata, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return domain.Video{}, err
	}
	v.YouTubeID = youtubeID.String
	v.YouTubeURL = youtubeURL.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &v.Metadata); err != nil {
			return domain.Video{}, fmt.Errorf("unmarshal video metadata: %w", err)
		}
	}
	return v, nil
}

func nonNilMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
