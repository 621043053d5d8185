package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

type DashboardRepository struct {
	db *sql.DB
}

func NewDashboardRepository(db *sql.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

func (r *DashboardRepository) VideoStatus(ctx context.Context, videoID string) ([]domain.VideoStatusRow, error) {
	query := `
SELECT video_id, title, duration_seconds, frame_count, has_transcript, youtube_url, ingestion_date,
	total_evaluations, completed_count, failed_count, pending_count, total_cost, last_evaluated_at
FROM video_status
`
	args := []interface{}{}
	if videoID != "" {
		query += "WHERE video_id = ?\n"
		args = append(args, videoID)
	}
	query += "ORDER BY ingestion_date DESC, video_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query video status: %w", err)
	}
	defer rows.Close()

	out := make([]domain.VideoStatusRow, 0)
	for rows.Next() {
		var row domain.VideoStatusRow
		var youtubeURL sql.NullString
		var ingested, lastEvaluated nullTime
		if err := rows.Scan(
			&row.VideoID, &row.Title, &row.DurationSeconds, &row.FrameCount, &row.HasTranscript, &youtubeURL,
			&ingested, &row.TotalEvaluations, &row.CompletedCount, &row.FailedCount, &row.PendingCount,
			&row.TotalCost, &lastEvaluated,
		); err != nil {
			return nil, fmt.Errorf("scan video status: %w", err)
		}
		row.YouTubeURL = youtubeURL.String
		row.IngestionDate = ingested.Time
		row.LastEvaluatedAt = lastEvaluated.Ptr()
		row.TotalCost = domain.RoundCost(row.TotalCost)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate video status: %w", err)
	}
	return out, nil
}

func (r *DashboardRepository) RubricCompletionStats(ctx context.Context) ([]domain.RubricStatsRow, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT rubric_name, display_name, category, videos_completed, total_videos, total_runs, avg_duration_seconds, total_cost
FROM rubric_completion_stats
ORDER BY sort_order, rubric_name
`)
	if err != nil {
		return nil, fmt.Errorf("query rubric stats: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RubricStatsRow, 0)
	for rows.Next() {
		var row domain.RubricStatsRow
		if err := rows.Scan(
			&row.RubricName, &row.DisplayName, &row.Category, &row.VideosCompleted, &row.TotalVideos,
			&row.TotalRuns, &row.AvgDurationSeconds, &row.TotalCost,
		); err != nil {
			return nil, fmt.Errorf("scan rubric stats: %w", err)
		}
		row.TotalCost = domain.RoundCost(row.TotalCost)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rubric stats: %w", err)
	}
	return out, nil
}

func (r *DashboardRepository) RecentEvaluations(ctx context.Context, limit int) ([]domain.RecentEvaluationRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT evaluation_id, video_id, video_title, rubric_name, version, status, evaluator, model_name, cost,
	duration_seconds, created_at, completed_at
FROM recent_evaluations
ORDER BY created_at DESC, evaluation_id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent evaluations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RecentEvaluationRow, 0, limit)
	for rows.Next() {
		var row domain.RecentEvaluationRow
		var status string
		var createdAt, completedAt nullTime
		if err := rows.Scan(
			&row.EvaluationID, &row.VideoID, &row.VideoTitle, &row.RubricName, &row.Version, &status,
			&row.Evaluator, &row.ModelName, &row.Cost, &row.DurationSeconds, &createdAt, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recent evaluation: %w", err)
		}
		row.Status = domain.EvaluationStatus(status)
		row.CreatedAt = createdAt.Time
		row.CompletedAt = completedAt.Ptr()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent evaluations: %w", err)
	}
	return out, nil
}
