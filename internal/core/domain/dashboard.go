package domain

import "time"

// VideoStatusRow is one row of the video_status view.
type VideoStatusRow struct {
	VideoID          string     `json:"video_id"`
	Title            string     `json:"title"`
	DurationSeconds  float64    `json:"duration_seconds"`
	FrameCount       int        `json:"frame_count"`
	HasTranscript    bool       `json:"has_transcript"`
	YouTubeURL       string     `json:"youtube_url,omitempty"`
	IngestionDate    time.Time  `json:"ingestion_date"`
	TotalEvaluations int        `json:"total_evaluations"`
	CompletedCount   int        `json:"completed_count"`
	FailedCount      int        `json:"failed_count"`
	PendingCount     int        `json:"pending_count"`
	TotalCost        float64    `json:"total_cost"`
	LastEvaluatedAt  *time.Time `json:"last_evaluated_at,omitempty"`
}

// RubricStatsRow is one row of the rubric_completion_stats view.
type RubricStatsRow struct {
	RubricName         string  `json:"rubric_name"`
	DisplayName        string  `json:"display_name"`
	Category           string  `json:"category"`
	VideosCompleted    int     `json:"videos_completed"`
	TotalVideos        int     `json:"total_videos"`
	TotalRuns          int     `json:"total_runs"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
	TotalCost          float64 `json:"total_cost"`
}

// CompletionPercent is the share of videos with a completed run for this rubric.
func (r RubricStatsRow) CompletionPercent() float64 {
	if r.TotalVideos == 0 {
		return 0
	}
	return float64(r.VideosCompleted) * 100 / float64(r.TotalVideos)
}

// RecentEvaluationRow is one row of the recent_evaluations view.
type RecentEvaluationRow struct {
	EvaluationID    int64            `json:"evaluation_id"`
	VideoID         string           `json:"video_id"`
	VideoTitle      string           `json:"video_title"`
	RubricName      string           `json:"rubric_name"`
	Version         int              `json:"version"`
	Status          EvaluationStatus `json:"status"`
	Evaluator       string           `json:"evaluator"`
	ModelName       string           `json:"model_name"`
	Cost            float64          `json:"cost"`
	DurationSeconds float64          `json:"duration_seconds"`
	CreatedAt       time.Time        `json:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// VideoDetail is a video with its evaluation history.
type VideoDetail struct {
	Video       Video        `json:"video"`
	Evaluations []Evaluation `json:"evaluations"`
	TotalCost   float64      `json:"total_cost"`
}

// DashboardSnapshot is the data exported to spreadsheets.
type DashboardSnapshot struct {
	Videos      []VideoStatusRow
	Rubrics     []RubricStatsRow
	Recent      []RecentEvaluationRow
	GeneratedAt time.Time
}

// SyncStats reports what a filesystem to database sync did.
type SyncStats struct {
	VideosFound        int      `json:"videos_found"`
	VideosCreated      int      `json:"videos_created"`
	VideosUpdated      int      `json:"videos_updated"`
	EvaluationsFound   int      `json:"evaluations_found"`
	EvaluationsCreated int      `json:"evaluations_created"`
	EvaluationsSkipped int      `json:"evaluations_skipped"`
	Errors             []string `json:"errors,omitempty"`
}
