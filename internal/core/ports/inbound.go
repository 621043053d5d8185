package ports

import (
	"context"
	"io"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

// VideoIngestor is the inbound contract for turning a source into artifacts.
type VideoIngestor interface {
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error)
	Enqueue(ctx context.Context, req domain.IngestRequest) (*domain.IngestJob, error)
}

// EvaluationService is the inbound contract for evaluation runs.
type EvaluationService interface {
	Submit(ctx context.Context, req domain.EvaluationRequest) (*domain.Evaluation, error)
	Run(ctx context.Context, job domain.EvaluationJob) (*domain.EvaluationReport, error)
	EvaluateNow(ctx context.Context, req domain.EvaluationRequest) (*domain.Evaluation, *domain.EvaluationReport, error)
}

// Synchronizer is the inbound contract for importing on-disk artifacts into the store.
type Synchronizer interface {
	SyncAll(ctx context.Context, progress func(videoID string)) (domain.SyncStats, error)
}

// DashboardService is the inbound read model used by the API, the CLI and MCP tools.
type DashboardService interface {
	Videos(ctx context.Context) ([]domain.VideoStatusRow, error)
	VideoDetail(ctx context.Context, videoID string) (*domain.VideoDetail, error)
	DeleteVideo(ctx context.Context, videoID string) error
	Evaluation(ctx context.Context, id int64) (*domain.Evaluation, error)
	EvaluationVersions(ctx context.Context, videoID, rubric string) ([]domain.Evaluation, error)
	LatestEvaluation(ctx context.Context, videoID, rubric string) (*domain.Evaluation, error)
	Rubrics(ctx context.Context) ([]domain.Rubric, error)
	RubricStats(ctx context.Context) ([]domain.RubricStatsRow, error)
	Recent(ctx context.Context, limit int) ([]domain.RecentEvaluationRow, error)
	Costs(ctx context.Context) (domain.CostSummary, error)
	ExportWorkbook(ctx context.Context, w io.Writer) error
}
