package usecase

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/core/ports"
)

const defaultRecentLimit = 20

type DashboardUseCase struct {
	videos      ports.VideoRepository
	evaluations ports.EvaluationRepository
	rubrics     ports.RubricRepository
	reader      ports.DashboardReader
	ledger      ports.CostLedger
	exporter    ports.WorkbookExporter
	now         func() time.Time
}

func NewDashboardUseCase(
	videos ports.VideoRepository,
	evaluations ports.EvaluationRepository,
	rubrics ports.RubricRepository,
	reader ports.DashboardReader,
	ledger ports.CostLedger,
	exporter ports.WorkbookExporter,
) *DashboardUseCase {
	return &DashboardUseCase{
		videos:      videos,
		evaluations: evaluations,
		rubrics:     rubrics,
		reader:      reader,
		ledger:      ledger,
		exporter:    exporter,
		now:         time.Now,
	}
}

func (uc *DashboardUseCase) Videos(ctx context.Context) ([]domain.VideoStatusRow, error) {
	rows, err := uc.reader.VideoStatus(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("read video status: %w", err)
	}
	return rows, nil
}

func (uc *DashboardUseCase) VideoDetail(ctx context.Context, videoID string) (*domain.VideoDetail, error) {
	video, err := uc.videos.GetByID(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("get video: %w", err)
	}
	evals, err := uc.evaluations.ListByVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	total, err := uc.evaluations.TotalCost(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("sum cost: %w", err)
	}
	if evals == nil {
		evals = []domain.Evaluation{}
	}
	return &domain.VideoDetail{Video: *video, Evaluations: evals, TotalCost: total}, nil
}

// DeleteVideo removes the row; evaluations go with it. Artifacts on disk are kept.
func (uc *DashboardUseCase) DeleteVideo(ctx context.Context, videoID string) error {
	if err := uc.videos.Delete(ctx, videoID); err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	return nil
}

func (uc *DashboardUseCase) Evaluation(ctx context.Context, id int64) (*domain.Evaluation, error) {
	return uc.evaluations.GetByID(ctx, id)
}

func (uc *DashboardUseCase) EvaluationVersions(ctx context.Context, videoID, rubric string) ([]domain.Evaluation, error) {
	if rubric == "" {
		return uc.evaluations.ListByVideo(ctx, videoID)
	}
	return uc.evaluations.ListVersions(ctx, videoID, rubric)
}

func (uc *DashboardUseCase) LatestEvaluation(ctx context.Context, videoID, rubric string) (*domain.Evaluation, error) {
	return uc.evaluations.Latest(ctx, videoID, rubric)
}

func (uc *DashboardUseCase) Rubrics(ctx context.Context) ([]domain.Rubric, error) {
	return uc.rubrics.List(ctx, true)
}

func (uc *DashboardUseCase) RubricStats(ctx context.Context) ([]domain.RubricStatsRow, error) {
	return uc.reader.RubricCompletionStats(ctx)
}

func (uc *DashboardUseCase) Recent(ctx context.Context, limit int) ([]domain.RecentEvaluationRow, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return uc.reader.RecentEvaluations(ctx, limit)
}

// Costs combines the ledger with the database sum so drift between them is visible.
func (uc *DashboardUseCase) Costs(ctx context.Context) (domain.CostSummary, error) {
	summary := domain.CostSummary{ByModel: map[string]float64{}, GeneratedAt: uc.now().UTC()}
	if uc.ledger != nil {
		var err error
		summary, err = uc.ledger.Summary(ctx)
		if err != nil {
			return domain.CostSummary{}, fmt.Errorf("read cost ledger: %w", err)
		}
	}
	dbTotal, err := uc.evaluations.TotalCost(ctx, "")
	if err != nil {
		return domain.CostSummary{}, fmt.Errorf("sum cost: %w", err)
	}
	summary.DatabaseSum = dbTotal
	return summary, nil
}

func (uc *DashboardUseCase) ExportWorkbook(ctx context.Context, w io.Writer) error {
	videos, err := uc.reader.VideoStatus(ctx, "")
	if err != nil {
		return fmt.Errorf("read video status: %w", err)
	}
	stats, err := uc.reader.RubricCompletionStats(ctx)
	if err != nil {
		return fmt.Errorf("read rubric stats: %w", err)
	}
	recent, err := uc.reader.RecentEvaluations(ctx, 100)
	if err != nil {
		return fmt.Errorf("read recent evaluations: %w", err)
	}
	snapshot := domain.DashboardSnapshot{
		Videos:      videos,
		Rubrics:     stats,
		Recent:      recent,
		GeneratedAt: uc.now().UTC(),
	}
	if err := uc.exporter.WriteDashboard(w, snapshot); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
