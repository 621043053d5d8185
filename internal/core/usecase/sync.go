package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/core/ports"
)

// SyncUseCase imports ingested videos and evaluation files that exist on disk
// but are missing from the database.
type SyncUseCase struct {
	workspace   ports.VideoWorkspace
	reports     ports.ReportStore
	videos      ports.VideoRepository
	evaluations ports.EvaluationRepository
	rubrics     ports.RubricCatalog
}

func NewSyncUseCase(
	workspace ports.VideoWorkspace,
	reports ports.ReportStore,
	videos ports.VideoRepository,
	evaluations ports.EvaluationRepository,
	rubrics ports.RubricCatalog,
) *SyncUseCase {
	return &SyncUseCase{
		workspace:   workspace,
		reports:     reports,
		videos:      videos,
		evaluations: evaluations,
		rubrics:     rubrics,
	}
}

// SyncAll walks every video directory. Per-item failures are collected in the stats
// and do not stop the walk; only listing the workspace itself is fatal.
func (uc *SyncUseCase) SyncAll(ctx context.Context, progress func(videoID string)) (domain.SyncStats, error) {
	stats := domain.SyncStats{}
	ids, err := uc.workspace.ListVideoIDs()
	if err != nil {
		return stats, fmt.Errorf("list video dirs: %w", err)
	}

	known := uc.rubricNames()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if progress != nil {
			progress(id)
		}

		meta, err := uc.workspace.ReadMetadata(id)
		if err != nil {
			if !domain.IsNotFound(err) {
				stats.Errors = append(stats.Errors, fmt.Sprintf("%s: read metadata: %v", id, err))
			}
			continue
		}
		stats.VideosFound++

		if err := uc.syncVideo(ctx, *meta, &stats); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", id, err))
			continue
		}
		uc.syncEvaluations(ctx, id, known, &stats)
	}

	slog.Info("sync_completed",
		"videos_found", stats.VideosFound,
		"videos_created", stats.VideosCreated,
		"videos_updated", stats.VideosUpdated,
		"evaluations_found", stats.EvaluationsFound,
		"evaluations_created", stats.EvaluationsCreated,
		"evaluations_skipped", stats.EvaluationsSkipped,
		"errors", len(stats.Errors),
	)
	return stats, nil
}

func (uc *SyncUseCase) syncVideo(ctx context.Context, meta domain.VideoMetadata, stats *domain.SyncStats) error {
	yt, err := uc.workspace.ReadYouTubeMetadata(meta.VideoID)
	if err != nil {
		if !domain.IsNotFound(err) {
			slog.Warn("youtube_metadata_unreadable", "video_id", meta.VideoID, "error", err)
		}
		yt = nil
	}
	video := videoFromArtifacts(meta, yt, uc.workspace.HasTranscript(meta.VideoID))
	created, err := uc.videos.Upsert(ctx, video)
	if err != nil {
		return fmt.Errorf("upsert video: %w", err)
	}
	if created {
		stats.VideosCreated++
	} else {
		stats.VideosUpdated++
	}
	return nil
}

func (uc *SyncUseCase) syncEvaluations(ctx context.Context, videoID string, known []string, stats *domain.SyncStats) {
	paths, err := uc.reports.List(videoID)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("%s: list evaluations: %v", videoID, err))
		return
	}
	for _, path := range paths {
		stats.EvaluationsFound++
		exists, err := uc.evaluations.ExistsByResultPath(ctx, path)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		if exists {
			stats.EvaluationsSkipped++
			continue
		}
		if err := uc.importReport(ctx, videoID, path, known); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		stats.EvaluationsCreated++
	}
}

// importReport records an evaluation file as a new completed version.
func (uc *SyncUseCase) importReport(ctx context.Context, videoID, path string, known []string) error {
	report, raw, err := uc.reports.Load(path)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	rubric := report.Rubric
	if rubric == "" {
		rubric = domain.RubricFromReportFileName(filepath.Base(path), known)
	}
	if report.VideoID == "" {
		report.VideoID = videoID
	}

	completedAt := report.Timestamp.Time
	if completedAt.IsZero() {
		completedAt = time.Now().UTC()
	}
	duration := report.PerformanceMetrics.ProcessingTimeSeconds
	startedAt := completedAt.Add(-time.Duration(duration * float64(time.Second)))

	eval := &domain.Evaluation{
		VideoID:    videoID,
		RubricName: rubric,
		Status:     domain.EvaluationPending,
		Evaluator:  report.Evaluator,
		ModelName:  report.Model,
	}
	if err := uc.evaluations.CreatePending(ctx, eval); err != nil {
		return fmt.Errorf("create pending evaluation: %w", err)
	}
	if err := uc.evaluations.Start(ctx, eval.ID, startedAt); err != nil {
		return fmt.Errorf("set status=in_progress: %w", err)
	}

	cost := 0.0
	if report.CostInfo != nil {
		cost = report.CostInfo.TotalCost
	}
	completion := domain.EvaluationCompletion{
		Evaluator:       report.Evaluator,
		ModelName:       report.Model,
		Cost:            cost,
		CompletedAt:     completedAt,
		DurationSeconds: duration,
		Result:          json.RawMessage(raw),
		Summary:         domain.SummarizeMarkdown(report.EvaluationMarkdown),
		ResultPath:      path,
	}
	if err := uc.evaluations.Complete(ctx, eval.ID, completion); err != nil {
		if failErr := uc.evaluations.Fail(ctx, eval.ID, err.Error(), completedAt, duration); failErr != nil {
			return fmt.Errorf("set status=completed: %w; mark failed status: %v", err, failErr)
		}
		return fmt.Errorf("set status=completed: %w", err)
	}
	return nil
}

func (uc *SyncUseCase) rubricNames() []string {
	rubrics := uc.rubrics.List(false)
	names := make([]string, 0, len(rubrics))
	for _, r := range rubrics {
		names = append(names, r.Name)
	}
	return names
}
