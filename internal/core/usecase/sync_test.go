package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

func TestSyncAllImportsVideosAndReports(t *testing.T) {
	ws := newWorkspaceFake()
	ws.seedVideo("clip", 10)
	ws.seedVideo("dQw4w9WgXcQ", 4)
	ws.youtube["dQw4w9WgXcQ"] = domain.YouTubeMetadata{VideoID: "dQw4w9WgXcQ", Title: "Remote", WebpageURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}
	ws.dirs["empty"] = true

	videos := newVideoRepoFake()
	videos.videos["clip"] = domain.Video{ID: "clip"}
	evals := newEvalRepoFake()
	reports := newReportStoreFake()

	at := time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC)
	withRubric := "/data/clip/evaluations/" + domain.ReportFileName("claude-api", "hook", at)
	reports.add(withRubric, domain.EvaluationReport{
		VideoID:            "clip",
		Evaluator:          "claude-api",
		Rubric:             "hook",
		Model:              "claude-sonnet-4-20250514",
		Timestamp:          domain.NewTimestamp(at),
		EvaluationMarkdown: "great hook",
		PerformanceMetrics: domain.PerformanceMetrics{ProcessingTimeSeconds: 12.5},
		CostInfo:           &domain.CostInfo{TotalCost: 0.25},
	})
	// Legacy files have no rubric field; the name comes from the file name.
	legacy := "/data/clip/evaluations/" + domain.ReportFileName("gemini", "pacing_flow", at.Add(time.Hour))
	reports.add(legacy, domain.EvaluationReport{VideoID: "clip", Evaluator: "gemini", Model: "models/gemini-2.5-flash", Timestamp: domain.NewTimestamp(at.Add(time.Hour))})

	uc := NewSyncUseCase(ws, reports, videos, evals, defaultCatalog())
	var seen []string
	stats, err := uc.SyncAll(context.Background(), func(id string) { seen = append(seen, id) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.VideosFound != 2 || stats.VideosCreated != 1 || stats.VideosUpdated != 1 {
		t.Fatalf("unexpected video stats: %+v", stats)
	}
	if stats.EvaluationsFound != 2 || stats.EvaluationsCreated != 2 || stats.EvaluationsSkipped != 0 || len(stats.Errors) != 0 {
		t.Fatalf("unexpected evaluation stats: %+v", stats)
	}
	if len(seen) != 3 {
		t.Fatalf("progress should fire per directory, got %v", seen)
	}
	if videos.videos["dQw4w9WgXcQ"].Title != "Remote" || videos.videos["dQw4w9WgXcQ"].YouTubeID != "dQw4w9WgXcQ" {
		t.Fatalf("youtube metadata not merged: %+v", videos.videos["dQw4w9WgXcQ"])
	}

	hook, err := evals.Latest(context.Background(), "clip", "hook")
	if err != nil {
		t.Fatalf("hook evaluation missing: %v", err)
	}
	if hook.Status != domain.EvaluationCompleted || hook.Cost != 0.25 || hook.ResultPath != withRubric ||
		hook.DurationSeconds != 12.5 || !hook.CompletedAt.Equal(at) || hook.Summary != "great hook" {
		t.Fatalf("unexpected imported evaluation: %+v", hook)
	}
	if !hook.StartedAt.Equal(at.Add(-12500 * time.Millisecond)) {
		t.Fatalf("started_at should be derived from duration, got %v", hook.StartedAt)
	}
	if _, err := evals.Latest(context.Background(), "clip", "pacing_flow"); err != nil {
		t.Fatalf("legacy report should map to pacing_flow: %v", err)
	}

	again, err := uc.SyncAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if again.EvaluationsCreated != 0 || again.EvaluationsSkipped != 2 || again.VideosUpdated != 2 {
		t.Fatalf("second sync should be idempotent: %+v", again)
	}
}

func TestSyncAllCollectsItemErrors(t *testing.T) {
	ws := newWorkspaceFake()
	ws.seedVideo("a", 2)
	ws.seedVideo("b", 2)
	videos := newVideoRepoFake()
	videos.upsertErr = errors.New("disk full")

	uc := NewSyncUseCase(ws, newReportStoreFake(), videos, newEvalRepoFake(), defaultCatalog())
	stats, err := uc.SyncAll(context.Background(), nil)
	if err != nil {
		t.Fatalf("item errors must not abort the sync: %v", err)
	}
	if stats.VideosFound != 2 || len(stats.Errors) != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSyncAllListFailure(t *testing.T) {
	ws := newWorkspaceFake()
	ws.listErr = errors.New("permission denied")

	uc := NewSyncUseCase(ws, newReportStoreFake(), newVideoRepoFake(), newEvalRepoFake(), defaultCatalog())
	if _, err := uc.SyncAll(context.Background(), nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSyncAllStopsOnCancel(t *testing.T) {
	ws := newWorkspaceFake()
	ws.seedVideo("a", 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	uc := NewSyncUseCase(ws, newReportStoreFake(), newVideoRepoFake(), newEvalRepoFake(), defaultCatalog())
	if _, err := uc.SyncAll(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}
