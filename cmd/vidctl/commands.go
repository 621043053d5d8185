package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kirillkom/video-evaluator/internal/bootstrap"
	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

const previewChars = 500

type evaluateOptions struct {
	request domain.EvaluationRequest
	dataDir string
}

func parseIngestFlags(args []string) (domain.IngestRequest, error) {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	source := fs.String("source", "", "local file path or YouTube URL")
	videoID := fs.String("video-id", "", "explicit video id")
	title := fs.String("title", "", "display title")
	interval := fs.Float64("frame-interval", 0, "seconds between extracted frames")
	mode := fs.String("mode", string(domain.IngestOverwrite), "overwrite, add_missing or new_version")
	skipTranscript := fs.Bool("skip-transcript", false, "do not transcribe audio")
	if err := fs.Parse(args); err != nil {
		return domain.IngestRequest{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	if *source == "" && fs.NArg() > 0 {
		*source = fs.Arg(0)
	}

	parsedMode, err := domain.ParseIngestMode(*mode)
	if err != nil {
		return domain.IngestRequest{}, err
	}
	return domain.IngestRequest{
		Source:               *source,
		VideoID:              *videoID,
		Title:                *title,
		FrameIntervalSeconds: *interval,
		Mode:                 parsedMode,
		SkipTranscript:       *skipTranscript,
	}, nil
}

func parseEvaluateFlags(args []string) (evaluateOptions, error) {
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	videoID := fs.String("video-id", "", "ingested video id")
	rubric := fs.String("rubric", "", "rubric name")
	evaluator := fs.String("evaluator", "", "ollama, claude or gemini")
	model := fs.String("model", "", "model override")
	sampling := fs.String("sampling", "", "even, all, first_n or last_n")
	maxFrames := fs.Int("max-frames", 0, "maximum frames sent to the evaluator")
	timeout := fs.Int("timeout", 0, "timeout in seconds")
	dataDir := fs.String("data-dir", "", "data directory override")
	if err := fs.Parse(args); err != nil {
		return evaluateOptions{}, fmt.Errorf("%w: %v", errUsage, err)
	}

	req := domain.EvaluationRequest{
		VideoID:        *videoID,
		Rubric:         *rubric,
		Evaluator:      *evaluator,
		Model:          *model,
		Sampling:       domain.SamplingStrategy(*sampling),
		MaxFrames:      *maxFrames,
		TimeoutSeconds: *timeout,
	}
	if err := req.Validate(); err != nil {
		return evaluateOptions{}, err
	}
	return evaluateOptions{request: req, dataDir: *dataDir}, nil
}

func parseExportFlags(args []string) (string, error) {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	out := fs.String("out", "", "output .xlsx path")
	if err := fs.Parse(args); err != nil {
		return "", fmt.Errorf("%w: %v", errUsage, err)
	}
	if *out == "" {
		*out = fmt.Sprintf("dashboard_%s.xlsx", time.Now().Format("20060102_150405"))
	}
	return *out, nil
}

func runIngest(ctx context.Context, app *bootstrap.App, req domain.IngestRequest, stdout io.Writer) error {
	result, err := app.Ingest.Ingest(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(stdout, result)
}

func runEvaluate(ctx context.Context, app *bootstrap.App, req domain.EvaluationRequest, stdout io.Writer) error {
	eval, report, err := app.Evaluate.EvaluateNow(ctx, req)
	if err != nil {
		return err
	}

	slog.Info("evaluation_done",
		"evaluation_id", eval.ID,
		"version", eval.Version,
		"processing_time_seconds", report.PerformanceMetrics.ProcessingTimeSeconds,
		"frames", fmt.Sprintf("%d/%d", report.Metadata.FramesAnalyzed, report.Metadata.TotalFramesAvailable),
		"result_path", eval.ResultPath,
	)
	if report.CostInfo != nil {
		slog.Info("evaluation_cost",
			"input_tokens", report.CostInfo.InputTokens,
			"output_tokens", report.CostInfo.OutputTokens,
			"cost_usd", report.CostInfo.TotalCost,
			"estimated", report.CostInfo.Estimated,
		)
	}

	fmt.Fprintln(stdout, preview(report.EvaluationMarkdown, previewChars))
	return nil
}

func runSync(ctx context.Context, app *bootstrap.App, stdout, stderr io.Writer) error {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(stderr),
		progressbar.OptionSetDescription("syncing"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
	)
	stats, err := app.Sync.SyncAll(ctx, func(videoID string) {
		bar.Describe(videoID)
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	fmt.Fprintln(stderr)
	if err != nil {
		return err
	}
	for _, msg := range stats.Errors {
		slog.Warn("sync_error", "error", msg)
	}
	return printJSON(stdout, stats)
}

func runCosts(ctx context.Context, app *bootstrap.App, stdout io.Writer) error {
	summary, err := app.Dashboard.Costs(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "MODEL\tCOST (USD)\n")
	models := make([]string, 0, len(summary.ByModel))
	for model := range summary.ByModel {
		models = append(models, model)
	}
	sort.Strings(models)
	for _, model := range models {
		fmt.Fprintf(tw, "%s\t%.4f\n", model, summary.ByModel[model])
	}
	fmt.Fprintf(tw, "TOTAL (%d evaluations)\t%.4f\n", summary.Evaluations, summary.TotalCost)
	fmt.Fprintf(tw, "DATABASE TOTAL\t%.4f\n", summary.DatabaseSum)
	return tw.Flush()
}

func runExport(ctx context.Context, app *bootstrap.App, out string, stdout io.Writer) error {
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := app.Dashboard.ExportWorkbook(ctx, f); err != nil {
		_ = f.Close()
		_ = os.Remove(out)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", out, err)
	}
	fmt.Fprintln(stdout, out)
	return nil
}

func runRubrics(ctx context.Context, app *bootstrap.App, stdout io.Writer) error {
	stats, err := app.Dashboard.RubricStats(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]domain.RubricStatsRow, len(stats))
	for _, row := range stats {
		byName[row.RubricName] = row
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tDISPLAY NAME\tCATEGORY\tCOMPLETED\n")
	for _, r := range app.Catalog.List(true) {
		row := byName[r.Name]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d (%.0f%%)\n", r.Name, r.DisplayName, r.Category, row.VideosCompleted, row.TotalVideos, row.CompletionPercent())
	}
	return tw.Flush()
}

func preview(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
