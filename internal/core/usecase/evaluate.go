package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/core/ports"
)

// EvaluationDefaults apply when a request leaves a field empty.
type EvaluationDefaults struct {
	Evaluator string
	Sampling  domain.SamplingStrategy
	MaxFrames int
	Timeout   time.Duration
}

type EvaluateVideoUseCase struct {
	evaluations ports.EvaluationRepository
	workspace   ports.VideoWorkspace
	reports     ports.ReportStore
	rubrics     ports.RubricCatalog
	evaluators  map[string]ports.VideoEvaluator
	ledger      ports.CostLedger
	queue       ports.MessageQueue
	observer    ports.EvaluationObserver
	defaults    EvaluationDefaults
	now         func() time.Time
}

// NewEvaluateVideoUseCase builds the evaluation pipeline. evaluators is keyed by the
// short name callers use ("ollama", "claude", "gemini"); ledger, queue and observer may be nil.
func NewEvaluateVideoUseCase(
	evaluations ports.EvaluationRepository,
	workspace ports.VideoWorkspace,
	reports ports.ReportStore,
	rubrics ports.RubricCatalog,
	evaluators map[string]ports.VideoEvaluator,
	ledger ports.CostLedger,
	queue ports.MessageQueue,
	observer ports.EvaluationObserver,
	defaults EvaluationDefaults,
) *EvaluateVideoUseCase {
	if defaults.Sampling == "" {
		defaults.Sampling = domain.SamplingEven
	}
	if defaults.MaxFrames <= 0 {
		defaults.MaxFrames = 20
	}
	if defaults.Timeout <= 0 {
		defaults.Timeout = 30 * time.Minute
	}
	return &EvaluateVideoUseCase{
		evaluations: evaluations,
		workspace:   workspace,
		reports:     reports,
		rubrics:     rubrics,
		evaluators:  evaluators,
		ledger:      ledger,
		queue:       queue,
		observer:    observer,
		defaults:    defaults,
		now:         time.Now,
	}
}

// Evaluators lists the configured evaluator keys in sorted order.
func (uc *EvaluateVideoUseCase) Evaluators() []string {
	out := make([]string, 0, len(uc.evaluators))
	for key := range uc.evaluators {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Submit records a pending evaluation and publishes it for a worker.
func (uc *EvaluateVideoUseCase) Submit(ctx context.Context, req domain.EvaluationRequest) (*domain.Evaluation, error) {
	if uc.queue == nil {
		return nil, domain.WrapError(domain.ErrMissingDependency, "submit evaluation", errors.New("queue is not configured"))
	}
	eval, req, err := uc.createPending(ctx, req)
	if err != nil {
		return nil, err
	}

	job := domain.EvaluationJob{EvaluationID: eval.ID, Request: req, EnqueuedAt: uc.now().UTC()}
	if err := uc.queue.PublishEvaluation(ctx, job); err != nil {
		publishErr := fmt.Errorf("publish evaluation job: %w", err)
		if failErr := uc.abandon(ctx, eval.ID, publishErr); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", publishErr, failErr)
		}
		return nil, publishErr
	}
	slog.Info("evaluation_submitted", "evaluation_id", eval.ID, "video_id", eval.VideoID, "rubric", eval.RubricName, "version", eval.Version)
	return eval, nil
}

// EvaluateNow creates the pending row and runs it in the caller's goroutine.
func (uc *EvaluateVideoUseCase) EvaluateNow(ctx context.Context, req domain.EvaluationRequest) (*domain.Evaluation, *domain.EvaluationReport, error) {
	eval, req, err := uc.createPending(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	report, runErr := uc.Run(ctx, domain.EvaluationJob{EvaluationID: eval.ID, Request: req, EnqueuedAt: uc.now().UTC()})

	stored, err := uc.evaluations.GetByID(context.WithoutCancel(ctx), eval.ID)
	if err != nil {
		stored = eval
	}
	return stored, report, runErr
}

// Run drives one pending evaluation to completed or failed.
func (uc *EvaluateVideoUseCase) Run(ctx context.Context, job domain.EvaluationJob) (*domain.EvaluationReport, error) {
	started := uc.now()
	if err := uc.evaluations.Start(ctx, job.EvaluationID, started.UTC()); err != nil {
		return nil, fmt.Errorf("set status=in_progress: %w", err)
	}

	evaluatorName := job.Request.Evaluator
	if ev, _, err := uc.resolveEvaluator(job.Request.Evaluator); err == nil {
		evaluatorName = ev.Name()
	}
	if uc.observer != nil {
		uc.observer.EvaluationStarted(evaluatorName)
	}
	slog.Info("evaluation_started",
		"evaluation_id", job.EvaluationID,
		"video_id", job.Request.VideoID,
		"rubric", job.Request.Rubric,
		"evaluator", evaluatorName,
	)

	report, path, err := uc.execute(ctx, job.Request, started)
	// Status writes must land even when the run was cancelled.
	persistCtx := context.WithoutCancel(ctx)
	if err != nil {
		uc.observe(evaluatorName, domain.EvaluationFailed, started, 0, domain.TokenUsage{}, 0)
		slog.Error("evaluation_failed", "evaluation_id", job.EvaluationID, "video_id", job.Request.VideoID, "error", err)
		if failErr := uc.markFailed(persistCtx, job.EvaluationID, started, err); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return nil, err
	}

	completion, err := uc.completion(report, path, started)
	if err == nil {
		err = uc.evaluations.Complete(persistCtx, job.EvaluationID, completion)
	}
	if err != nil {
		err = fmt.Errorf("set status=completed: %w", err)
		if failErr := uc.markFailed(persistCtx, job.EvaluationID, started, err); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return nil, err
	}

	usage := domain.TokenUsage{}
	cost := 0.0
	if report.CostInfo != nil {
		usage = domain.TokenUsage{InputTokens: report.CostInfo.InputTokens, OutputTokens: report.CostInfo.OutputTokens}
		cost = report.CostInfo.TotalCost
	}
	uc.observe(report.Evaluator, domain.EvaluationCompleted, started, report.Metadata.FramesAnalyzed, usage, cost)
	slog.Info("evaluation_completed",
		"evaluation_id", job.EvaluationID,
		"video_id", report.VideoID,
		"rubric", report.Rubric,
		"model", report.Model,
		"frames", report.Metadata.FramesAnalyzed,
		"cost_usd", cost,
		"duration_seconds", completion.DurationSeconds,
		"result_path", path,
	)
	return report, nil
}

func (uc *EvaluateVideoUseCase) createPending(ctx context.Context, req domain.EvaluationRequest) (*domain.Evaluation, domain.EvaluationRequest, error) {
	req.VideoID = strings.TrimSpace(req.VideoID)
	req.Rubric = strings.TrimSpace(req.Rubric)
	if err := req.Validate(); err != nil {
		return nil, req, err
	}
	evaluator, key, err := uc.resolveEvaluator(req.Evaluator)
	if err != nil {
		return nil, req, err
	}
	req.Evaluator = key
	if _, err := uc.rubrics.Get(req.Rubric); err != nil {
		return nil, req, fmt.Errorf("resolve rubric: %w", err)
	}
	if !uc.workspace.Exists(req.VideoID) {
		return nil, req, domain.WrapError(domain.ErrVideoNotFound, "resolve video", fmt.Errorf("no artifacts for %q", req.VideoID))
	}

	model := req.Model
	if model == "" {
		model = evaluator.DefaultModel()
	}
	eval := &domain.Evaluation{
		VideoID:    req.VideoID,
		RubricName: req.Rubric,
		Status:     domain.EvaluationPending,
		Evaluator:  evaluator.Name(),
		ModelName:  model,
	}
	if err := uc.evaluations.CreatePending(ctx, eval); err != nil {
		return nil, req, fmt.Errorf("create pending evaluation: %w", err)
	}
	return eval, req, nil
}

func (uc *EvaluateVideoUseCase) execute(ctx context.Context, req domain.EvaluationRequest, started time.Time) (*domain.EvaluationReport, string, error) {
	evaluator, _, err := uc.resolveEvaluator(req.Evaluator)
	if err != nil {
		return nil, "", err
	}
	rubric, err := uc.rubrics.Get(req.Rubric)
	if err != nil {
		return nil, "", fmt.Errorf("resolve rubric: %w", err)
	}

	meta, err := uc.workspace.ReadMetadata(req.VideoID)
	if err != nil {
		return nil, "", fmt.Errorf("read metadata: %w", err)
	}
	allFrames, err := uc.workspace.ListFrames(req.VideoID)
	if err != nil {
		return nil, "", fmt.Errorf("list frames: %w", err)
	}
	transcript := ""
	if uc.workspace.HasTranscript(req.VideoID) {
		transcript, err = uc.workspace.ReadTranscript(req.VideoID)
		if err != nil {
			return nil, "", fmt.Errorf("read transcript: %w", err)
		}
	}

	strategy := req.Sampling
	if strategy == "" {
		strategy = uc.defaults.Sampling
	}
	maxFrames := effectiveMaxFrames(req.MaxFrames, uc.defaults.MaxFrames, evaluator)
	frames, err := domain.SampleFrames(allFrames, strategy, maxFrames)
	if err != nil {
		return nil, "", err
	}
	frames, err = capFrames(frames, evaluator)
	if err != nil {
		return nil, "", err
	}

	timeout := uc.defaults.Timeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	input := domain.EvaluationInput{
		VideoID:     req.VideoID,
		Rubric:      rubric,
		Model:       req.Model,
		Frames:      frames,
		TotalFrames: len(allFrames),
		Transcript:  transcript,
		Metadata:    *meta,
	}
	out, err := evaluator.Evaluate(runCtx, input)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, "", domain.WrapError(domain.ErrTimeout, "evaluate video", fmt.Errorf("no result after %s: %w", timeout, err))
		}
		return nil, "", fmt.Errorf("evaluate video: %w", err)
	}

	model := out.Model
	if model == "" {
		model = req.Model
	}
	if model == "" {
		model = evaluator.DefaultModel()
	}
	usage := out.Usage
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		usage = domain.TokenUsage{
			InputTokens:  domain.EstimateTokens(rubric.Prompt + transcript),
			OutputTokens: domain.EstimateTokens(out.Markdown),
			Estimated:    true,
		}
	}
	cost := domain.CalculateCost(model, usage.InputTokens, usage.OutputTokens)
	finished := uc.now()

	report := domain.EvaluationReport{
		VideoID:            req.VideoID,
		Evaluator:          evaluator.Name(),
		Rubric:             rubric.Name,
		Model:              model,
		Timestamp:          domain.NewTimestamp(finished),
		EvaluationMarkdown: out.Markdown,
		Metadata: domain.ReportMetadata{
			VideoMetadata:        *meta,
			FramesAnalyzed:       len(frames),
			TotalFramesAvailable: len(allFrames),
			SamplingStrategy:     strategy,
			TranscriptWordCount:  meta.TranscriptWordCount,
			BatchSize:            out.BatchSize,
			NumBatches:           out.Batches,
			VisionModel:          out.VisionModel,
			SynthesisModel:       out.SynthesisModel,
		},
		PerformanceMetrics: domain.PerformanceMetrics{
			ProcessingTimeSeconds: roundSeconds(finished.Sub(started)),
			FramesProcessed:       len(frames),
			BatchesProcessed:      out.Batches,
		},
		CostInfo: &domain.CostInfo{
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			TotalCost:    cost,
			Estimated:    usage.Estimated,
		},
	}

	path, err := uc.reports.Save(report)
	if err != nil {
		return nil, "", fmt.Errorf("save report: %w", err)
	}
	uc.recordCost(ctx, report)
	return &report, path, nil
}

func (uc *EvaluateVideoUseCase) recordCost(ctx context.Context, report domain.EvaluationReport) {
	if uc.ledger == nil || report.CostInfo == nil {
		return
	}
	entry := domain.CostEntry{
		Model:        report.Model,
		VideoID:      report.VideoID,
		Rubric:       report.Rubric,
		InputTokens:  report.CostInfo.InputTokens,
		OutputTokens: report.CostInfo.OutputTokens,
		Cost:         report.CostInfo.TotalCost,
		Timestamp:    report.Timestamp,
	}
	if err := uc.ledger.Record(ctx, entry); err != nil {
		slog.Warn("cost_record_failed", "video_id", report.VideoID, "error", err)
	}
}

func (uc *EvaluateVideoUseCase) completion(report *domain.EvaluationReport, path string, started time.Time) (domain.EvaluationCompletion, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return domain.EvaluationCompletion{}, fmt.Errorf("encode report: %w", err)
	}
	cost := 0.0
	if report.CostInfo != nil {
		cost = report.CostInfo.TotalCost
	}
	completedAt := uc.now()
	return domain.EvaluationCompletion{
		Evaluator:       report.Evaluator,
		ModelName:       report.Model,
		Cost:            cost,
		CompletedAt:     completedAt.UTC(),
		DurationSeconds: roundSeconds(completedAt.Sub(started)),
		Result:          raw,
		Summary:         domain.SummarizeMarkdown(report.EvaluationMarkdown),
		ResultPath:      path,
	}, nil
}

// resolveEvaluator accepts the registry key or the evaluator's own name.
func (uc *EvaluateVideoUseCase) resolveEvaluator(requested string) (ports.VideoEvaluator, string, error) {
	key := strings.ToLower(strings.TrimSpace(requested))
	if key == "" {
		key = uc.defaults.Evaluator
	}
	if ev, ok := uc.evaluators[key]; ok {
		return ev, key, nil
	}
	for k, ev := range uc.evaluators {
		if ev.Name() == key {
			return ev, k, nil
		}
	}
	return nil, "", domain.WrapError(
		domain.ErrMissingDependency,
		"resolve evaluator",
		fmt.Errorf("evaluator %q is not configured (available: %s)", key, strings.Join(uc.Evaluators(), ", ")),
	)
}

func (uc *EvaluateVideoUseCase) markFailed(ctx context.Context, id int64, started time.Time, runErr error) error {
	at := uc.now()
	return uc.evaluations.Fail(ctx, id, runErr.Error(), at.UTC(), roundSeconds(at.Sub(started)))
}

// abandon moves a pending row through in_progress to failed so it is not left pending forever.
func (uc *EvaluateVideoUseCase) abandon(ctx context.Context, id int64, cause error) error {
	started := uc.now()
	if err := uc.evaluations.Start(ctx, id, started.UTC()); err != nil {
		return err
	}
	return uc.markFailed(ctx, id, started, cause)
}

func (uc *EvaluateVideoUseCase) observe(evaluator string, status domain.EvaluationStatus, started time.Time, frames int, usage domain.TokenUsage, cost float64) {
	if uc.observer == nil {
		return
	}
	uc.observer.EvaluationFinished(evaluator, string(status), uc.now().Sub(started), frames, usage, cost)
}

// effectiveMaxFrames applies the request, then the default, then the evaluator's hard cap.
func effectiveMaxFrames(requested, fallback int, evaluator ports.VideoEvaluator) int {
	limit := requested
	if limit <= 0 {
		limit = fallback
	}
	if limiter, ok := evaluator.(ports.FrameLimiter); ok {
		if hard := limiter.MaxFrames(); hard > 0 && (limit <= 0 || limit > hard) {
			limit = hard
		}
	}
	return limit
}

// capFrames resamples evenly down to the evaluator's hard image limit.
func capFrames(frames []string, evaluator ports.VideoEvaluator) ([]string, error) {
	limiter, ok := evaluator.(ports.FrameLimiter)
	if !ok {
		return frames, nil
	}
	hard := limiter.MaxFrames()
	if hard <= 0 || len(frames) <= hard {
		return frames, nil
	}
	return domain.SampleFrames(frames, domain.SamplingEven, hard)
}

func roundSeconds(d time.Duration) float64 {
	return float64(d.Round(10*time.Millisecond)) / float64(time.Second)
}
