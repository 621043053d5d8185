package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/batching"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/llm/prompt"
)

type EvaluatorConfig struct {
	VisionModel    string
	SynthesisModel string
	BatchSize      int
}

// Evaluator runs batch-then-synthesize: a vision model reads small groups of
// frames, then a text model merges the partial analyses with the transcript.
type Evaluator struct {
	client  *Client
	cfg     EvaluatorConfig
	batcher *batching.Batcher
}

func NewEvaluator(client *Client, cfg EvaluatorConfig) *Evaluator {
	if cfg.VisionModel == "" {
		cfg.VisionModel = "llava:34b"
	}
	if cfg.SynthesisModel == "" {
		cfg.SynthesisModel = "llama3.1:8b-instruct"
	}
	batcher := batching.NewBatcher(cfg.BatchSize)
	cfg.BatchSize = batcher.Size
	return &Evaluator{client: client, cfg: cfg, batcher: batcher}
}

func (e *Evaluator) Name() string {
	base, _, _ := strings.Cut(e.cfg.VisionModel, ":")
	return "ollama-" + base
}

func (e *Evaluator) DefaultModel() string {
	return e.cfg.VisionModel
}

// CheckModels warns about models that have not been pulled yet.
func (e *Evaluator) CheckModels(ctx context.Context) error {
	models, err := e.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("ollama server unreachable: %w", err)
	}
	available := make(map[string]bool, len(models))
	for _, m := range models {
		available[m] = true
	}
	for _, want := range []string{e.cfg.VisionModel, e.cfg.SynthesisModel} {
		if !available[want] {
			slog.Warn("ollama_model_missing", "model", want, "hint", "ollama pull "+want)
		}
	}
	return nil
}

func (e *Evaluator) Evaluate(ctx context.Context, in domain.EvaluationInput) (*domain.EvaluationOutput, error) {
	vision := e.cfg.VisionModel
	if strings.TrimSpace(in.Model) != "" {
		vision = in.Model
	}

	groups := e.batcher.Split(in.Frames)
	if len(groups) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ollama evaluate", fmt.Errorf("no frames to analyze"))
	}

	out := &domain.EvaluationOutput{
		Model:          vision,
		BatchSize:      e.cfg.BatchSize,
		VisionModel:    vision,
		SynthesisModel: e.cfg.SynthesisModel,
	}

	partials := make([]prompt.Batch, 0, len(groups))
	for i, group := range groups {
		number := i + 1
		started := time.Now()
		analysis, usage, err := e.analyzeBatch(ctx, vision, number, len(groups), group, in.Metadata.DurationSeconds)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			slog.Error("batch_failed", "video_id", in.VideoID, "batch", number, "batches", len(groups), "error", err)
			analysis = fmt.Sprintf("[Batch analysis failed: %v]", err)
		} else {
			slog.Info("batch_completed",
				"video_id", in.VideoID,
				"batch", number,
				"batches", len(groups),
				"frames", len(group),
				"duration_ms", time.Since(started).Milliseconds(),
			)
		}
		out.Usage.InputTokens += usage.InputTokens
		out.Usage.OutputTokens += usage.OutputTokens
		partials = append(partials, prompt.Batch{Number: number, Frames: group, Analysis: analysis})
	}
	out.Batches = len(partials)

	synthesisPrompt := prompt.BuildSynthesis(in, partials)
	slog.Info("synthesis_started", "video_id", in.VideoID, "model", e.cfg.SynthesisModel, "prompt_chars", len(synthesisPrompt))
	res, err := e.client.chat(ctx, e.cfg.SynthesisModel, synthesisPrompt, nil)
	if err != nil {
		return nil, fmt.Errorf("ollama synthesis: %w", err)
	}
	if res.Text == "" {
		return nil, fmt.Errorf("ollama synthesis: empty response from %s", e.cfg.SynthesisModel)
	}
	out.Markdown = res.Text
	out.Usage.InputTokens += res.InputTokens
	out.Usage.OutputTokens += res.OutputTokens
	return out, nil
}

func (e *Evaluator) analyzeBatch(ctx context.Context, model string, number, total int, frames []string, duration float64) (string, domain.TokenUsage, error) {
	images, err := prompt.LoadImages(frames)
	if err != nil {
		return "", domain.TokenUsage{}, err
	}
	encoded := make([]string, 0, len(images))
	for _, img := range images {
		encoded = append(encoded, img.Base64())
	}

	res, err := e.client.chat(ctx, model, prompt.BuildBatch(number, total, len(frames), duration), encoded)
	if err != nil {
		return "", domain.TokenUsage{}, err
	}
	return res.Text, domain.TokenUsage{InputTokens: res.InputTokens, OutputTokens: res.OutputTokens}, nil
}
