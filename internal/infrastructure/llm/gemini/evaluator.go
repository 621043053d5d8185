package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/resilience"
)

const (
	Name              = "gemini-api"
	operationGenerate = resilience.OperationGemini
)

type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	MaxOutputTokens   int32
	RequestsPerMinute float64
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Evaluator sends sampled frames inline with the prompt in a single GenerateContent call.
type Evaluator struct {
	cfg       Config
	generator contentGenerator
	executor  *resilience.Executor
}

func New(ctx context.Context, cfg Config, executor *resilience.Executor) (*Evaluator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrMissingDependency, "gemini", fmt.Errorf("GEMINI_API_KEY is not set"))
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newWithGenerator(cfg, client.Models, executor), nil
}

func newWithGenerator(cfg Config, generator contentGenerator, executor *resilience.Executor) *Evaluator {
	if cfg.Model == "" {
		cfg.Model = "models/gemini-2.5-flash"
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 16384
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	executor.LimitOperation(operationGenerate, cfg.RequestsPerMinute, 1)
	return &Evaluator{cfg: cfg, generator: generator, executor: executor}
}

func (e *Evaluator) Name() string         { return Name }
func (e *Evaluator) DefaultModel() string { return e.cfg.Model }

func (e *Evaluator) Evaluate(ctx context.Context, in domain.EvaluationInput) (*domain.EvaluationOutput, error) {
	model := e.cfg.Model
	if strings.TrimSpace(in.Model) != "" {
		model = in.Model
	}

	images, err := prompt.LoadImages(in.Frames)
	if err != nil {
		return nil, err
	}
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(prompt.BuildSinglePass(in)))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	var resp *genai.GenerateContentResponse
	err = e.executor.Execute(ctx, operationGenerate, func(callCtx context.Context) error {
		var callErr error
		resp, callErr = e.generator.GenerateContent(callCtx, model, contents, e.generateConfig())
		return wrapTemporaryIfNeeded(callErr)
	}, classifyGeminiError)
	if err != nil {
		return nil, err
	}
	return parseResponse(resp, model)
}

func (e *Evaluator) generateConfig() *genai.GenerateContentConfig {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	safety := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		safety = append(safety, &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockThresholdBlockNone})
	}
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(0.7)),
		MaxOutputTokens: e.cfg.MaxOutputTokens,
		SafetySettings:  safety,
	}
}

func parseResponse(resp *genai.GenerateContentResponse, model string) (*domain.EvaluationOutput, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("gemini blocked the prompt: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("gemini: no candidates in response")
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("gemini blocked the response for safety reasons")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("gemini: empty response (finish_reason=%s)", resp.Candidates[0].FinishReason)
	}

	out := &domain.EvaluationOutput{Markdown: text, Model: model}
	if resp.UsageMetadata != nil {
		out.Usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.Usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code, ok := apiErrorCode(err)
	if !ok {
		return domain.WrapError(domain.ErrTemporary, operationGenerate, err)
	}
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.WrapError(domain.ErrUnauthorized, operationGenerate, err)
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return domain.WrapError(domain.ErrTemporary, operationGenerate, err)
	}
	return err
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) || domain.IsKind(err, domain.ErrTemporary) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{}
}
