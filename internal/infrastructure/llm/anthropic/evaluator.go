package anthropic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/resilience"
)

const (
	Name             = "claude-api"
	apiVersion       = "2023-06-01"
	operationMessage = resilience.OperationAnthropic
	// The Messages API rejects requests with more than 100 images.
	maxImages = 100
)

type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// Evaluator sends every sampled frame plus the transcript in one Messages API call.
type Evaluator struct {
	cfg      Config
	http     *resty.Client
	executor *resilience.Executor
}

// APIStatusError carries a non-2xx answer from the Messages API.
type APIStatusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIStatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("anthropic status %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("anthropic status %d: %s", e.StatusCode, e.Message)
}

func New(cfg Config, executor *resilience.Executor) (*Evaluator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrMissingDependency, "anthropic", fmt.Errorf("ANTHROPIC_API_KEY is not set"))
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", apiVersion).
		SetHeader("Content-Type", "application/json")

	return &Evaluator{cfg: cfg, http: client, executor: executor}, nil
}

func (e *Evaluator) Name() string         { return Name }
func (e *Evaluator) DefaultModel() string { return e.cfg.Model }
func (e *Evaluator) MaxFrames() int       { return maxImages }

func (e *Evaluator) Evaluate(ctx context.Context, in domain.EvaluationInput) (*domain.EvaluationOutput, error) {
	model := e.cfg.Model
	if strings.TrimSpace(in.Model) != "" {
		model = in.Model
	}

	frames := in.Frames
	if len(frames) > maxImages {
		frames, _ = domain.SampleFrames(frames, domain.SamplingEven, maxImages)
		slog.Warn("anthropic_frames_capped", "video_id", in.VideoID, "requested", len(in.Frames), "sent", len(frames))
	}
	images, err := prompt.LoadImages(frames)
	if err != nil {
		return nil, err
	}

	content := make([]map[string]any, 0, len(images)+1)
	for _, img := range images {
		content = append(content, map[string]any{
			"type": "image",
			"source": map[string]string{
				"type":       "base64",
				"media_type": img.MIMEType,
				"data":       img.Base64(),
			},
		})
	}
	in.Frames = frames
	content = append(content, map[string]any{"type": "text", "text": prompt.BuildSinglePass(in)})

	body := map[string]any{
		"model":      model,
		"max_tokens": e.cfg.MaxTokens,
		"messages":   []map[string]any{{"role": "user", "content": content}},
	}

	var raw []byte
	err = e.executor.Execute(ctx, operationMessage, func(callCtx context.Context) error {
		resp, reqErr := e.http.R().SetContext(callCtx).SetBody(body).Post("/v1/messages")
		if reqErr != nil {
			return wrapTemporaryIfNeeded(fmt.Errorf("anthropic request: %w", reqErr))
		}
		if resp.IsError() {
			return wrapTemporaryIfNeeded(statusError(resp.StatusCode(), resp.Body()))
		}
		raw = resp.Body()
		return nil
	}, classifyAnthropicError)
	if err != nil {
		return nil, err
	}

	return parseMessage(raw, model)
}

func parseMessage(raw []byte, model string) (*domain.EvaluationOutput, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("anthropic: invalid JSON response")
	}
	doc := gjson.ParseBytes(raw)

	var text strings.Builder
	doc.Get("content").ForEach(func(_, block gjson.Result) bool {
		if block.Get("type").String() == "text" {
			text.WriteString(block.Get("text").String())
		}
		return true
	})
	markdown := strings.TrimSpace(text.String())
	if markdown == "" {
		return nil, fmt.Errorf("anthropic: response has no text content (stop_reason=%s)", doc.Get("stop_reason").String())
	}
	if got := doc.Get("model").String(); got != "" {
		model = got
	}

	return &domain.EvaluationOutput{
		Markdown: markdown,
		Model:    model,
		Usage: domain.TokenUsage{
			InputTokens:  int(doc.Get("usage.input_tokens").Int()),
			OutputTokens: int(doc.Get("usage.output_tokens").Int()),
		},
	}, nil
}

func statusError(code int, body []byte) *APIStatusError {
	out := &APIStatusError{StatusCode: code}
	if gjson.ValidBytes(body) {
		out.Type = gjson.GetBytes(body, "error.type").String()
		out.Message = gjson.GetBytes(body, "error.message").String()
	}
	if out.Message == "" {
		out.Message = strings.TrimSpace(string(body))
	}
	return out
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil {
		return nil
	}
	var statusErr *APIStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
			return domain.WrapError(domain.ErrUnauthorized, operationMessage, err)
		case isRetryableStatus(statusErr.StatusCode):
			return domain.WrapError(domain.ErrTemporary, operationMessage, err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.WrapError(domain.ErrTemporary, operationMessage, err)
}

func classifyAnthropicError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) || domain.IsKind(err, domain.ErrTemporary) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{}
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, 529:
		return true
	default:
		return false
	}
}
