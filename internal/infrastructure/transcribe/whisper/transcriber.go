package whisper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/core/ports"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/resilience"
)

const operationTranscribe = resilience.OperationTranscribe

type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// Transcriber sends extracted audio to an OpenAI-compatible transcription endpoint.
type Transcriber struct {
	client   *openai.Client
	audio    ports.AudioExtractor
	model    string
	language string
	timeout  time.Duration
	executor *resilience.Executor
}

func New(cfg Config, audio ports.AudioExtractor, executor *resilience.Executor) *Transcriber {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Transcriber{
		client:   openai.NewClientWithConfig(clientCfg),
		audio:    audio,
		model:    model,
		language: cfg.Language,
		timeout:  timeout,
		executor: executor,
	}
}

func (t *Transcriber) Model() string {
	return t.model
}

func (t *Transcriber) Transcribe(ctx context.Context, videoPath string) (*domain.Transcript, error) {
	tmpDir, err := os.MkdirTemp("", "transcribe-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	audioPath := filepath.Join(tmpDir, "audio.wav")
	if err := t.audio.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return nil, fmt.Errorf("extract audio: %w", err)
	}

	var resp openai.AudioResponse
	err = t.executor.Execute(ctx, operationTranscribe, func(callCtx context.Context) error {
		reqCtx, cancel := context.WithTimeout(callCtx, t.timeout)
		defer cancel()

		out, callErr := t.client.CreateTranscription(reqCtx, openai.AudioRequest{
			Model:    t.model,
			FilePath: audioPath,
			Format:   openai.AudioResponseFormatVerboseJSON,
			Language: t.language,
		})
		if callErr != nil {
			return wrapTemporaryIfNeeded(callErr)
		}
		resp = out
		return nil
	}, classifyWhisperError)
	if err != nil {
		return nil, fmt.Errorf("transcribe %s: %w", filepath.Base(videoPath), err)
	}

	transcript := &domain.Transcript{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Duration: resp.Duration,
		Model:    t.model,
		Segments: make([]domain.TranscriptSegment, 0, len(resp.Segments)),
	}
	for _, seg := range resp.Segments {
		transcript.Segments = append(transcript.Segments, domain.TranscriptSegment{
			ID:    seg.ID,
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	return transcript, nil
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func wrapTemporaryIfNeeded(err error) error {
	if err == nil || errors.Is(err, domain.ErrTemporary) {
		return err
	}
	if code := statusCode(err); code != 0 {
		if isRetryableStatus(code) {
			return domain.WrapError(domain.ErrTemporary, "whisper request", err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	// transport level failures carry no status code
	return domain.WrapError(domain.ErrTemporary, "whisper request", err)
}

func classifyWhisperError(err error) resilience.ErrorClassification {
	if err == nil || errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, domain.ErrTemporary) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
}
