package gemini

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/resilience"
)

type fakeGenerator struct {
	responses []*genai.GenerateContentResponse
	errs      []error
	calls     int
	lastModel string
	lastParts int
	lastCfg   *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	i := f.calls
	f.calls++
	f.lastModel = model
	f.lastParts = len(contents[0].Parts)
	f.lastCfg = cfg
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return nil, err
	}
	return f.responses[i], nil
}

func textResponse(text string, reason genai.FinishReason) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      genai.NewContentFromText(text, genai.RoleModel),
			FinishReason: reason,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 5000, CandidatesTokenCount: 700},
	}
}

func fastExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
	})
}

func frames(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	out := make([]string, n)
	for i := range out {
		out[i] = filepath.Join(dir, "frame_"+string(rune('a'+i))+".jpg")
		if err := os.WriteFile(out[i], []byte{0xff}, 0o644); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	return out
}

func TestEvaluateSendsFramesWithSafetyDisabled(t *testing.T) {
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{textResponse("# Rating\nG", genai.FinishReasonStop)}}
	eval := newWithGenerator(Config{}, gen, fastExecutor())

	out, err := eval.Evaluate(context.Background(), domain.EvaluationInput{VideoID: "clip", Frames: frames(t, 3)})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if gen.lastModel != "models/gemini-2.5-flash" || gen.lastParts != 4 {
		t.Fatalf("unexpected request model=%s parts=%d", gen.lastModel, gen.lastParts)
	}
	if gen.lastCfg.MaxOutputTokens != 16384 || *gen.lastCfg.Temperature != 0.7 {
		t.Fatalf("unexpected generation config %+v", gen.lastCfg)
	}
	for _, s := range gen.lastCfg.SafetySettings {
		if s.Threshold != genai.HarmBlockThresholdBlockNone {
			t.Fatalf("expected BLOCK_NONE for %s", s.Category)
		}
	}
	if out.Markdown != "# Rating\nG" || out.Usage.InputTokens != 5000 || out.Usage.OutputTokens != 700 {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestEvaluateSafetyBlockIsError(t *testing.T) {
	gen := &fakeGenerator{responses: []*genai.GenerateContentResponse{textResponse("", genai.FinishReasonSafety)}}
	eval := newWithGenerator(Config{}, gen, fastExecutor())

	if _, err := eval.Evaluate(context.Background(), domain.EvaluationInput{Frames: frames(t, 1)}); err == nil {
		t.Fatalf("expected safety error")
	}
}

func TestEvaluateRetriesServerErrors(t *testing.T) {
	gen := &fakeGenerator{
		errs:      []error{genai.APIError{Code: 503, Message: "unavailable"}, nil},
		responses: []*genai.GenerateContentResponse{nil, textResponse("ok", genai.FinishReasonStop)},
	}
	eval := newWithGenerator(Config{}, gen, fastExecutor())

	if _, err := eval.Evaluate(context.Background(), domain.EvaluationInput{Frames: frames(t, 1)}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if gen.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", gen.calls)
	}
}

func TestEvaluateBadRequestIsNotRetried(t *testing.T) {
	gen := &fakeGenerator{errs: []error{genai.APIError{Code: 400, Message: "bad"}}}
	eval := newWithGenerator(Config{}, gen, fastExecutor())

	if _, err := eval.Evaluate(context.Background(), domain.EvaluationInput{Frames: frames(t, 1)}); err == nil {
		t.Fatalf("expected error")
	}
	if gen.calls != 1 {
		t.Fatalf("expected 1 call, got %d", gen.calls)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), Config{}, nil); !domain.IsKind(err, domain.ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency, got %v", err)
	}
}
