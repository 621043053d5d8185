package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DB_DRIVER", "DEFAULT_EVALUATOR", "DEFAULT_MAX_FRAMES", "FRAME_INTERVAL_SECONDS", "OLLAMA_CHECK_MODELS", "NATS_EVALUATE_SUBJECT", "API_MAX_INFLIGHT", "ANTHROPIC_MODEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.DBDriver != "sqlite" {
		t.Fatalf("expected default driver sqlite, got %q", cfg.DBDriver)
	}
	if cfg.DefaultEvaluator != "ollama" {
		t.Fatalf("expected default evaluator ollama, got %q", cfg.DefaultEvaluator)
	}
	if cfg.DefaultMaxFrames != 20 {
		t.Fatalf("expected default max frames 20, got %d", cfg.DefaultMaxFrames)
	}
	if cfg.FrameInterval != 2 {
		t.Fatalf("expected default frame interval 2, got %v", cfg.FrameInterval)
	}
	if !cfg.OllamaCheckModels {
		t.Fatalf("expected model check enabled by default")
	}
	if cfg.EvaluateSubject != "videos.evaluate" {
		t.Fatalf("expected default evaluate subject, got %q", cfg.EvaluateSubject)
	}
	if cfg.APIMaxInflight != 64 {
		t.Fatalf("expected default inflight cap 64, got %d", cfg.APIMaxInflight)
	}
	if cost := domain.CalculateCost(cfg.AnthropicModel, 1_000_000, 1_000_000); cost <= 0 {
		t.Fatalf("expected default claude model %q to be priced, got %v", cfg.AnthropicModel, cost)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DEFAULT_MAX_FRAMES", "40")
	t.Setenv("FRAME_INTERVAL_SECONDS", "0.5")
	t.Setenv("OLLAMA_CHECK_MODELS", "false")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")

	cfg := Load()
	if cfg.DBDriver != "postgres" {
		t.Fatalf("expected driver override, got %q", cfg.DBDriver)
	}
	if cfg.DefaultMaxFrames != 40 {
		t.Fatalf("expected max frames 40, got %d", cfg.DefaultMaxFrames)
	}
	if cfg.FrameInterval != 0.5 {
		t.Fatalf("expected frame interval 0.5, got %v", cfg.FrameInterval)
	}
	if cfg.OllamaCheckModels {
		t.Fatalf("expected model check disabled")
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rate 2.5, got %v", cfg.APIRateLimitRPS)
	}
}

func TestLoadFallsBackOnMalformedNumbers(t *testing.T) {
	t.Setenv("DEFAULT_MAX_FRAMES", "many")
	t.Setenv("FRAME_INTERVAL_SECONDS", "fast")

	cfg := Load()
	if cfg.DefaultMaxFrames != 20 || cfg.FrameInterval != 2 {
		t.Fatalf("expected fallbacks, got %d and %v", cfg.DefaultMaxFrames, cfg.FrameInterval)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("GEMINI_MODEL=models/gemini-2.5-pro\nDEFAULT_EVALUATOR=claude\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("GEMINI_MODEL", "")
	os.Unsetenv("GEMINI_MODEL")
	t.Setenv("DEFAULT_EVALUATOR", "gemini")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := Load()
	if cfg.GeminiModel != "models/gemini-2.5-pro" {
		t.Fatalf("expected value from file, got %q", cfg.GeminiModel)
	}
	if cfg.DefaultEvaluator != "gemini" {
		t.Fatalf("environment must win over the file, got %q", cfg.DefaultEvaluator)
	}
}
