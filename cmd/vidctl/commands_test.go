package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

func TestParseEvaluateFlags(t *testing.T) {
	opts, err := parseEvaluateFlags([]string{
		"--video-id", "clip_01",
		"--rubric", "hook",
		"--evaluator", "claude",
		"--sampling", "first_n",
		"--max-frames", "12",
		"--timeout", "90",
		"--data-dir", "/tmp/videos",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := opts.request
	if req.VideoID != "clip_01" || req.Rubric != "hook" || req.Evaluator != "claude" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.Sampling != domain.SamplingFirstN || req.MaxFrames != 12 || req.TimeoutSeconds != 90 {
		t.Fatalf("unexpected request: %+v", req)
	}
	if opts.dataDir != "/tmp/videos" {
		t.Fatalf("unexpected data dir %q", opts.dataDir)
	}
}

func TestParseEvaluateFlagsRejectsBadInput(t *testing.T) {
	if _, err := parseEvaluateFlags([]string{"--video-id", "clip_01"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input without rubric, got %v", err)
	}
	if _, err := parseEvaluateFlags([]string{"--video-id", "clip_01", "--rubric", "hook", "--sampling", "random"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for sampling, got %v", err)
	}
	if _, err := parseEvaluateFlags([]string{"--bogus"}); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestParseIngestFlags(t *testing.T) {
	req, err := parseIngestFlags([]string{"--mode", "add_missing", "--frame-interval", "1.5", "https://youtu.be/abc123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Source != "https://youtu.be/abc123" || req.Mode != domain.IngestAddMissing || req.FrameIntervalSeconds != 1.5 {
		t.Fatalf("unexpected request: %+v", req)
	}

	if _, err := parseIngestFlags([]string{"--source", "a.mp4", "--mode", "replace"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid mode error, got %v", err)
	}
}

func TestParseExportFlagsDefaultsName(t *testing.T) {
	out, err := parseExportFlags(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out, "dashboard_") || !strings.HasSuffix(out, ".xlsx") {
		t.Fatalf("unexpected default name %q", out)
	}
}

func TestPreviewTruncatesOnRunes(t *testing.T) {
	if got := preview("  short  ", 500); got != "short" {
		t.Fatalf("unexpected preview %q", got)
	}
	long := strings.Repeat("é", 600)
	got := preview(long, 500)
	if !strings.HasSuffix(got, "...") || len([]rune(got)) != 503 {
		t.Fatalf("unexpected preview length %d", len([]rune(got)))
	}
}

func TestRunWithoutCommandIsUsage(t *testing.T) {
	if err := run(context.Background(), nil, io.Discard, io.Discard); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}
