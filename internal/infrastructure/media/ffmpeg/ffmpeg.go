package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

const (
	defaultMaxDimension = 1600
	stderrTailBytes     = 2048
)

// Processor shells out to ffmpeg and ffprobe for probing, frame and audio extraction.
type Processor struct {
	ffmpegPath   string
	ffprobePath  string
	maxDimension int
}

type Options struct {
	FFmpegPath   string
	FFprobePath  string
	MaxDimension int
}

// New resolves both binaries up front so a missing install fails at startup.
func New(opts Options) (*Processor, error) {
	ffmpegPath, err := lookPath(opts.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobePath, err := lookPath(opts.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}
	maxDim := opts.MaxDimension
	if maxDim <= 0 {
		maxDim = defaultMaxDimension
	}
	return &Processor{
		ffmpegPath:   ffmpegPath,
		ffprobePath:  ffprobePath,
		maxDimension: maxDim,
	}, nil
}

func lookPath(configured, name string) (string, error) {
	candidate := strings.TrimSpace(configured)
	if candidate == "" {
		candidate = name
	}
	path, err := exec.LookPath(candidate)
	if err != nil {
		return "", domain.WrapError(domain.ErrMissingDependency, "lookup "+name, fmt.Errorf("%s not found in PATH: %w", candidate, err))
	}
	return path, nil
}

func (p *Processor) runFFmpeg(ctx context.Context, operation string, args ...string) error {
	base := []string{"-y", "-hide_banner", "-loglevel", "error"}
	return run(ctx, operation, p.ffmpegPath, append(base, args...), nil)
}

func run(ctx context.Context, operation, bin string, args []string, stdout *bytes.Buffer) error {
	slog.Debug("exec_command", "operation", operation, "bin", bin, "args", args)

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if stdout != nil {
		cmd.Stdout = stdout
	}

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return domain.WrapError(domain.ErrTimeout, operation, ctxErr)
			}
			return fmt.Errorf("%s: %w", operation, ctxErr)
		}
		return fmt.Errorf("%s: %w: %s", operation, err, tail(stderr.String(), stderrTailBytes))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
