package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const rawFramePrefix = "raw_"

// ExtractFrames writes one JPEG every intervalSeconds into outDir, scaled so that
// neither side exceeds the configured maximum, and returns the sorted final paths.
func (p *Processor) ExtractFrames(ctx context.Context, src, outDir string, intervalSeconds float64) ([]string, error) {
	if intervalSeconds <= 0 {
		intervalSeconds = 2
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}

	filter := fmt.Sprintf(
		"fps=1/%s,scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease",
		strconv.FormatFloat(intervalSeconds, 'f', -1, 64), p.maxDimension, p.maxDimension,
	)
	pattern := filepath.Join(outDir, rawFramePrefix+"%04d.jpg")
	if err := p.runFFmpeg(ctx, "extract frames", "-i", src, "-vf", filter, "-q:v", "2", "-start_number", "0", pattern); err != nil {
		return nil, err
	}
	return renameFrames(outDir, intervalSeconds)
}

// renameFrames turns raw_0003.jpg into frame_0003_t6.0s.jpg.
func renameFrames(dir string, intervalSeconds float64) ([]string, error) {
	raw, err := filepath.Glob(filepath.Join(dir, rawFramePrefix+"*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("list raw frames: %w", err)
	}
	sort.Strings(raw)

	out := make([]string, 0, len(raw))
	for _, path := range raw {
		idxText := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), rawFramePrefix), ".jpg")
		idx, err := strconv.Atoi(idxText)
		if err != nil {
			return nil, fmt.Errorf("unexpected frame name %s", filepath.Base(path))
		}
		final := filepath.Join(dir, FrameFileName(idx, float64(idx)*intervalSeconds))
		if err := os.Rename(path, final); err != nil {
			return nil, fmt.Errorf("rename frame: %w", err)
		}
		out = append(out, final)
	}
	sort.Strings(out)
	return out, nil
}

func FrameFileName(index int, seconds float64) string {
	return fmt.Sprintf("frame_%04d_t%.1fs.jpg", index, seconds)
}
