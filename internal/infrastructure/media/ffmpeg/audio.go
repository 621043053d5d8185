package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// ExtractAudio writes 16 kHz mono PCM WAV, the format speech models expect.
func (p *Processor) ExtractAudio(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	return p.runFFmpeg(ctx, "extract audio",
		"-i", src,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		dst,
	)
}
