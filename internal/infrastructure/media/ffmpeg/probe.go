package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

func (p *Processor) Probe(ctx context.Context, path string) (domain.MediaInfo, error) {
	var out bytes.Buffer
	args := []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path}
	if err := run(ctx, "ffprobe", p.ffprobePath, args, &out); err != nil {
		return domain.MediaInfo{}, err
	}
	return parseProbe(out.Bytes())
}

func parseProbe(data []byte) (domain.MediaInfo, error) {
	var probe probeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return domain.MediaInfo{}, fmt.Errorf("decode ffprobe output: %w", err)
	}

	info := domain.MediaInfo{}
	if d, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64); err == nil {
		info.DurationSeconds = d
	}
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if info.Width != 0 {
				continue
			}
			info.Width = s.Width
			info.Height = s.Height
			info.FPS = parseFrameRate(s.AvgFrameRate)
			if info.FPS == 0 {
				info.FPS = parseFrameRate(s.RFrameRate)
			}
			if info.DurationSeconds == 0 {
				if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
					info.DurationSeconds = d
				}
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if info.Width == 0 {
		return info, domain.WrapError(domain.ErrInvalidInput, "probe", fmt.Errorf("no video stream found"))
	}
	return info, nil
}

// parseFrameRate reads ffprobe rationals such as 30000/1001.
func parseFrameRate(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	num, den, found := strings.Cut(raw, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
