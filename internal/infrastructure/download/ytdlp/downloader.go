package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

var hashtagPattern = regexp.MustCompile(`#(\w+)`)

// Downloader wraps the yt-dlp binary for downloads and metadata dumps.
type Downloader struct {
	bin string
	now func() time.Time
}

func New(binPath string) (*Downloader, error) {
	candidate := strings.TrimSpace(binPath)
	if candidate == "" {
		candidate = "yt-dlp"
	}
	bin, err := exec.LookPath(candidate)
	if err != nil {
		return nil, domain.WrapError(domain.ErrMissingDependency, "lookup yt-dlp", err)
	}
	return &Downloader{bin: bin, now: time.Now}, nil
}

// Download stores the best mp4 rendition of url at destPath.
func (d *Downloader) Download(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	args := []string{
		"-f", "best[ext=mp4]/best",
		"--merge-output-format", "mp4",
		"--no-playlist",
		"--quiet", "--no-warnings",
		"-o", destPath,
		url,
	}
	slog.Info("youtube_download_started", "url", url, "dest", destPath)
	if _, err := d.run(ctx, "yt-dlp download", args); err != nil {
		return err
	}
	if _, err := os.Stat(destPath); err != nil {
		return fmt.Errorf("yt-dlp download: expected output at %s: %w", destPath, err)
	}
	return nil
}

func (d *Downloader) FetchMetadata(ctx context.Context, url string) (*domain.YouTubeMetadata, error) {
	out, err := d.run(ctx, "yt-dlp metadata", []string{"--dump-json", "--skip-download", "--no-playlist", "--no-warnings", url})
	if err != nil {
		return nil, err
	}
	meta, err := parseMetadata(out, url, d.now())
	if err != nil {
		return nil, err
	}
	slog.Info("youtube_metadata_fetched", "video_id", meta.VideoID, "title", meta.Title, "channel", meta.Channel, "views", meta.ViewCount)
	return meta, nil
}

func (d *Downloader) run(ctx context.Context, operation string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, d.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return nil, domain.WrapError(domain.ErrTimeout, operation, ctxErr)
			}
			return nil, fmt.Errorf("%s: %w", operation, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "Video unavailable") || strings.Contains(msg, "Private video") {
			return nil, domain.WrapError(domain.ErrVideoNotFound, operation, errors.New(msg))
		}
		return nil, fmt.Errorf("%s: %w: %s", operation, err, msg)
	}
	return stdout.Bytes(), nil
}

func parseMetadata(data []byte, url string, fetchedAt time.Time) (*domain.YouTubeMetadata, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse yt-dlp metadata: invalid json")
	}
	doc := gjson.ParseBytes(data)

	id := doc.Get("id").String()
	if id == "" {
		id, _ = domain.ExtractYouTubeID(url)
	}
	channel := doc.Get("channel").String()
	if channel == "" {
		channel = doc.Get("uploader").String()
	}
	description := doc.Get("description").String()
	webpage := doc.Get("webpage_url").String()
	if webpage == "" {
		webpage = url
	}

	meta := &domain.YouTubeMetadata{
		VideoID:         id,
		Title:           doc.Get("title").String(),
		Description:     description,
		Channel:         channel,
		ChannelID:       doc.Get("channel_id").String(),
		ChannelURL:      doc.Get("channel_url").String(),
		UploadDate:      parseUploadDate(doc.Get("upload_date").String()),
		DurationSeconds: doc.Get("duration").Float(),
		ViewCount:       doc.Get("view_count").Int(),
		LikeCount:       doc.Get("like_count").Int(),
		CommentCount:    doc.Get("comment_count").Int(),
		Tags:            stringArray(doc.Get("tags")),
		Hashtags:        extractHashtags(description),
		Categories:      stringArray(doc.Get("categories")),
		ThumbnailURL:    bestThumbnail(doc),
		WebpageURL:      webpage,
		Width:           int(doc.Get("width").Int()),
		Height:          int(doc.Get("height").Int()),
		FPS:             doc.Get("fps").Float(),
		Language:        doc.Get("language").String(),
		Subscribers:     doc.Get("channel_follower_count").Int(),
		HasCaptions:     hasAny(doc.Get("subtitles")) || hasAny(doc.Get("automatic_captions")),
		AgeRestricted:   doc.Get("age_limit").Int() > 0,
		Availability:    doc.Get("availability").String(),
		FetchedAt:       domain.NewTimestamp(fetchedAt),
	}
	return meta, nil
}

// parseUploadDate turns yt-dlp's YYYYMMDD into YYYY-MM-DD.
func parseUploadDate(raw string) string {
	t, err := time.Parse("20060102", strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	return t.Format("2006-01-02")
}

func extractHashtags(description string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range hashtagPattern.FindAllStringSubmatch(description, -1) {
		tag := m[1]
		if seen[strings.ToLower(tag)] {
			continue
		}
		seen[strings.ToLower(tag)] = true
		out = append(out, tag)
	}
	return out
}

func bestThumbnail(doc gjson.Result) string {
	if url := doc.Get("thumbnail").String(); url != "" {
		return url
	}
	best := ""
	bestArea := int64(-1)
	doc.Get("thumbnails").ForEach(func(_, th gjson.Result) bool {
		area := th.Get("width").Int() * th.Get("height").Int()
		if area >= bestArea && th.Get("url").String() != "" {
			bestArea = area
			best = th.Get("url").String()
		}
		return true
	})
	return best
}

func stringArray(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	for _, v := range r.Array() {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func hasAny(r gjson.Result) bool {
	return r.IsObject() && len(r.Map()) > 0
}
