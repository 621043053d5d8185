package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/core/ports"
)

const defaultFrameInterval = 2.0

type IngestVideoUseCase struct {
	workspace     ports.VideoWorkspace
	media         ports.MediaProcessor
	transcriber   ports.Transcriber
	downloader    ports.VideoDownloader
	videos        ports.VideoRepository
	queue         ports.MessageQueue
	frameInterval float64
	importDir     string
	now           func() time.Time
}

// NewIngestVideoUseCase wires the ingestion pipeline. media, transcriber, downloader
// and queue may be nil; requests that need them fail with ErrMissingDependency
// (a nil transcriber only skips the transcript).
func NewIngestVideoUseCase(
	workspace ports.VideoWorkspace,
	media ports.MediaProcessor,
	transcriber ports.Transcriber,
	downloader ports.VideoDownloader,
	videos ports.VideoRepository,
	queue ports.MessageQueue,
	frameInterval float64,
) *IngestVideoUseCase {
	if frameInterval <= 0 {
		frameInterval = defaultFrameInterval
	}
	return &IngestVideoUseCase{
		workspace:     workspace,
		media:         media,
		transcriber:   transcriber,
		downloader:    downloader,
		videos:        videos,
		queue:         queue,
		frameInterval: frameInterval,
		now:           time.Now,
	}
}

// SetImportDir allows queued local sources under dir. With no import dir only YouTube URLs can be queued.
func (uc *IngestVideoUseCase) SetImportDir(dir string) {
	uc.importDir = strings.TrimSpace(dir)
}

// Enqueue validates the request and hands it to the ingest worker.
func (uc *IngestVideoUseCase) Enqueue(ctx context.Context, req domain.IngestRequest) (*domain.IngestJob, error) {
	if err := validateIngestRequest(&req); err != nil {
		return nil, err
	}
	source, err := uc.resolveQueuedSource(req.Source)
	if err != nil {
		return nil, err
	}
	req.Source = source
	if uc.queue == nil {
		return nil, domain.WrapError(domain.ErrMissingDependency, "enqueue ingest", errors.New("queue is not configured"))
	}
	job := domain.IngestJob{
		JobID:      uuid.NewString(),
		Request:    req,
		EnqueuedAt: uc.now().UTC(),
	}
	if err := uc.queue.PublishIngest(ctx, job); err != nil {
		return nil, fmt.Errorf("publish ingest job: %w", err)
	}
	return &job, nil
}

func (uc *IngestVideoUseCase) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	if err := validateIngestRequest(&req); err != nil {
		return nil, err
	}
	if uc.media == nil {
		return nil, domain.WrapError(domain.ErrMissingDependency, "ingest video", errors.New("ffmpeg is not available"))
	}
	started := uc.now()
	youtube := domain.IsYouTubeURL(req.Source)

	videoID, err := uc.resolveVideoID(req, youtube)
	if err != nil {
		return nil, err
	}
	if err := uc.workspace.Prepare(videoID); err != nil {
		return nil, fmt.Errorf("prepare workspace: %w", err)
	}
	slog.Info("ingest_started", "video_id", videoID, "source", req.Source, "mode", req.Mode)

	ytMeta, err := uc.fetchSource(ctx, req, videoID, youtube)
	if err != nil {
		return nil, err
	}
	sourcePath := uc.workspace.SourcePath(videoID)

	info, err := uc.media.Probe(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("probe source: %w", err)
	}

	result := &domain.IngestResult{VideoID: videoID}
	interval := req.FrameIntervalSeconds
	if interval <= 0 {
		interval = uc.frameInterval
	}

	frames, err := uc.extractFrames(ctx, req.Mode, videoID, sourcePath, interval, result)
	if err != nil {
		return nil, err
	}
	if result.FramesSkipped {
		// Reused frames keep the spacing they were extracted at.
		if prev, err := uc.workspace.ReadMetadata(videoID); err == nil && prev.FrameIntervalSeconds > 0 {
			interval = prev.FrameIntervalSeconds
		}
	}

	transcript, err := uc.transcribe(ctx, req, videoID, sourcePath, info, result)
	if err != nil {
		return nil, err
	}

	meta := domain.VideoMetadata{
		VideoID:              videoID,
		SourceType:           domain.SourceLocal,
		SourcePath:           sourcePath,
		Title:                resolveTitle(req.Title, ytMeta, videoID),
		DurationSeconds:      info.DurationSeconds,
		FPS:                  info.FPS,
		FrameIntervalSeconds: interval,
		FrameCount:           len(frames),
		FrameList:            baseNames(frames),
		IngestionTimestamp:   domain.NewTimestamp(uc.now()),
		IngestionComplete:    true,
	}
	if youtube {
		meta.SourceType = domain.SourceYouTube
		meta.YouTubeURL = req.Source
	}
	if transcript != nil {
		meta.WhisperModel = transcript.Model
		meta.WhisperLanguage = transcript.Language
		meta.TranscriptWordCount = transcript.WordCount()
	}
	if err := uc.workspace.WriteMetadata(meta); err != nil {
		return nil, fmt.Errorf("write metadata: %w", err)
	}

	video := videoFromArtifacts(meta, ytMeta, transcript != nil)
	created, err := uc.videos.Upsert(ctx, video)
	if err != nil {
		return nil, fmt.Errorf("upsert video: %w", err)
	}

	result.Created = created
	result.FrameCount = meta.FrameCount
	result.TranscriptWords = meta.TranscriptWordCount
	result.Duration = uc.now().Sub(started)
	slog.Info("ingest_completed",
		"video_id", videoID,
		"frames", result.FrameCount,
		"transcript_words", result.TranscriptWords,
		"created", created,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func validateIngestRequest(req *domain.IngestRequest) error {
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate ingest request", errors.New("source is required"))
	}
	if req.FrameIntervalSeconds < 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate ingest request", errors.New("frame_interval_seconds must be positive"))
	}
	mode, err := domain.ParseIngestMode(string(req.Mode))
	if err != nil {
		return err
	}
	req.Mode = mode
	return nil
}

// resolveQueuedSource confines remotely submitted local paths to the import directory.
func (uc *IngestVideoUseCase) resolveQueuedSource(source string) (string, error) {
	if domain.IsYouTubeURL(source) {
		return source, nil
	}
	if uc.importDir == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "enqueue ingest",
			errors.New("only YouTube URLs can be queued when no import directory is configured"))
	}
	root, err := filepath.EvalSymlinks(uc.importDir)
	if err != nil {
		return "", domain.WrapError(domain.ErrMissingDependency, "enqueue ingest", fmt.Errorf("import directory: %w", err))
	}

	path := source
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", domain.WrapError(domain.ErrInvalidInput, "enqueue ingest", fmt.Errorf("file %q does not exist", source))
		}
		return "", fmt.Errorf("resolve source: %w", err)
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrInvalidInput, "enqueue ingest", fmt.Errorf("source %q is outside the import directory", source))
	}
	return resolved, nil
}

func (uc *IngestVideoUseCase) resolveVideoID(req domain.IngestRequest, youtube bool) (string, error) {
	var base string
	switch {
	case strings.TrimSpace(req.VideoID) != "":
		base = domain.SanitizeVideoID(req.VideoID)
	case youtube:
		id, ok := domain.ExtractYouTubeID(req.Source)
		if !ok {
			return "", domain.WrapError(domain.ErrInvalidInput, "resolve video id", fmt.Errorf("no video id in %q", req.Source))
		}
		base = id
	default:
		base = domain.SanitizeVideoID(req.Source)
	}
	if req.Mode == domain.IngestNewVersion {
		return uc.workspace.NextAvailableID(base), nil
	}
	return base, nil
}

// fetchSource places the source video in the workspace. add_missing keeps an existing copy.
func (uc *IngestVideoUseCase) fetchSource(ctx context.Context, req domain.IngestRequest, videoID string, youtube bool) (*domain.YouTubeMetadata, error) {
	if !youtube {
		if req.Mode == domain.IngestAddMissing && uc.workspace.HasSource(videoID) {
			return nil, nil
		}
		return nil, uc.copyLocal(ctx, req.Source, videoID)
	}

	if uc.downloader == nil {
		return nil, domain.WrapError(domain.ErrMissingDependency, "download video", errors.New("downloader is not configured"))
	}
	if req.Mode != domain.IngestAddMissing || !uc.workspace.HasSource(videoID) {
		if err := uc.downloader.Download(ctx, req.Source, uc.workspace.SourcePath(videoID)); err != nil {
			return nil, fmt.Errorf("download video: %w", err)
		}
	}

	if req.Mode == domain.IngestAddMissing {
		if existing, err := uc.workspace.ReadYouTubeMetadata(videoID); err == nil {
			return existing, nil
		}
	}
	meta, err := uc.downloader.FetchMetadata(ctx, req.Source)
	if err != nil {
		slog.Warn("youtube_metadata_failed", "video_id", videoID, "error", err)
		return nil, nil
	}
	if err := uc.workspace.WriteYouTubeMetadata(videoID, *meta); err != nil {
		return nil, fmt.Errorf("write youtube metadata: %w", err)
	}
	return meta, nil
}

func (uc *IngestVideoUseCase) copyLocal(ctx context.Context, source, videoID string) error {
	f, err := os.Open(source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.WrapError(domain.ErrInvalidInput, "open source", fmt.Errorf("file %q does not exist", source))
		}
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	if _, err := uc.workspace.SaveSource(ctx, videoID, f); err != nil {
		return fmt.Errorf("save source: %w", err)
	}
	return nil
}

func (uc *IngestVideoUseCase) extractFrames(
	ctx context.Context,
	mode domain.IngestMode,
	videoID, sourcePath string,
	interval float64,
	result *domain.IngestResult,
) ([]string, error) {
	if mode == domain.IngestAddMissing {
		if existing, err := uc.workspace.ListFrames(videoID); err == nil && len(existing) > 0 {
			result.FramesSkipped = true
			return existing, nil
		}
	}
	if err := uc.workspace.ClearFrames(videoID); err != nil {
		return nil, fmt.Errorf("clear frames: %w", err)
	}
	if _, err := uc.media.ExtractFrames(ctx, sourcePath, uc.workspace.FramesDir(videoID), interval); err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}
	// frame_count is taken from disk, not from the extractor's return value.
	frames, err := uc.workspace.ListFrames(videoID)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	return frames, nil
}

func (uc *IngestVideoUseCase) transcribe(
	ctx context.Context,
	req domain.IngestRequest,
	videoID, sourcePath string,
	info domain.MediaInfo,
	result *domain.IngestResult,
) (*domain.Transcript, error) {
	if req.Mode == domain.IngestAddMissing && uc.workspace.HasTranscript(videoID) {
		existing, err := uc.workspace.ReadTranscriptJSON(videoID)
		if err == nil {
			result.TranscriptSkipped = true
			return existing, nil
		}
		slog.Warn("transcript_reload_failed", "video_id", videoID, "error", err)
	}
	if req.SkipTranscript || uc.transcriber == nil {
		result.TranscriptSkipped = true
		return nil, nil
	}

	transcript := &domain.Transcript{Model: uc.transcriber.Model(), Segments: []domain.TranscriptSegment{}}
	if info.HasAudio {
		var err error
		transcript, err = uc.transcriber.Transcribe(ctx, sourcePath)
		if err != nil {
			return nil, fmt.Errorf("transcribe: %w", err)
		}
	} else {
		slog.Warn("source_has_no_audio", "video_id", videoID)
	}
	if err := uc.workspace.WriteTranscript(videoID, transcript); err != nil {
		return nil, fmt.Errorf("write transcript: %w", err)
	}
	return transcript, nil
}

func resolveTitle(requested string, yt *domain.YouTubeMetadata, videoID string) string {
	if t := strings.TrimSpace(requested); t != "" {
		return t
	}
	if yt != nil && yt.Title != "" {
		return yt.Title
	}
	return videoID
}

func baseNames(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, filepath.Base(p))
	}
	return out
}

// videoFromArtifacts builds the database row from metadata.json and, when present,
// youtube_metadata.json.
func videoFromArtifacts(meta domain.VideoMetadata, yt *domain.YouTubeMetadata, hasTranscript bool) *domain.Video {
	video := &domain.Video{
		ID:              meta.VideoID,
		Title:           meta.Title,
		Filename:        filepath.Base(meta.SourcePath),
		Filepath:        meta.SourcePath,
		DurationSeconds: meta.DurationSeconds,
		FrameCount:      meta.FrameCount,
		HasTranscript:   hasTranscript,
		YouTubeURL:      meta.YouTubeURL,
		IngestionDate:   meta.IngestionTimestamp.Time,
		Metadata: map[string]any{
			"source_type":            string(meta.SourceType),
			"fps":                    meta.FPS,
			"frame_interval_seconds": meta.FrameIntervalSeconds,
			"whisper_model":          meta.WhisperModel,
			"transcript_word_count":  meta.TranscriptWordCount,
		},
	}
	if video.Title == "" {
		video.Title = meta.VideoID
	}
	if yt != nil {
		if yt.Title != "" {
			video.Title = yt.Title
		}
		video.YouTubeID = yt.VideoID
		if yt.WebpageURL != "" {
			video.YouTubeURL = yt.WebpageURL
		}
		video.Metadata["channel"] = yt.Channel
		video.Metadata["view_count"] = yt.ViewCount
		video.Metadata["like_count"] = yt.LikeCount
		video.Metadata["upload_date"] = yt.UploadDate
	}
	if video.YouTubeID == "" && video.YouTubeURL != "" {
		if id, ok := domain.ExtractYouTubeID(video.YouTubeURL); ok {
			video.YouTubeID = id
		}
	}
	if video.IngestionDate.IsZero() {
		video.IngestionDate = time.Now().UTC()
	}
	return video
}
