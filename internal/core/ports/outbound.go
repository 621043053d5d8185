package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

// VideoRepository persists video rows.
type VideoRepository interface {
	Upsert(ctx context.Context, video *domain.Video) (created bool, err error)
	GetByID(ctx context.Context, id string) (*domain.Video, error)
	List(ctx context.Context) ([]domain.Video, error)
	Delete(ctx context.Context, id string) error
}

// EvaluationRepository persists versioned evaluation runs and enforces the status lifecycle.
type EvaluationRepository interface {
	CreatePending(ctx context.Context, eval *domain.Evaluation) error
	GetByID(ctx context.Context, id int64) (*domain.Evaluation, error)
	Latest(ctx context.Context, videoID, rubric string) (*domain.Evaluation, error)
	ListVersions(ctx context.Context, videoID, rubric string) ([]domain.Evaluation, error)
	ListByVideo(ctx context.Context, videoID string) ([]domain.Evaluation, error)
	ListByStatus(ctx context.Context, status domain.EvaluationStatus) ([]domain.Evaluation, error)
	Start(ctx context.Context, id int64, startedAt time.Time) error
	Complete(ctx context.Context, id int64, completion domain.EvaluationCompletion) error
	Fail(ctx context.Context, id int64, message string, completedAt time.Time, durationSeconds float64) error
	ExistsByResultPath(ctx context.Context, path string) (bool, error)
	TotalCost(ctx context.Context, videoID string) (float64, error)
}

// RubricRepository mirrors the rubric catalog into the relational store.
type RubricRepository interface {
	UpsertCatalog(ctx context.Context, rubrics []domain.Rubric) error
	List(ctx context.Context, activeOnly bool) ([]domain.Rubric, error)
	GetByName(ctx context.Context, name string) (*domain.Rubric, error)
}

// DashboardReader reads the reporting views.
type DashboardReader interface {
	VideoStatus(ctx context.Context, videoID string) ([]domain.VideoStatusRow, error)
	RubricCompletionStats(ctx context.Context) ([]domain.RubricStatsRow, error)
	RecentEvaluations(ctx context.Context, limit int) ([]domain.RecentEvaluationRow, error)
}

// VideoWorkspace owns the per-video artifact directory.
type VideoWorkspace interface {
	Prepare(videoID string) error
	Exists(videoID string) bool
	NextAvailableID(base string) string
	ListVideoIDs() ([]string, error)
	SaveSource(ctx context.Context, videoID string, body io.Reader) (string, error)
	SourcePath(videoID string) string
	HasSource(videoID string) bool
	FramesDir(videoID string) string
	ClearFrames(videoID string) error
	ListFrames(videoID string) ([]string, error)
	HasTranscript(videoID string) bool
	WriteTranscript(videoID string, transcript *domain.Transcript) error
	ReadTranscript(videoID string) (string, error)
	ReadTranscriptJSON(videoID string) (*domain.Transcript, error)
	WriteMetadata(meta domain.VideoMetadata) error
	ReadMetadata(videoID string) (*domain.VideoMetadata, error)
	WriteYouTubeMetadata(videoID string, meta domain.YouTubeMetadata) error
	ReadYouTubeMetadata(videoID string) (*domain.YouTubeMetadata, error)
}

// ReportStore writes and reads evaluation JSON documents.
type ReportStore interface {
	Save(report domain.EvaluationReport) (string, error)
	Load(path string) (*domain.EvaluationReport, []byte, error)
	List(videoID string) ([]string, error)
}

// MediaProcessor probes sources and extracts frames and audio.
type MediaProcessor interface {
	Probe(ctx context.Context, path string) (domain.MediaInfo, error)
	ExtractFrames(ctx context.Context, src, outDir string, intervalSeconds float64) ([]string, error)
}

// AudioExtractor produces a speech-ready audio file from a video.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, src, dst string) error
}

// Transcriber turns the speech in a video into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, videoPath string) (*domain.Transcript, error)
	Model() string
}

// VideoDownloader fetches remote videos and their metadata.
type VideoDownloader interface {
	Download(ctx context.Context, url, destPath string) error
	FetchMetadata(ctx context.Context, url string) (*domain.YouTubeMetadata, error)
}

// VideoEvaluator runs a vision model over sampled frames and a transcript.
type VideoEvaluator interface {
	Name() string
	DefaultModel() string
	Evaluate(ctx context.Context, input domain.EvaluationInput) (*domain.EvaluationOutput, error)
}

// FrameLimiter is implemented by evaluators with a hard cap on images per request.
type FrameLimiter interface {
	MaxFrames() int
}

// RubricCatalog resolves rubric prompts.
type RubricCatalog interface {
	Get(name string) (domain.Rubric, error)
	List(activeOnly bool) []domain.Rubric
}

// CostLedger records per-evaluation model spend.
type CostLedger interface {
	Record(ctx context.Context, entry domain.CostEntry) error
	Summary(ctx context.Context) (domain.CostSummary, error)
}

// MessageQueue publishes/consumes ingestion and evaluation jobs.
type MessageQueue interface {
	PublishIngest(ctx context.Context, job domain.IngestJob) error
	SubscribeIngest(ctx context.Context, handler func(context.Context, domain.IngestJob) error) error
	PublishEvaluation(ctx context.Context, job domain.EvaluationJob) error
	SubscribeEvaluations(ctx context.Context, handler func(context.Context, domain.EvaluationJob) error) error
}

// WorkbookExporter renders dashboard data as a spreadsheet.
type WorkbookExporter interface {
	WriteDashboard(w io.Writer, snapshot domain.DashboardSnapshot) error
}

// EvaluationObserver receives evaluation outcomes for metrics.
type EvaluationObserver interface {
	EvaluationStarted(evaluator string)
	EvaluationFinished(evaluator, status string, duration time.Duration, frames int, usage domain.TokenUsage, cost float64)
}
