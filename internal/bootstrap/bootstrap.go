package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/video-evaluator/internal/config"
	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/core/ports"
	"github.com/kirillkom/video-evaluator/internal/core/usecase"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/costlog"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/download/ytdlp"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/llm/anthropic"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/media/ffmpeg"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/queue/nats"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/resilience"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/rubrics"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/transcribe/whisper"
	"github.com/kirillkom/video-evaluator/internal/observability/metrics"
)

// Options select which optional collaborators a binary needs.
type Options struct {
	Service string
	// Queue makes a NATS connection mandatory. Without it the queue is attempted
	// and dropped with a warning when unreachable.
	Queue bool
	// SkipQueue never connects, for one-shot CLI commands.
	SkipQueue bool
}

type App struct {
	Config config.Config

	Queue     ports.MessageQueue
	Catalog   ports.RubricCatalog
	Ledger    ports.CostLedger
	Metrics   *metrics.EvaluationMetrics
	Ingest    ports.VideoIngestor
	Evaluate  ports.EvaluationService
	Sync      ports.Synchronizer
	Dashboard ports.DashboardService

	// Evaluators lists the configured evaluator keys.
	Evaluators []string

	closeFn func()
}

type stores struct {
	videos      ports.VideoRepository
	evaluations ports.EvaluationRepository
	rubrics     ports.RubricRepository
	dashboard   ports.DashboardReader
	db          *sql.DB
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers := []func(){func() { _ = st.db.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	catalog, err := rubrics.Load(cfg.RubricsFile)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("load rubric catalog: %w", err)
	}
	if err := st.rubrics.UpsertCatalog(ctx, catalog.List(false)); err != nil {
		closeAll()
		return nil, fmt.Errorf("sync rubric catalog: %w", err)
	}

	workspace, err := localfs.New(cfg.DataDir)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init workspace: %w", err)
	}
	reports := localfs.NewReportStore(workspace)
	ledger := costlog.New(filepath.Join(cfg.DataDir, "cost_log.jsonl"))
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	var queue ports.MessageQueue
	if !opts.SkipQueue {
		q, err := nats.New(cfg.NATSURL, nats.Options{
			IngestSubject:      cfg.IngestSubject,
			EvaluateSubject:    cfg.EvaluateSubject,
			ResilienceExecutor: executor,
		})
		switch {
		case err == nil:
			queue = q
			closers = append(closers, q.Close)
		case opts.Queue:
			closeAll()
			return nil, fmt.Errorf("init message queue: %w", err)
		default:
			slog.Warn("queue_unavailable", "url", cfg.NATSURL, "error", err)
		}
	}

	media, transcriber, downloader := buildMediaStack(cfg, executor)
	evaluators := buildEvaluators(ctx, cfg, executor)
	evalMetrics := metrics.NewEvaluationMetrics(opts.Service)

	sampling, err := domain.ParseSamplingStrategy(cfg.DefaultSampling)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("default sampling: %w", err)
	}

	ingestUC := usecase.NewIngestVideoUseCase(workspace, media, transcriber, downloader, st.videos, queue, cfg.FrameInterval)
	ingestUC.SetImportDir(cfg.ImportDir)
	evaluateUC := usecase.NewEvaluateVideoUseCase(
		st.evaluations,
		workspace,
		reports,
		catalog,
		evaluators,
		ledger,
		queue,
		evalMetrics,
		usecase.EvaluationDefaults{
			Evaluator: strings.ToLower(cfg.DefaultEvaluator),
			Sampling:  sampling,
			MaxFrames: cfg.DefaultMaxFrames,
			Timeout:   time.Duration(cfg.EvalTimeoutSeconds) * time.Second,
		},
	)
	syncUC := usecase.NewSyncUseCase(workspace, reports, st.videos, st.evaluations, catalog)
	dashboardUC := usecase.NewDashboardUseCase(st.videos, st.evaluations, st.rubrics, st.dashboard, ledger, xlsx.NewExporter())

	slog.Info("app_initialized",
		"service", opts.Service,
		"db_driver", cfg.DBDriver,
		"data_dir", cfg.DataDir,
		"evaluators", evaluateUC.Evaluators(),
		"queue", queue != nil,
		"media", media != nil,
	)

	return &App{
		Config:    cfg,
		Queue:     queue,
		Catalog:   catalog,
		Ledger:    ledger,
		Metrics:   evalMetrics,
		Ingest:    ingestUC,
		Evaluate:  evaluateUC,
		Sync:      syncUC,
		Dashboard: dashboardUC,

		Evaluators: evaluateUC.Evaluators(),

		closeFn: closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	switch strings.ToLower(cfg.DBDriver) {
	case "postgres", "pgx":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return &stores{
			videos:      postgres.NewVideoRepository(db),
			evaluations: postgres.NewEvaluationRepository(db),
			rubrics:     postgres.NewRubricRepository(db),
			dashboard:   postgres.NewDashboardRepository(db),
			db:          db,
		}, nil
	case "sqlite", "sqlite3", "":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		if err := sqlite.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return &stores{
			videos:      sqlite.NewVideoRepository(db),
			evaluations: sqlite.NewEvaluationRepository(db),
			rubrics:     sqlite.NewRubricRepository(db),
			dashboard:   sqlite.NewDashboardRepository(db),
			db:          db,
		}, nil
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "open store", fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver))
	}
}

// buildMediaStack returns nil interfaces for tools that are not installed so
// the use cases can report ErrMissingDependency per request.
func buildMediaStack(cfg config.Config, executor *resilience.Executor) (ports.MediaProcessor, ports.Transcriber, ports.VideoDownloader) {
	var (
		media       ports.MediaProcessor
		transcriber ports.Transcriber
		downloader  ports.VideoDownloader
	)

	processor, err := ffmpeg.New(ffmpeg.Options{
		FFmpegPath:   cfg.FFmpegPath,
		FFprobePath:  cfg.FFprobePath,
		MaxDimension: cfg.FrameMaxDim,
	})
	if err != nil {
		slog.Warn("ffmpeg_unavailable", "error", err)
	} else {
		media = processor
		if cfg.WhisperURL != "" {
			transcriber = whisper.New(whisper.Config{
				BaseURL:  cfg.WhisperURL,
				APIKey:   cfg.WhisperAPIKey,
				Model:    cfg.WhisperModel,
				Language: cfg.WhisperLang,
				Timeout:  time.Duration(cfg.WhisperTimeout) * time.Second,
			}, processor, executor)
		}
	}

	ytdl, err := ytdlp.New(cfg.YTDLPPath)
	if err != nil {
		slog.Warn("ytdlp_unavailable", "error", err)
	} else {
		downloader = ytdl
	}
	return media, transcriber, downloader
}

// buildEvaluators registers ollama unconditionally and the hosted APIs only when a key is set.
func buildEvaluators(ctx context.Context, cfg config.Config, executor *resilience.Executor) map[string]ports.VideoEvaluator {
	out := map[string]ports.VideoEvaluator{}

	client := ollama.New(cfg.OllamaURL, time.Duration(cfg.OllamaTimeoutSeconds)*time.Second, executor)
	local := ollama.NewEvaluator(client, ollama.EvaluatorConfig{
		VisionModel:    cfg.OllamaVisionModel,
		SynthesisModel: cfg.OllamaSynthesisModel,
		BatchSize:      cfg.OllamaBatchSize,
	})
	if cfg.OllamaCheckModels {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := local.CheckModels(checkCtx); err != nil {
			slog.Warn("ollama_unreachable", "url", cfg.OllamaURL, "error", err)
		}
		cancel()
	}
	out["ollama"] = local

	if cfg.AnthropicAPIKey != "" {
		claude, err := anthropic.New(anthropic.Config{
			APIKey:  cfg.AnthropicAPIKey,
			BaseURL: cfg.AnthropicBaseURL,
			Model:   cfg.AnthropicModel,
		}, executor)
		if err != nil {
			slog.Warn("evaluator_disabled", "evaluator", anthropic.Name, "error", err)
		} else {
			out["claude"] = claude
		}
	}

	if cfg.GeminiAPIKey != "" {
		g, err := gemini.New(ctx, gemini.Config{
			APIKey:            cfg.GeminiAPIKey,
			Model:             cfg.GeminiModel,
			RequestsPerMinute: float64(cfg.GeminiRPM),
		}, executor)
		if err != nil {
			slog.Warn("evaluator_disabled", "evaluator", gemini.Name, "error", err)
		} else {
			out["gemini"] = g
		}
	}
	return out
}
