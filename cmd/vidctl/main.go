// Command vidctl runs ingestion, evaluation and reporting from the shell.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/video-evaluator/internal/bootstrap"
	"github.com/kirillkom/video-evaluator/internal/config"
	"github.com/kirillkom/video-evaluator/internal/observability/logging"
)

const usage = `usage: vidctl <command> [flags]

commands:
  ingest    extract frames, audio and transcript for a video
  evaluate  run one rubric against an ingested video
  sync      import on-disk artifacts into the database
  costs     print the cost ledger summary
  export    write the dashboard workbook
  rubrics   list the rubric catalog
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		slog.Error("command_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg := config.Load()
	slog.SetDefault(logging.New(stderr, "vidctl", cfg.LogLevel, "text"))

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "ingest":
		req, err := parseIngestFlags(rest)
		if err != nil {
			return err
		}
		return withApp(ctx, cfg, func(app *bootstrap.App) error {
			return runIngest(ctx, app, req, stdout)
		})
	case "evaluate":
		opts, err := parseEvaluateFlags(rest)
		if err != nil {
			return err
		}
		if opts.dataDir != "" {
			cfg.DataDir = opts.dataDir
		}
		return withApp(ctx, cfg, func(app *bootstrap.App) error {
			return runEvaluate(ctx, app, opts.request, stdout)
		})
	case "sync":
		return withApp(ctx, cfg, func(app *bootstrap.App) error {
			return runSync(ctx, app, stdout, stderr)
		})
	case "costs":
		return withApp(ctx, cfg, func(app *bootstrap.App) error {
			return runCosts(ctx, app, stdout)
		})
	case "export":
		out, err := parseExportFlags(rest)
		if err != nil {
			return err
		}
		return withApp(ctx, cfg, func(app *bootstrap.App) error {
			return runExport(ctx, app, out, stdout)
		})
	case "rubrics":
		return withApp(ctx, cfg, func(app *bootstrap.App) error {
			return runRubrics(ctx, app, stdout)
		})
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func withApp(ctx context.Context, cfg config.Config, fn func(*bootstrap.App) error) error {
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "vidctl", SkipQueue: true})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()
	return fn(app)
}
