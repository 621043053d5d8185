// Command mcp serves the evaluation tools to MCP clients over stdio.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/video-evaluator/internal/adapters/mcp"
	"github.com/kirillkom/video-evaluator/internal/bootstrap"
	"github.com/kirillkom/video-evaluator/internal/config"
	"github.com/kirillkom/video-evaluator/internal/observability/logging"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	// stdout carries the protocol.
	slog.SetDefault(logging.New(os.Stderr, "mcp", cfg.LogLevel, "json"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "mcp"})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tools := mcpadapter.NewTools(app.Evaluate, app.Dashboard, app.Evaluators)
	slog.Info("mcp_serving", "transport", "stdio", "evaluators", app.Evaluators)
	if err := mcpadapter.ServeStdio(mcpadapter.NewServer(tools)); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
