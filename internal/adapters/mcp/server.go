// Package mcpadapter exposes the dashboard and evaluation services as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/core/ports"
)

const (
	serverName    = "video-evaluator"
	serverVersion = "1.0.0"
)

type Tools struct {
	evaluations ports.EvaluationService
	dashboard   ports.DashboardService
	evaluators  []string
}

func NewTools(evaluations ports.EvaluationService, dashboard ports.DashboardService, evaluators []string) *Tools {
	return &Tools{
		evaluations: evaluations,
		dashboard:   dashboard,
		evaluators:  evaluators,
	}
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("list_videos",
		mcp.WithDescription("List ingested videos with evaluation counts and total cost."),
	), tools.ListVideos)

	s.AddTool(mcp.NewTool("get_video",
		mcp.WithDescription("Get one video with its full evaluation history."),
		mcp.WithString("video_id", mcp.Required(), mcp.Description("Video identifier.")),
	), tools.GetVideo)

	s.AddTool(mcp.NewTool("list_rubrics",
		mcp.WithDescription("List active rubrics with completion statistics."),
	), tools.ListRubrics)

	submitOpts := []mcp.ToolOption{
		mcp.WithDescription("Queue a new evaluation version of a rubric for a video."),
		mcp.WithString("video_id", mcp.Required(), mcp.Description("Video identifier.")),
		mcp.WithString("rubric", mcp.Required(), mcp.Description("Rubric name, see list_rubrics.")),
		mcp.WithString("model", mcp.Description("Model override for the evaluator.")),
		mcp.WithString("sampling",
			mcp.Description("Frame sampling strategy."),
			mcp.Enum(string(domain.SamplingEven), string(domain.SamplingAll), string(domain.SamplingFirstN), string(domain.SamplingLastN)),
		),
		mcp.WithNumber("max_frames", mcp.Description("Maximum frames sent to the evaluator."), mcp.Min(1)),
	}
	if len(tools.evaluators) > 0 {
		submitOpts = append(submitOpts, mcp.WithString("evaluator",
			mcp.Description("Evaluator backend."),
			mcp.Enum(tools.evaluators...),
		))
	} else {
		submitOpts = append(submitOpts, mcp.WithString("evaluator", mcp.Description("Evaluator backend.")))
	}
	s.AddTool(mcp.NewTool("submit_evaluation", submitOpts...), tools.SubmitEvaluation)

	s.AddTool(mcp.NewTool("get_latest_evaluation",
		mcp.WithDescription("Get the highest evaluation version of a rubric for a video."),
		mcp.WithString("video_id", mcp.Required(), mcp.Description("Video identifier.")),
		mcp.WithString("rubric", mcp.Required(), mcp.Description("Rubric name.")),
	), tools.GetLatestEvaluation)

	return s
}

// ServeStdio blocks serving MCP over stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func (t *Tools) ListVideos(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := t.dashboard.Videos(ctx)
	if err != nil {
		return toolError("list_videos", err), nil
	}
	if rows == nil {
		rows = []domain.VideoStatusRow{}
	}
	return jsonResult(map[string]any{"videos": rows})
}

func (t *Tools) GetVideo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	videoID, err := request.RequireString("video_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := t.dashboard.VideoDetail(ctx, videoID)
	if err != nil {
		return toolError("get_video", err), nil
	}
	return jsonResult(detail)
}

func (t *Tools) ListRubrics(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rubrics, err := t.dashboard.Rubrics(ctx)
	if err != nil {
		return toolError("list_rubrics", err), nil
	}
	stats, err := t.dashboard.RubricStats(ctx)
	if err != nil {
		return toolError("list_rubrics", err), nil
	}

	byName := make(map[string]domain.RubricStatsRow, len(stats))
	for _, row := range stats {
		byName[row.RubricName] = row
	}

	type rubricView struct {
		Name              string  `json:"name"`
		DisplayName       string  `json:"display_name"`
		Category          string  `json:"category,omitempty"`
		Description       string  `json:"description,omitempty"`
		VideosCompleted   int     `json:"videos_completed"`
		TotalVideos       int     `json:"total_videos"`
		CompletionPercent float64 `json:"completion_percent"`
	}
	out := make([]rubricView, 0, len(rubrics))
	for _, r := range rubrics {
		row := byName[r.Name]
		out = append(out, rubricView{
			Name:              r.Name,
			DisplayName:       r.DisplayName,
			Category:          r.Category,
			Description:       r.Description,
			VideosCompleted:   row.VideosCompleted,
			TotalVideos:       row.TotalVideos,
			CompletionPercent: row.CompletionPercent(),
		})
	}
	return jsonResult(map[string]any{"rubrics": out})
}

func (t *Tools) SubmitEvaluation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	videoID, err := request.RequireString("video_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rubric, err := request.RequireString("rubric")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	eval, err := t.evaluations.Submit(ctx, domain.EvaluationRequest{
		VideoID:   videoID,
		Rubric:    rubric,
		Evaluator: request.GetString("evaluator", ""),
		Model:     request.GetString("model", ""),
		Sampling:  domain.SamplingStrategy(request.GetString("sampling", "")),
		MaxFrames: request.GetInt("max_frames", 0),
	})
	if err != nil {
		return toolError("submit_evaluation", err), nil
	}
	return jsonResult(eval)
}

func (t *Tools) GetLatestEvaluation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	videoID, err := request.RequireString("video_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rubric, err := request.RequireString("rubric")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	eval, err := t.dashboard.LatestEvaluation(ctx, videoID, rubric)
	if err != nil {
		return toolError("get_latest_evaluation", err), nil
	}
	return jsonResult(eval)
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports domain failures to the model instead of failing the protocol call.
func toolError(tool string, err error) *mcp.CallToolResult {
	kind := "internal"
	switch {
	case domain.IsNotFound(err):
		kind = "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		kind = "invalid_input"
	case errors.Is(err, domain.ErrMissingDependency):
		kind = "unavailable"
	}
	slog.Warn("mcp_tool_failed", "tool", tool, "kind", kind, "error", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", kind, err))
}
