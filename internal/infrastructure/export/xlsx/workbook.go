package xlsx

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

const (
	SheetVideos  = "Videos"
	SheetRubrics = "Rubrics"
	SheetRecent  = "Recent Evaluations"
)

// Exporter renders the dashboard views as an .xlsx workbook.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) WriteDashboard(w io.Writer, snap domain.DashboardSnapshot) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", SheetVideos); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetRubrics, SheetRecent} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	videoRows := make([][]any, 0, len(snap.Videos))
	for _, v := range snap.Videos {
		videoRows = append(videoRows, []any{
			v.VideoID, v.Title, v.DurationSeconds, v.FrameCount, v.HasTranscript, v.YouTubeURL,
			formatTime(&v.IngestionDate), v.TotalEvaluations, v.CompletedCount, v.FailedCount,
			v.PendingCount, v.TotalCost, formatTime(v.LastEvaluatedAt),
		})
	}
	if err := writeSheet(f, SheetVideos, bold, []any{
		"Video ID", "Title", "Duration (s)", "Frames", "Transcript", "YouTube URL", "Ingested",
		"Evaluations", "Completed", "Failed", "Pending", "Total Cost (USD)", "Last Evaluated",
	}, videoRows); err != nil {
		return err
	}

	rubricRows := make([][]any, 0, len(snap.Rubrics))
	for _, r := range snap.Rubrics {
		rubricRows = append(rubricRows, []any{
			r.RubricName, r.DisplayName, r.Category, r.VideosCompleted, r.TotalVideos,
			fmt.Sprintf("%.1f%%", r.CompletionPercent()), r.TotalRuns, r.AvgDurationSeconds, r.TotalCost,
		})
	}
	if err := writeSheet(f, SheetRubrics, bold, []any{
		"Rubric", "Display Name", "Category", "Videos Completed", "Total Videos", "Completion",
		"Runs", "Avg Duration (s)", "Total Cost (USD)",
	}, rubricRows); err != nil {
		return err
	}

	recentRows := make([][]any, 0, len(snap.Recent))
	for _, r := range snap.Recent {
		recentRows = append(recentRows, []any{
			r.EvaluationID, r.VideoID, r.VideoTitle, r.RubricName, r.Version, string(r.Status),
			r.Evaluator, r.ModelName, r.Cost, r.DurationSeconds, formatTime(&r.CreatedAt), formatTime(r.CompletedAt),
		})
	}
	if err := writeSheet(f, SheetRecent, bold, []any{
		"Evaluation ID", "Video ID", "Video Title", "Rubric", "Version", "Status", "Evaluator",
		"Model", "Cost (USD)", "Duration (s)", "Created", "Completed",
	}, recentRows); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, headerStyle int, header []any, rows [][]any) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze %s header: %w", sheet, err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
