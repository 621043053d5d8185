package domain

import (
	"fmt"
	"strings"
	"time"
)

// EvaluationReport is the evaluation JSON document written under evaluations/.
type EvaluationReport struct {
	VideoID            string             `json:"video_id"`
	Evaluator          string             `json:"evaluator"`
	Rubric             string             `json:"rubric"`
	Model              string             `json:"model"`
	Timestamp          Timestamp          `json:"timestamp"`
	EvaluationMarkdown string             `json:"evaluation_markdown"`
	Metadata           ReportMetadata     `json:"metadata"`
	PerformanceMetrics PerformanceMetrics `json:"performance_metrics"`
	CostInfo           *CostInfo          `json:"cost_info,omitempty"`
}

type ReportMetadata struct {
	VideoMetadata        VideoMetadata    `json:"video_metadata"`
	FramesAnalyzed       int              `json:"frames_analyzed"`
	TotalFramesAvailable int              `json:"total_frames_available"`
	SamplingStrategy     SamplingStrategy `json:"sampling_strategy"`
	TranscriptWordCount  int              `json:"transcript_word_count"`
	BatchSize            int              `json:"batch_size,omitempty"`
	NumBatches           int              `json:"num_batches,omitempty"`
	VisionModel          string           `json:"vision_model,omitempty"`
	SynthesisModel       string           `json:"synthesis_model,omitempty"`
}

type PerformanceMetrics struct {
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	FramesProcessed       int     `json:"frames_processed"`
	BatchesProcessed      int     `json:"batches_processed,omitempty"`
}

type CostInfo struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalCost    float64 `json:"total_cost"`
	Estimated    bool    `json:"estimated,omitempty"`
}

// ReportFileName is <evaluator>_<rubric>_<YYYYmmdd_HHMMSS>.json.
func ReportFileName(evaluator, rubric string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s.json", evaluator, rubric, at.UTC().Format("20060102_150405"))
}

// RubricFromReportFileName recovers the rubric name for files without a rubric field.
// Known names are matched longest first because rubric names may contain underscores.
func RubricFromReportFileName(name string, known []string) string {
	base := strings.TrimSuffix(name, ".json")
	best := ""
	for _, k := range known {
		if k == "" {
			continue
		}
		if strings.Contains(base, "_"+k+"_") || strings.HasPrefix(base, k+"_") {
			if len(k) > len(best) {
				best = k
			}
		}
	}
	if best != "" {
		return best
	}

	// evaluator_rubric_YYYYMMDD_HHMMSS with a single-token evaluator
	parts := strings.Split(base, "_")
	if len(parts) >= 4 {
		return strings.Join(parts[1:len(parts)-2], "_")
	}
	return "unknown"
}
