package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type EvaluationStatus string

const (
	EvaluationPending    EvaluationStatus = "pending"
	EvaluationInProgress EvaluationStatus = "in_progress"
	EvaluationCompleted  EvaluationStatus = "completed"
	EvaluationFailed     EvaluationStatus = "failed"
)

var evaluationTransitions = map[EvaluationStatus][]EvaluationStatus{
	EvaluationPending:    {EvaluationInProgress},
	EvaluationInProgress: {EvaluationCompleted, EvaluationFailed},
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s EvaluationStatus) CanTransitionTo(next EvaluationStatus) bool {
	for _, allowed := range evaluationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PreviousStatus returns the only status a row may hold before entering next.
func PreviousStatus(next EvaluationStatus) (EvaluationStatus, bool) {
	for from, targets := range evaluationTransitions {
		for _, to := range targets {
			if to == next {
				return from, true
			}
		}
	}
	return "", false
}

func (s EvaluationStatus) Terminal() bool {
	return s == EvaluationCompleted || s == EvaluationFailed
}

func ParseEvaluationStatus(raw string) (EvaluationStatus, error) {
	switch s := EvaluationStatus(strings.TrimSpace(raw)); s {
	case EvaluationPending, EvaluationInProgress, EvaluationCompleted, EvaluationFailed:
		return s, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse evaluation status", fmt.Errorf("unknown status %q", raw))
	}
}

// Evaluation is one versioned run of a rubric against a video.
type Evaluation struct {
	ID              int64            `json:"id"`
	VideoID         string           `json:"video_id"`
	RubricName      string           `json:"rubric_name"`
	Version         int              `json:"version"`
	Status          EvaluationStatus `json:"status"`
	Evaluator       string           `json:"evaluator"`
	ModelName       string           `json:"model_name"`
	Cost            float64          `json:"cost"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	DurationSeconds float64          `json:"duration_seconds"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	Result          json.RawMessage  `json:"result,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	ResultPath      string           `json:"result_path,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// EvaluationCompletion carries the fields written when a run completes.
type EvaluationCompletion struct {
	Evaluator       string
	ModelName       string
	Cost            float64
	CompletedAt     time.Time
	DurationSeconds float64
	Result          json.RawMessage
	Summary         string
	ResultPath      string
}

// EvaluationRequest is what a caller asks for; the server fills the version.
type EvaluationRequest struct {
	VideoID        string           `json:"video_id"`
	Rubric         string           `json:"rubric"`
	Evaluator      string           `json:"evaluator,omitempty"`
	Model          string           `json:"model,omitempty"`
	Sampling       SamplingStrategy `json:"sampling,omitempty"`
	MaxFrames      int              `json:"max_frames,omitempty"`
	TimeoutSeconds int              `json:"timeout_seconds,omitempty"`
}

func (r EvaluationRequest) Validate() error {
	if strings.TrimSpace(r.VideoID) == "" {
		return WrapError(ErrInvalidInput, "validate evaluation request", fmt.Errorf("video_id is required"))
	}
	if strings.TrimSpace(r.Rubric) == "" {
		return WrapError(ErrInvalidInput, "validate evaluation request", fmt.Errorf("rubric is required"))
	}
	if r.MaxFrames < 0 {
		return WrapError(ErrInvalidInput, "validate evaluation request", fmt.Errorf("max_frames must be positive"))
	}
	if r.TimeoutSeconds < 0 {
		return WrapError(ErrInvalidInput, "validate evaluation request", fmt.Errorf("timeout_seconds must be positive"))
	}
	if r.Sampling != "" {
		if _, err := ParseSamplingStrategy(string(r.Sampling)); err != nil {
			return err
		}
	}
	return nil
}

// EvaluationJob is the queued unit of work for an already created pending row.
type EvaluationJob struct {
	EvaluationID int64             `json:"evaluation_id"`
	Request      EvaluationRequest `json:"request"`
	EnqueuedAt   time.Time         `json:"enqueued_at"`
}

// IngestJob is the queued unit of work for one ingestion.
type IngestJob struct {
	JobID      string        `json:"job_id"`
	Request    IngestRequest `json:"request"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// EvaluationInput is everything an evaluator needs for one run.
type EvaluationInput struct {
	VideoID     string
	Rubric      Rubric
	Model       string
	Frames      []string
	TotalFrames int
	Transcript  string
	Metadata    VideoMetadata
}

type TokenUsage struct {
	InputTokens  int  `json:"input_tokens"`
	OutputTokens int  `json:"output_tokens"`
	Estimated    bool `json:"estimated,omitempty"`
}

// EvaluationOutput is an evaluator result before it is turned into a report.
type EvaluationOutput struct {
	Markdown       string
	Model          string
	Usage          TokenUsage
	BatchSize      int
	Batches        int
	VisionModel    string
	SynthesisModel string
}

// SummarizeMarkdown keeps the first three lines, capped at 200 characters.
func SummarizeMarkdown(md string) string {
	lines := strings.Split(strings.TrimSpace(md), "\n")
	if len(lines) > 3 {
		lines = lines[:3]
	}
	summary := strings.TrimSpace(strings.Join(lines, " "))
	runes := []rune(summary)
	if len(runes) > 200 {
		return string(runes[:200]) + "..."
	}
	return summary
}
