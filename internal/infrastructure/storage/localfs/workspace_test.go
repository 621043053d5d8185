package localfs

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

func newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return ws
}

func TestPrepareCreatesLayout(t *testing.T) {
	ws := newWorkspace(t)
	if err := ws.Prepare("clip"); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	for _, sub := range []string{"frames", "evaluations"} {
		if info, err := os.Stat(filepath.Join(ws.BasePath(), "clip", sub)); err != nil || !info.IsDir() {
			t.Fatalf("expected %s dir, err=%v", sub, err)
		}
	}
}

func TestRejectsTraversalIDs(t *testing.T) {
	ws := newWorkspace(t)
	for _, id := range []string{"../etc", "a/b", "", "."} {
		if err := ws.Prepare(id); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("Prepare(%q) expected invalid input, got %v", id, err)
		}
	}
}

func TestListFramesSortedAndMissing(t *testing.T) {
	ws := newWorkspace(t)
	if err := ws.Prepare("clip"); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if _, err := ws.ListFrames("clip"); !domain.IsKind(err, domain.ErrVideoNotFound) {
		t.Fatalf("expected not found for empty frames dir, got %v", err)
	}

	for _, name := range []string{"frame_0002_t4.0s.jpg", "frame_0000_t0.0s.jpg", "frame_0001_t2.0s.jpg", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(ws.FramesDir("clip"), name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	frames, err := ws.ListFrames("clip")
	if err != nil {
		t.Fatalf("ListFrames() error = %v", err)
	}
	if len(frames) != 3 || !strings.HasSuffix(frames[0], "frame_0000_t0.0s.jpg") {
		t.Fatalf("unexpected frames %v", frames)
	}
}

func TestMetadataAndTranscriptMissingAreNotFound(t *testing.T) {
	ws := newWorkspace(t)
	if _, err := ws.ReadMetadata("ghost"); !domain.IsKind(err, domain.ErrVideoNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := ws.ReadTranscript("ghost"); !domain.IsKind(err, domain.ErrVideoNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTranscriptWritesTextAndJSON(t *testing.T) {
	ws := newWorkspace(t)
	if err := ws.Prepare("clip"); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	tr := &domain.Transcript{Text: "hi all", Segments: []domain.TranscriptSegment{{Start: 0, End: 1, Text: "hi all"}}}
	if err := ws.WriteTranscript("clip", tr); err != nil {
		t.Fatalf("WriteTranscript() error = %v", err)
	}
	text, err := ws.ReadTranscript("clip")
	if err != nil || !strings.Contains(text, "[00:00 - 00:01] hi all") {
		t.Fatalf("unexpected transcript %q err=%v", text, err)
	}
	raw, err := ws.ReadTranscriptJSON("clip")
	if err != nil || raw.Text != "hi all" {
		t.Fatalf("unexpected transcript json %+v err=%v", raw, err)
	}
	if !ws.HasTranscript("clip") {
		t.Fatalf("expected HasTranscript")
	}
}

func TestNextAvailableIDAndList(t *testing.T) {
	ws := newWorkspace(t)
	if got := ws.NextAvailableID("clip"); got != "clip" {
		t.Fatalf("expected clip, got %s", got)
	}
	for _, id := range []string{"clip", "clip_v2"} {
		if err := ws.Prepare(id); err != nil {
			t.Fatalf("Prepare() error = %v", err)
		}
	}
	if got := ws.NextAvailableID("clip"); got != "clip_v3" {
		t.Fatalf("expected clip_v3, got %s", got)
	}

	if err := ws.WriteMetadata(domain.VideoMetadata{VideoID: "clip_v2"}); err != nil {
		t.Fatalf("WriteMetadata() error = %v", err)
	}
	ids, err := ws.ListVideoIDs()
	if err != nil {
		t.Fatalf("ListVideoIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "clip_v2" {
		t.Fatalf("expected only dirs with metadata, got %v", ids)
	}
}

func TestSaveSource(t *testing.T) {
	ws := newWorkspace(t)
	path, err := ws.SaveSource(context.Background(), "clip", strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("SaveSource() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "video-bytes" || !ws.HasSource("clip") {
		t.Fatalf("unexpected source content %q", data)
	}
}

func TestReportRoundTrip(t *testing.T) {
	ws := newWorkspace(t)
	store := NewReportStore(ws)

	at := time.Date(2025, 3, 4, 5, 6, 7, 890000000, time.UTC)
	report := domain.EvaluationReport{
		VideoID:            "clip",
		Evaluator:          "ollama-llava",
		Rubric:             "content_rating",
		Model:              "llava:34b",
		Timestamp:          domain.NewTimestamp(at),
		EvaluationMarkdown: "# Rating\n\nPG",
		Metadata: domain.ReportMetadata{
			VideoMetadata: domain.VideoMetadata{
				VideoID:              "clip",
				SourceType:           domain.SourceLocal,
				SourcePath:           "/videos/clip.mp4",
				DurationSeconds:      61.5,
				FPS:                  29.97,
				FrameIntervalSeconds: 2,
				FrameCount:           3,
				FrameList:            []string{"a.jpg", "b.jpg", "c.jpg"},
				WhisperModel:         "whisper-1",
				TranscriptWordCount:  42,
				IngestionTimestamp:   domain.NewTimestamp(at.Add(-time.Hour)),
				IngestionComplete:    true,
			},
			FramesAnalyzed:       3,
			TotalFramesAvailable: 3,
			SamplingStrategy:     domain.SamplingEven,
			TranscriptWordCount:  42,
			BatchSize:            8,
			NumBatches:           1,
			VisionModel:          "llava:34b",
			SynthesisModel:       "llama3.1:8b-instruct",
		},
		PerformanceMetrics: domain.PerformanceMetrics{ProcessingTimeSeconds: 12.25, FramesProcessed: 3, BatchesProcessed: 1},
		CostInfo:           &domain.CostInfo{InputTokens: 100, OutputTokens: 50, TotalCost: 0},
	}

	path, err := store.Save(report)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if filepath.Base(path) != "ollama-llava_content_rating_20250304_050607.json" {
		t.Fatalf("unexpected file name %s", filepath.Base(path))
	}

	loaded, raw, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("expected raw bytes")
	}
	if !reflect.DeepEqual(*loaded, report) {
		t.Fatalf("round trip mismatch:\nwant %+v\ngot  %+v", report, *loaded)
	}

	second, err := store.Save(report)
	if err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	if second == path {
		t.Fatalf("expected a distinct file for a same-second report")
	}
	listed, err := store.List("clip")
	if err != nil || len(listed) != 2 {
		t.Fatalf("expected 2 reports, got %v err=%v", listed, err)
	}
}

func TestReportLoadOutsideBase(t *testing.T) {
	store := NewReportStore(newWorkspace(t))
	if _, _, err := store.Load("/etc/passwd"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
