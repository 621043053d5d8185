package localfs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

// ReportStore writes evaluation JSON documents under data/<video_id>/evaluations/.
type ReportStore struct {
	ws *Workspace
}

func NewReportStore(ws *Workspace) *ReportStore {
	return &ReportStore{ws: ws}
}

func (s *ReportStore) Save(report domain.EvaluationReport) (string, error) {
	dir, err := s.ws.videoDir(report.VideoID)
	if err != nil {
		return "", err
	}
	evalDir := filepath.Join(dir, evaluationsDir)
	if err := os.MkdirAll(evalDir, 0o755); err != nil {
		return "", fmt.Errorf("create evaluations dir: %w", err)
	}

	name := domain.ReportFileName(report.Evaluator, report.Rubric, report.Timestamp.Time)
	path := filepath.Join(evalDir, name)
	// Two runs inside the same second get a numeric suffix instead of overwriting.
	for n := 2; fileExists(path); n++ {
		path = filepath.Join(evalDir, fmt.Sprintf("%s_%d.json", name[:len(name)-len(".json")], n))
	}
	if err := writeJSONFile(path, report); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads a report and returns the raw bytes alongside the decoded document.
func (s *ReportStore) Load(path string) (*domain.EvaluationReport, []byte, error) {
	if !withinBase(s.ws.basePath, path) {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "load report", fmt.Errorf("path %q is outside the data dir", path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, notFoundOr(err, "load report")
	}
	var report domain.EvaluationReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, nil, fmt.Errorf("load report: decode %s: %w", filepath.Base(path), err)
	}
	return &report, data, nil
}

func (s *ReportStore) List(videoID string) ([]string, error) {
	dir, err := s.ws.videoDir(videoID)
	if err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(dir, evaluationsDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}
