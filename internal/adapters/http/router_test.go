package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/video-evaluator/internal/config"
	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

type ingestFake struct {
	enqueued []domain.IngestRequest
	err      error
}

func (f *ingestFake) Ingest(context.Context, domain.IngestRequest) (*domain.IngestResult, error) {
	return nil, errors.New("not used")
}

func (f *ingestFake) Enqueue(_ context.Context, req domain.IngestRequest) (*domain.IngestJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.enqueued = append(f.enqueued, req)
	return &domain.IngestJob{JobID: "job-1", Request: req, EnqueuedAt: time.Unix(1700000000, 0).UTC()}, nil
}

type evaluationsFake struct {
	submitted []domain.EvaluationRequest
	err       error
}

func (f *evaluationsFake) Submit(_ context.Context, req domain.EvaluationRequest) (*domain.Evaluation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = append(f.submitted, req)
	return &domain.Evaluation{
		ID:         7,
		VideoID:    req.VideoID,
		RubricName: req.Rubric,
		Version:    3,
		Status:     domain.EvaluationPending,
	}, nil
}

func (f *evaluationsFake) Run(context.Context, domain.EvaluationJob) (*domain.EvaluationReport, error) {
	return nil, errors.New("not used")
}

func (f *evaluationsFake) EvaluateNow(context.Context, domain.EvaluationRequest) (*domain.Evaluation, *domain.EvaluationReport, error) {
	return nil, nil, errors.New("not used")
}

type dashboardFake struct {
	videos      []domain.VideoStatusRow
	detail      *domain.VideoDetail
	evaluation  *domain.Evaluation
	versions    []domain.Evaluation
	rubrics     []domain.Rubric
	stats       []domain.RubricStatsRow
	recentLimit int
	deleted     []string
	workbook    string
	err         error
}

func (f *dashboardFake) Videos(context.Context) ([]domain.VideoStatusRow, error) {
	return f.videos, f.err
}

func (f *dashboardFake) VideoDetail(_ context.Context, videoID string) (*domain.VideoDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.detail == nil || f.detail.Video.ID != videoID {
		return nil, domain.WrapError(domain.ErrVideoNotFound, "get video", fmt.Errorf("id=%s", videoID))
	}
	return f.detail, nil
}

func (f *dashboardFake) DeleteVideo(_ context.Context, videoID string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, videoID)
	return nil
}

func (f *dashboardFake) Evaluation(_ context.Context, id int64) (*domain.Evaluation, error) {
	if f.evaluation == nil || f.evaluation.ID != id {
		return nil, domain.WrapError(domain.ErrEvaluationNotFound, "get evaluation", fmt.Errorf("id=%d", id))
	}
	return f.evaluation, nil
}

func (f *dashboardFake) EvaluationVersions(context.Context, string, string) ([]domain.Evaluation, error) {
	return f.versions, f.err
}

func (f *dashboardFake) LatestEvaluation(_ context.Context, videoID, rubric string) (*domain.Evaluation, error) {
	for _, eval := range f.versions {
		if eval.VideoID == videoID && eval.RubricName == rubric {
			return &eval, nil
		}
	}
	return nil, domain.WrapError(domain.ErrEvaluationNotFound, "latest evaluation", fmt.Errorf("%s/%s", videoID, rubric))
}

func (f *dashboardFake) Rubrics(context.Context) ([]domain.Rubric, error) {
	return f.rubrics, f.err
}

func (f *dashboardFake) RubricStats(context.Context) ([]domain.RubricStatsRow, error) {
	return f.stats, f.err
}

func (f *dashboardFake) Recent(_ context.Context, limit int) ([]domain.RecentEvaluationRow, error) {
	f.recentLimit = limit
	return nil, f.err
}

func (f *dashboardFake) Costs(context.Context) (domain.CostSummary, error) {
	return domain.CostSummary{TotalCost: 1.25, Evaluations: 4, ByModel: map[string]float64{"claude-sonnet-4": 1.25}}, f.err
}

func (f *dashboardFake) ExportWorkbook(_ context.Context, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, f.workbook)
	return err
}

func newTestHandler(cfg config.Config, dashboard *dashboardFake) http.Handler {
	return NewRouter(cfg, &ingestFake{}, &evaluationsFake{}, dashboard, nil).Handler()
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestEnqueueIngestReturnsAccepted(t *testing.T) {
	ingest := &ingestFake{}
	handler := NewRouter(config.Config{}, ingest, &evaluationsFake{}, &dashboardFake{}, nil).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, jsonRequest(http.MethodPost, "/v1/videos", `{"source":"https://youtu.be/abc123","mode":"add_missing"}`))
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if len(ingest.enqueued) != 1 || ingest.enqueued[0].Mode != domain.IngestAddMissing {
		t.Fatalf("unexpected enqueued requests: %+v", ingest.enqueued)
	}
	if body := decodeBody(t, res); body["job_id"] != "job-1" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestEnqueueIngestRejectsInvalidBody(t *testing.T) {
	handler := newTestHandler(config.Config{}, &dashboardFake{})

	cases := []string{
		`{"mode":"overwrite"}`,
		`{"source":"a.mp4","mode":"replace"}`,
		`{"source":"a.mp4","frame_interval_seconds":0}`,
	}
	for _, body := range cases {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, jsonRequest(http.MethodPost, "/v1/videos", body))
		if res.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, res.Code)
		}
		if decodeBody(t, res)["error"] == "" {
			t.Fatalf("body %s: expected error message", body)
		}
	}
}

func TestSubmitEvaluationUsesPathVideoID(t *testing.T) {
	evals := &evaluationsFake{}
	handler := NewRouter(config.Config{}, &ingestFake{}, evals, &dashboardFake{}, nil).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, jsonRequest(http.MethodPost, "/v1/videos/clip_01/evaluations", `{"rubric":"hook","evaluator":"claude","sampling":"first_n","max_frames":8}`))
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if len(evals.submitted) != 1 {
		t.Fatalf("expected one submission, got %d", len(evals.submitted))
	}
	got := evals.submitted[0]
	if got.VideoID != "clip_01" || got.Rubric != "hook" || got.Sampling != domain.SamplingFirstN || got.MaxFrames != 8 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if loc := res.Header().Get("Location"); loc != "/v1/evaluations/7" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestSubmitEvaluationValidation(t *testing.T) {
	handler := newTestHandler(config.Config{}, &dashboardFake{})

	cases := []string{
		`{}`,
		`{"rubric":"hook","sampling":"random"}`,
		`{"rubric":"hook","max_frames":0}`,
	}
	for _, body := range cases {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, jsonRequest(http.MethodPost, "/v1/videos/clip_01/evaluations", body))
		if res.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d", body, res.Code)
		}
	}
}

func TestErrorMappingThroughHandlers(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"missing dependency", domain.WrapError(domain.ErrMissingDependency, "submit", errors.New("queue disabled")), http.StatusServiceUnavailable},
		{"not found", domain.WrapError(domain.ErrVideoNotFound, "submit", errors.New("clip_01")), http.StatusNotFound},
		{"rubric not found", domain.WrapError(domain.ErrRubricNotFound, "submit", errors.New("nope")), http.StatusNotFound},
		{"transition", domain.WrapError(domain.ErrInvalidStatusTransition, "submit", errors.New("completed->failed")), http.StatusConflict},
		{"timeout", domain.WrapError(domain.ErrTimeout, "submit", errors.New("deadline")), http.StatusGatewayTimeout},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewRouter(config.Config{}, &ingestFake{}, &evaluationsFake{err: tc.err}, &dashboardFake{}, nil).Handler()
			req := jsonRequest(http.MethodPost, "/v1/videos/clip_01/evaluations", `{"rubric":"hook"}`)
			req.Header.Set(requestIDHeader, "req-1")
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)
			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
			body := decodeBody(t, res)
			if body["request_id"] != "req-1" {
				t.Fatalf("expected request id in error body, got %v", body)
			}
			if tc.want == http.StatusInternalServerError && body["error"] != "internal server error" {
				t.Fatalf("internal errors must not leak details, got %v", body["error"])
			}
		})
	}
}

func TestGetVideoAndNotFound(t *testing.T) {
	dashboard := &dashboardFake{detail: &domain.VideoDetail{
		Video:       domain.Video{ID: "clip_01", Title: "Clip"},
		Evaluations: []domain.Evaluation{},
	}}
	handler := newTestHandler(config.Config{}, dashboard)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/videos/clip_01", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/videos/other", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDeleteVideo(t *testing.T) {
	dashboard := &dashboardFake{}
	handler := newTestHandler(config.Config{}, dashboard)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/videos/clip_01", nil))
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	if len(dashboard.deleted) != 1 || dashboard.deleted[0] != "clip_01" {
		t.Fatalf("unexpected deletes: %v", dashboard.deleted)
	}
}

func TestLatestEvaluationRequiresRubric(t *testing.T) {
	dashboard := &dashboardFake{versions: []domain.Evaluation{{ID: 3, VideoID: "clip_01", RubricName: "hook", Version: 2}}}
	handler := newTestHandler(config.Config{}, dashboard)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/videos/clip_01/evaluations/latest", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without rubric, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/videos/clip_01/evaluations/latest?rubric=hook", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["version"] != float64(2) {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestGetEvaluationByID(t *testing.T) {
	dashboard := &dashboardFake{evaluation: &domain.Evaluation{ID: 11, VideoID: "clip_01", Status: domain.EvaluationCompleted}}
	handler := newTestHandler(config.Config{}, dashboard)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/evaluations/11", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/evaluations/12", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/evaluations/abc", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric id, got %d", res.Code)
	}
}

func TestRecentEvaluationsLimit(t *testing.T) {
	dashboard := &dashboardFake{}
	handler := newTestHandler(config.Config{}, dashboard)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/evaluations/recent?limit=5", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if dashboard.recentLimit != 5 {
		t.Fatalf("expected limit 5, got %d", dashboard.recentLimit)
	}
	body := decodeBody(t, res)
	if items, ok := body["evaluations"].([]any); !ok || len(items) != 0 {
		t.Fatalf("expected empty list, got %v", body["evaluations"])
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/evaluations/recent?limit=0", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero limit, got %d", res.Code)
	}
}

func TestRubricStatsIncludesCompletionPercent(t *testing.T) {
	dashboard := &dashboardFake{stats: []domain.RubricStatsRow{{RubricName: "hook", VideosCompleted: 1, TotalVideos: 4}}}
	handler := newTestHandler(config.Config{}, dashboard)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/rubrics/stats", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	rows := decodeBody(t, res)["rubrics"].([]any)
	row := rows[0].(map[string]any)
	if row["rubric_name"] != "hook" || row["completion_percent"] != float64(25) {
		t.Fatalf("unexpected row: %v", row)
	}
}

func TestExportDashboardWorkbook(t *testing.T) {
	handler := newTestHandler(config.Config{}, &dashboardFake{workbook: "PK-fake"})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/reports/dashboard.xlsx", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.HasPrefix(res.Header().Get("Content-Disposition"), "attachment; filename=") {
		t.Fatalf("expected attachment disposition, got %q", res.Header().Get("Content-Disposition"))
	}
	if res.Body.String() != "PK-fake" {
		t.Fatalf("unexpected body %q", res.Body.String())
	}

	failing := newTestHandler(config.Config{}, &dashboardFake{err: errors.New("excel broke")})
	res = httptest.NewRecorder()
	failing.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/reports/dashboard.xlsx", nil))
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json error, got %q", ct)
	}
}

func TestCostsAndHealthz(t *testing.T) {
	handler := newTestHandler(config.Config{}, &dashboardFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/costs", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["total_cost"] != 1.25 {
		t.Fatalf("unexpected costs body: %v", body)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestOpenAPIDocumentLoads(t *testing.T) {
	if _, err := loadOpenAPIRouter(); err != nil {
		t.Fatalf("embedded document is invalid: %v", err)
	}
}
