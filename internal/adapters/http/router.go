package httpadapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kirillkom/video-evaluator/internal/config"
	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/core/ports"
	"github.com/kirillkom/video-evaluator/internal/observability/metrics"
)

const (
	serviceName        = "api"
	maxRequestBodySize = 1 << 20
	xlsxContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Router struct {
	cfg         config.Config
	ingest      ports.VideoIngestor
	evaluations ports.EvaluationService
	dashboard   ports.DashboardService
	httpMetrics *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	ingest ports.VideoIngestor,
	evaluations ports.EvaluationService,
	dashboard ports.DashboardService,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:         cfg,
		ingest:      ingest,
		evaluations: evaluations,
		dashboard:   dashboard,
		httpMetrics: httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return authMiddleware(next, rt.cfg.APIKey)
	})
	r.Use(func(next http.Handler) http.Handler {
		return rateLimitMiddleware(next, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateBurst)
	})
	r.Use(func(next http.Handler) http.Handler {
		wait := time.Duration(rt.cfg.APIInflightWaitMS) * time.Millisecond
		return backpressureMiddleware(next, rt.cfg.APIMaxInflight, wait)
	})
	if validator, err := loadOpenAPIRouter(); err != nil {
		slog.Error("openapi_validation_disabled", "error", err)
	} else {
		r.Use(requestValidationMiddleware(validator))
	}

	r.Get("/healthz", rt.healthz)
	r.Get("/openapi.yaml", rt.openAPIDocument)
	if rt.httpMetrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.httpMetrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/videos", rt.listVideos)
		r.Post("/videos", rt.enqueueIngest)
		r.Get("/videos/{videoID}", rt.getVideo)
		r.Delete("/videos/{videoID}", rt.deleteVideo)
		r.Get("/videos/{videoID}/evaluations", rt.listVideoEvaluations)
		r.Post("/videos/{videoID}/evaluations", rt.submitEvaluation)
		r.Get("/videos/{videoID}/evaluations/latest", rt.latestEvaluation)
		r.Get("/evaluations/recent", rt.recentEvaluations)
		r.Get("/evaluations/{evaluationID}", rt.getEvaluation)
		r.Get("/rubrics", rt.listRubrics)
		r.Get("/rubrics/stats", rt.rubricStats)
		r.Get("/costs", rt.costs)
		r.Get("/reports/dashboard.xlsx", rt.exportDashboard)
	})

	if rt.httpMetrics == nil {
		return r
	}
	return rt.httpMetrics.Middleware(serviceName, r)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(OpenAPIDocument())
}

func (rt *Router) listVideos(w http.ResponseWriter, r *http.Request) {
	rows, err := rt.dashboard.Videos(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": nonNil(rows)})
}

func (rt *Router) enqueueIngest(w http.ResponseWriter, r *http.Request) {
	var req domain.IngestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	job, err := rt.ingest.Enqueue(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) getVideo(w http.ResponseWriter, r *http.Request) {
	detail, err := rt.dashboard.VideoDetail(r.Context(), chi.URLParam(r, "videoID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *Router) deleteVideo(w http.ResponseWriter, r *http.Request) {
	if err := rt.dashboard.DeleteVideo(r.Context(), chi.URLParam(r, "videoID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) listVideoEvaluations(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	rubric := strings.TrimSpace(r.URL.Query().Get("rubric"))

	evals, err := rt.dashboard.EvaluationVersions(r.Context(), videoID, rubric)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"video_id":    videoID,
		"evaluations": nonNil(evals),
	})
}

func (rt *Router) submitEvaluation(w http.ResponseWriter, r *http.Request) {
	var req domain.EvaluationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.VideoID = chi.URLParam(r, "videoID")

	eval, err := rt.evaluations.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/evaluations/%d", eval.ID))
	writeJSON(w, http.StatusAccepted, eval)
}

func (rt *Router) latestEvaluation(w http.ResponseWriter, r *http.Request) {
	rubric := strings.TrimSpace(r.URL.Query().Get("rubric"))
	if rubric == "" {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "latest evaluation", fmt.Errorf("rubric query parameter is required")))
		return
	}

	eval, err := rt.dashboard.LatestEvaluation(r.Context(), chi.URLParam(r, "videoID"), rubric)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (rt *Router) recentEvaluations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "recent evaluations", fmt.Errorf("limit must be a positive integer")))
			return
		}
		limit = parsed
	}

	rows, err := rt.dashboard.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evaluations": nonNil(rows)})
}

func (rt *Router) getEvaluation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "evaluationID"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "get evaluation", fmt.Errorf("evaluation id must be a positive integer")))
		return
	}

	eval, err := rt.dashboard.Evaluation(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (rt *Router) listRubrics(w http.ResponseWriter, r *http.Request) {
	rubrics, err := rt.dashboard.Rubrics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rubrics": nonNil(rubrics)})
}

type rubricStatsResponse struct {
	domain.RubricStatsRow
	CompletionPercent float64 `json:"completion_percent"`
}

func (rt *Router) rubricStats(w http.ResponseWriter, r *http.Request) {
	rows, err := rt.dashboard.RubricStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]rubricStatsResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, rubricStatsResponse{RubricStatsRow: row, CompletionPercent: row.CompletionPercent()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rubrics": out})
}

func (rt *Router) costs(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.dashboard.Costs(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) exportDashboard(w http.ResponseWriter, r *http.Request) {
	// Buffered so a failed export can still return a JSON error.
	var buf bytes.Buffer
	if err := rt.dashboard.ExportWorkbook(r.Context(), &buf); err != nil {
		writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("dashboard_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request body", err)
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
