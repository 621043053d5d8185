package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
)

const namespace = "videoeval"

// EvaluationMetrics records evaluation runs and queue lag for the worker and CLI.
type EvaluationMetrics struct {
	registry *prometheus.Registry
	service  string

	evaluationsTotal   *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	evaluationInFlight prometheus.Gauge
	framesAnalyzed     *prometheus.HistogramVec
	tokensTotal        *prometheus.CounterVec
	costTotal          *prometheus.CounterVec
	ingestTotal        *prometheus.CounterVec
	queueLag           *prometheus.HistogramVec
}

func NewEvaluationMetrics(service string) *EvaluationMetrics {
	registry := prometheus.NewRegistry()

	evaluationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "runs_total",
			Help:      "Total evaluation runs by evaluator and final status.",
		},
		[]string{"service", "evaluator", "status"},
	)
	evaluationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "duration_seconds",
			Help:      "Evaluation wall time in seconds by evaluator and status.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"service", "evaluator", "status"},
	)
	evaluationInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "in_flight",
			Help:      "Number of evaluations currently running.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	framesAnalyzed := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "frames_analyzed",
			Help:      "Frames sent to the model per evaluation.",
			Buckets:   []float64{1, 5, 10, 20, 30, 50, 100, 200},
		},
		[]string{"service", "evaluator"},
	)
	tokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Token usage by evaluator and direction.",
		},
		[]string{"service", "evaluator", "direction"},
	)
	costTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Model spend in USD by evaluator.",
		},
		[]string{"service", "evaluator"},
	)
	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Total ingestion runs by status.",
		},
		[]string{"service", "status"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between enqueueing a job and starting it.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "subject"},
	)

	registry.MustRegister(evaluationsTotal, evaluationDuration, evaluationInFlight, framesAnalyzed,
		tokensTotal, costTotal, ingestTotal, queueLag)

	return &EvaluationMetrics{
		registry:           registry,
		service:            service,
		evaluationsTotal:   evaluationsTotal,
		evaluationDuration: evaluationDuration,
		evaluationInFlight: evaluationInFlight,
		framesAnalyzed:     framesAnalyzed,
		tokensTotal:        tokensTotal,
		costTotal:          costTotal,
		ingestTotal:        ingestTotal,
		queueLag:           queueLag,
	}
}

func (m *EvaluationMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *EvaluationMetrics) EvaluationStarted(string) {
	m.evaluationInFlight.Inc()
}

func (m *EvaluationMetrics) EvaluationFinished(evaluator, status string, duration time.Duration, frames int, usage domain.TokenUsage, cost float64) {
	m.evaluationInFlight.Dec()
	if evaluator == "" {
		evaluator = "unknown"
	}

	m.evaluationsTotal.WithLabelValues(m.service, evaluator, status).Inc()
	m.evaluationDuration.WithLabelValues(m.service, evaluator, status).Observe(duration.Seconds())
	if frames > 0 {
		m.framesAnalyzed.WithLabelValues(m.service, evaluator).Observe(float64(frames))
	}
	if usage.InputTokens > 0 {
		m.tokensTotal.WithLabelValues(m.service, evaluator, "in").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		m.tokensTotal.WithLabelValues(m.service, evaluator, "out").Add(float64(usage.OutputTokens))
	}
	if cost > 0 {
		m.costTotal.WithLabelValues(m.service, evaluator).Add(cost)
	}
}

func (m *EvaluationMetrics) IngestFinished(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ingestTotal.WithLabelValues(m.service, status).Inc()
}

func (m *EvaluationMetrics) ObserveQueueLag(subject string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service, subject).Observe(lag.Seconds())
}
