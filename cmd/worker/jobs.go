package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/core/ports"
	"github.com/kirillkom/video-evaluator/internal/observability/metrics"
)

const ingestTimeout = 30 * time.Minute

// jobRunner processes ingest and evaluation jobs one at a time across both subjects.
type jobRunner struct {
	ingest   ports.VideoIngestor
	evaluate ports.EvaluationService
	metrics  *metrics.EvaluationMetrics

	ingestSubject   string
	evaluateSubject string

	slot chan struct{}
}

func newJobRunner(ingest ports.VideoIngestor, evaluate ports.EvaluationService, m *metrics.EvaluationMetrics, ingestSubject, evaluateSubject string) *jobRunner {
	return &jobRunner{
		ingest:          ingest,
		evaluate:        evaluate,
		metrics:         m,
		ingestSubject:   ingestSubject,
		evaluateSubject: evaluateSubject,
		slot:            make(chan struct{}, 1),
	}
}

func (r *jobRunner) acquire(ctx context.Context) error {
	select {
	case r.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *jobRunner) release() { <-r.slot }

func (r *jobRunner) handleIngest(ctx context.Context, job domain.IngestJob) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.release()

	r.metrics.ObserveQueueLag(r.ingestSubject, time.Since(job.EnqueuedAt))
	processCtx, cancel := context.WithTimeout(ctx, ingestTimeout)
	defer cancel()

	result, err := r.ingest.Ingest(processCtx, job.Request)
	r.metrics.IngestFinished(err)
	if err != nil {
		return err
	}
	slog.Info("ingest_job_done",
		"job_id", job.JobID,
		"video_id", result.VideoID,
		"frames", result.FrameCount,
		"transcript_words", result.TranscriptWords,
	)
	return nil
}

func (r *jobRunner) handleEvaluation(ctx context.Context, job domain.EvaluationJob) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	defer r.release()

	r.metrics.ObserveQueueLag(r.evaluateSubject, time.Since(job.EnqueuedAt))
	// Run applies the per-request timeout itself.
	_, err := r.evaluate.Run(ctx, job)
	return err
}
