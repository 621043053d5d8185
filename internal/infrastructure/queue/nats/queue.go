package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/video-evaluator/internal/core/domain"
	"github.com/kirillkom/video-evaluator/internal/infrastructure/resilience"
)

const (
	DefaultIngestSubject   = "videos.ingest"
	DefaultEvaluateSubject = "videos.evaluate"
	queueGroup             = "workers"
)

// jobIDHeader correlates worker logs with the publisher. Core NATS does not deduplicate on it.
const jobIDHeader = "Job-Id"

// Queue carries ingestion and evaluation jobs as JSON over two core NATS subjects.
type Queue struct {
	conn            *nats.Conn
	ingestSubject   string
	evaluateSubject string
	executor        *resilience.Executor
}

type Options struct {
	IngestSubject        string
	EvaluateSubject      string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("video-evaluator"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return newWithConn(conn, options), nil
}

func newWithConn(conn *nats.Conn, options Options) *Queue {
	ingest := options.IngestSubject
	if ingest == "" {
		ingest = DefaultIngestSubject
	}
	evaluate := options.EvaluateSubject
	if evaluate == "" {
		evaluate = DefaultEvaluateSubject
	}
	return &Queue{
		conn:            conn,
		ingestSubject:   ingest,
		evaluateSubject: evaluate,
		executor:        options.ResilienceExecutor,
	}
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishIngest(ctx context.Context, job domain.IngestJob) error {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	return q.publish(ctx, q.ingestSubject, job.JobID, job)
}

func (q *Queue) PublishEvaluation(ctx context.Context, job domain.EvaluationJob) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	return q.publish(ctx, q.evaluateSubject, fmt.Sprintf("evaluation-%d", job.EvaluationID), job)
}

func (q *Queue) publish(ctx context.Context, subject, jobID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(jobIDHeader, jobID)

	call := func(_ context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish %s: %w", subject, err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, resilience.OperationNATSPublish, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishError(err)
	}
	return nil
}

func (q *Queue) SubscribeIngest(ctx context.Context, handler func(context.Context, domain.IngestJob) error) error {
	return q.subscribe(ctx, q.ingestSubject, func(handlerCtx context.Context, data []byte) error {
		var job domain.IngestJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("decode ingest job: %w", err)
		}
		return handler(handlerCtx, job)
	})
}

func (q *Queue) SubscribeEvaluations(ctx context.Context, handler func(context.Context, domain.EvaluationJob) error) error {
	return q.subscribe(ctx, q.evaluateSubject, func(handlerCtx context.Context, data []byte) error {
		var job domain.EvaluationJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("decode evaluation job: %w", err)
		}
		if job.EvaluationID <= 0 {
			return fmt.Errorf("decode evaluation job: missing evaluation_id")
		}
		return handler(handlerCtx, job)
	})
}

// subscribe blocks until ctx is done, then drains so in-flight jobs finish.
func (q *Queue) subscribe(ctx context.Context, subject string, handle func(context.Context, []byte) error) error {
	sub, err := q.conn.QueueSubscribe(subject, queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handle(handlerCtx, msg.Data); err != nil {
			slog.Error("queue_handler_failed",
				"subject", subject,
				"job_id", msg.Header.Get(jobIDHeader),
				"error", err,
			)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
