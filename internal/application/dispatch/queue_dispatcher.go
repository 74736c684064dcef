package dispatch

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/docrender/backend/internal/domain/document"
	"github.com/docrender/backend/internal/infrastructure/queue"
)

// RenderPipeline is the dispatcher's view of the render pipeline
type RenderPipeline interface {
	Execute(ctx context.Context, req *document.RenderRequest) (*document.RenderResult, error)
}

// Publisher delivers reply envelopes keyed by correlation id
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// QueueDispatcherOptions configures the queue-mode dispatcher
type QueueDispatcherOptions struct {
	// PdfOutputPath is where non-inline PDFs are written
	PdfOutputPath string
	// MaxConcurrentRenders bounds in-flight pipeline executions
	MaxConcurrentRenders int
}

// QueueDispatcher handles consumed request envelopes: render, then reply.
// Pipeline failures are returned to the consumer, which owns the retry and
// dead-letter policy; the failure reply goes out once, on exhaustion.
type QueueDispatcher struct {
	pipeline  RenderPipeline
	publisher Publisher
	metrics   *Metrics
	logger    *zap.Logger
	opts      QueueDispatcherOptions
	sem       *semaphore.Weighted
	now       func() time.Time
}

func NewQueueDispatcher(pipeline RenderPipeline, publisher Publisher, metrics *Metrics, opts QueueDispatcherOptions, logger *zap.Logger) *QueueDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConcurrentRenders <= 0 {
		opts.MaxConcurrentRenders = 1
	}
	return &QueueDispatcher{
		pipeline:  pipeline,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		opts:      opts,
		sem:       semaphore.NewWeighted(int64(opts.MaxConcurrentRenders)),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle renders one request and publishes the success reply. Errors are
// surfaced so the consumer can apply its retry policy.
func (d *QueueDispatcher) Handle(ctx context.Context, msg queue.Message) error {
	env, err := queue.DecodeRequest(msg.Value)
	if err != nil {
		// Undeliverable: there is no correlation id to reply to. Drop it
		// rather than burn retries on a message that can never succeed.
		d.logger.Error("dropping undeliverable request", zap.Error(err))
		d.metrics.RecordFailure("")
		return nil
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return document.NewError(document.ErrKindCancelled, "dispatcher shutting down", err)
	}
	defer d.sem.Release(1)

	log := d.logger.With(
		zap.String("correlationId", env.CorrelationID),
		zap.String("documentType", env.Template.DocumentType))

	result, err := d.pipeline.Execute(ctx, d.toRequest(env))
	if err != nil {
		return err
	}

	reply := document.NewResponseEnvelope(env)
	reply.Success = true
	reply.ElapsedMillis = result.ElapsedTime.Milliseconds()
	reply.CompletedAt = d.now()

	if env.Inline() {
		b64 := base64.StdEncoding.EncodeToString(result.PDFBytes)
		reply.PdfBase64 = &b64
	} else {
		path, err := d.writePdf(env, result)
		if err != nil {
			return err
		}
		reply.PdfPath = &path
	}

	if err := d.publish(ctx, env.CorrelationID, reply); err != nil {
		return err
	}

	d.metrics.RecordSuccess(env.Template.DocumentType)
	log.Info("request completed", zap.Int64("elapsedMillis", reply.ElapsedMillis))
	return nil
}

// OnExhausted publishes the failure reply after the consumer has given up
// on the message.
func (d *QueueDispatcher) OnExhausted(ctx context.Context, msg queue.Message, cause error) {
	env, err := queue.DecodeRequest(msg.Value)
	if err != nil {
		d.metrics.RecordFailure("")
		return
	}

	reply := document.NewResponseEnvelope(env)
	reply.Success = false
	reply.ErrorMessage = errorMessage(cause)
	reply.CompletedAt = d.now()

	if err := d.publish(ctx, env.CorrelationID, reply); err != nil {
		d.logger.Error("failure reply not delivered",
			zap.String("correlationId", env.CorrelationID),
			zap.Error(err))
	}
	d.metrics.RecordFailure(env.Template.DocumentType)
}

func (d *QueueDispatcher) toRequest(env *document.RequestEnvelope) *document.RenderRequest {
	jobID, err := uuid.Parse(env.CorrelationID)
	if err != nil {
		// non-UUID correlation ids still render; the reply is keyed by the
		// raw string either way
		jobID = uuid.New()
		d.logger.Warn("correlationId is not a uuid, generated jobId",
			zap.String("correlationId", env.CorrelationID),
			zap.String("jobId", jobID.String()))
	}
	return &document.RenderRequest{
		JobID:     jobID,
		Template:  env.Template,
		CreatedAt: env.RequestedAt,
	}
}

func (d *QueueDispatcher) writePdf(env *document.RequestEnvelope, result *document.RenderResult) (string, error) {
	name := document.OutputFileName(env.Template.DocumentType, env.CorrelationID)
	path := filepath.Join(d.opts.PdfOutputPath, name)

	if err := os.MkdirAll(d.opts.PdfOutputPath, 0o755); err != nil {
		return "", document.NewError(document.ErrKindIOOutput, "failed to create pdf output directory", err)
	}
	if err := os.WriteFile(path, result.PDFBytes, 0o644); err != nil {
		return "", document.NewError(document.ErrKindIOOutput, "failed to write pdf", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return path, nil
	}
	return abs, nil
}

func (d *QueueDispatcher) publish(ctx context.Context, correlationID string, reply *document.ResponseEnvelope) error {
	data, err := queue.EncodeResponse(reply)
	if err != nil {
		return err
	}
	if err := d.publisher.Publish(ctx, correlationID, data); err != nil {
		return document.NewError(document.ErrKindIOOutput, "failed to publish reply", err)
	}
	return nil
}

// errorMessage keeps replies human-readable: the kind and cause chain stay
// in the logs.
func errorMessage(err error) string {
	var derr *document.Error
	if errors.As(err, &derr) {
		return derr.Message
	}
	return err.Error()
}
