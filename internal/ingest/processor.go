// Package ingest drains the login queue into Postgres.
//
// Each iteration long-polls one batch and handles its messages in order:
// decode, mask, insert in a single-row transaction, then delete from the
// queue. A message is deleted only after its row has committed. Failures are
// isolated to the message that caused them; the rest of the batch still runs.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/PratikDhanave/login-pii-pipeline/internal/masking"
	"github.com/PratikDhanave/login-pii-pipeline/internal/metrics"
	"github.com/PratikDhanave/login-pii-pipeline/internal/models"
	"github.com/PratikDhanave/login-pii-pipeline/internal/queue"
	"github.com/PratikDhanave/login-pii-pipeline/internal/store"
)

const tracerName = "github.com/PratikDhanave/login-pii-pipeline/internal/ingest"

// Queue receives and acknowledges messages.
type Queue interface {
	Receive(ctx context.Context) ([]queue.Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Store persists one masked record per call, committed on return.
type Store interface {
	InsertLogin(ctx context.Context, rec models.MaskedRecord) error
}

// Options carries the optional collaborators of a Processor.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Now stamps create_date. Defaults to time.Now.
	Now func() time.Time
	// ReceiveErrorBackoff is the pause after a failed receive.
	ReceiveErrorBackoff time.Duration
}

// Processor is the single sequential worker of the pipeline.
type Processor struct {
	queue   Queue
	store   Store
	masker  *masking.Masker
	log     *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
	backoff time.Duration
}

// NewProcessor wires the queue, store and masker built once at startup.
func NewProcessor(q Queue, st Store, m *masking.Masker, opts Options) (*Processor, error) {
	if q == nil || st == nil || m == nil {
		return nil, errors.New("queue, store and masker required")
	}

	p := &Processor{
		queue:   q,
		store:   st,
		masker:  m,
		log:     opts.Logger,
		metrics: opts.Metrics,
		tracer:  otel.Tracer(tracerName),
		now:     opts.Now,
		backoff: opts.ReceiveErrorBackoff,
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Run repeats RunOnce until ctx is cancelled. Receive errors are logged and
// retried after the configured backoff. Cancellation returns nil.
func (p *Processor) Run(ctx context.Context) error {
	p.log.Info("ingestion loop started")
	defer p.log.Info("ingestion loop stopped")

	for ctx.Err() == nil {
		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.log.Error("receive failed", zap.Error(err))
			if !sleep(ctx, p.backoff) {
				return nil
			}
		}
	}
	return nil
}

// RunOnce receives one batch and handles each message in order.
// The returned error is non-nil only when the receive itself failed.
//
// Messages not yet started when ctx is cancelled are left for redelivery.
// A message already in progress runs to completion so that a committed row
// is not left without its ack.
func (p *Processor) RunOnce(ctx context.Context) (BatchResult, error) {
	msgs, err := p.queue.Receive(ctx)
	if err != nil {
		// A receive cut short by shutdown is not a queue failure.
		if p.metrics != nil && ctx.Err() == nil {
			p.metrics.ReceiveErrorsTotal.Inc()
		}
		return BatchResult{}, err
	}
	if p.metrics != nil {
		p.metrics.BatchesTotal.Inc()
	}

	batch := BatchResult{BatchID: uuid.NewString(), Received: len(msgs)}
	if len(msgs) == 0 {
		return batch, nil
	}

	ctx, span := p.tracer.Start(ctx, "ingest.batch", trace.WithAttributes(
		attribute.String("batch.id", batch.BatchID),
		attribute.Int("batch.size", len(msgs)),
	))
	defer span.End()

	log := p.log.With(zap.String("batch_id", batch.BatchID))

	for _, msg := range msgs {
		if ctx.Err() != nil {
			break
		}

		res := p.HandleMessage(context.WithoutCancel(ctx), msg)
		batch.Results = append(batch.Results, res)

		switch res.Outcome {
		case OutcomeSuccess:
		case OutcomeSkipped:
			log.Debug("message skipped: device_id missing", zap.String("message_id", msg.ID))
		default:
			log.Error("message failed",
				zap.String("message_id", msg.ID),
				zap.String("outcome", string(res.Outcome)),
				zap.Error(res.Err),
			)
		}
	}

	log.Info("batch processed",
		zap.Int("received", batch.Received),
		zap.Int("success", batch.Count(OutcomeSuccess)),
		zap.Int("skipped", batch.Count(OutcomeSkipped)),
		zap.Int("failed_retryable", batch.Count(OutcomeFailedRetryable)),
		zap.Int("failed_permanent", batch.Count(OutcomeFailedPermanent)),
	)
	return batch, nil
}

// HandleMessage runs one message through decode, mask, insert and ack.
func (p *Processor) HandleMessage(ctx context.Context, msg queue.Message) Result {
	ctx, span := p.tracer.Start(ctx, "ingest.message", trace.WithAttributes(
		attribute.String("message.id", msg.ID),
	))
	defer span.End()

	res := p.handle(ctx, msg)

	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(res.Outcome))
	}
	if p.metrics != nil {
		p.metrics.ObserveOutcome(string(res.Outcome))
	}
	return res
}

func (p *Processor) handle(ctx context.Context, msg queue.Message) Result {
	var ev models.LoginEvent
	if err := json.Unmarshal([]byte(msg.Body), &ev); err != nil {
		return resultFor(msg, OutcomeFailedPermanent, fmt.Errorf("%w: %v", ErrMalformedBody, err))
	}

	// Incomplete events stay on the queue until they expire.
	if ev.DeviceID == nil {
		return resultFor(msg, OutcomeSkipped, nil)
	}

	masked, err := p.masker.Mask(ev)
	if err != nil {
		return resultFor(msg, OutcomeFailedPermanent, err)
	}

	if err := ev.RequireFields(models.PassThroughFields...); err != nil {
		return resultFor(msg, OutcomeFailedPermanent, err)
	}

	rec := models.NewMaskedRecord(ev, masked, p.now())

	start := time.Now()
	err = p.store.InsertLogin(ctx, rec)
	if p.metrics != nil {
		p.metrics.InsertDuration.Observe(time.Since(start).Seconds())
	}
	if errors.Is(err, store.ErrRejected) {
		return resultFor(msg, OutcomeFailedPermanent, fmt.Errorf("persist: %w", err))
	}
	if err != nil {
		return resultFor(msg, OutcomeFailedRetryable, fmt.Errorf("persist: %w", err))
	}

	// The row is committed. A failed delete means redelivery and a duplicate row.
	if err := p.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		return resultFor(msg, OutcomeFailedRetryable, fmt.Errorf("acknowledge: %w", err))
	}

	return resultFor(msg, OutcomeSuccess, nil)
}

// sleep waits d or until ctx is done. It reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
