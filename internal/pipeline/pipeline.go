package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/tb-calibration/internal/domain"
	"github.com/couchcryptid/tb-calibration/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a calibration request event into a report event. An
// error means the request could not be answered at all; calibration failures
// are reported inside the output event.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error)
}

// BatchLoader writes multiple output events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Pipeline answers calibration requests from the source topic with reports on
// the sink topic, one batch at a time.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil once the most recent extract from the source
// succeeded, or an error describing why the worker is not ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not reached the source topic")
	}
	return nil
}

// Ready reports whether the most recent extract succeeded.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// Run processes batches until ctx is cancelled. Extract and load failures
// are retried with exponential backoff; Run itself only returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer func() {
		p.ready.Store(false)
		p.metrics.PipelineRunning.Set(0)
		p.logger.Info("pipeline stopping", "reason", context.Cause(ctx))
	}()

	b := &backoff{delay: initialBackoff}
	for ctx.Err() == nil {
		if !p.step(ctx, b) {
			break
		}
	}
	return nil
}

// backoff tracks the retry delay between failed extracts or loads.
type backoff struct {
	delay time.Duration
}

func (b *backoff) reset() { b.delay = initialBackoff }

// wait sleeps for the current delay and doubles it. It returns false when
// ctx ends first.
func (b *backoff) wait(ctx context.Context) bool {
	if !retry.SleepWithContext(ctx, b.delay) {
		return false
	}
	b.delay = retry.NextBackoff(b.delay, maxBackoff)
	return true
}

// step handles one batch. It returns false when the pipeline should stop.
func (p *Pipeline) step(ctx context.Context, b *backoff) bool {
	started := time.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		p.ready.Store(false)
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return b.wait(ctx)
	}
	p.ready.Store(true)
	if len(batch) == 0 {
		return true
	}
	b.reset()
	p.metrics.MessagesConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))

	reports, answered, ok := p.calibrateBatch(ctx, batch)
	if !ok {
		return false
	}
	if len(reports) == 0 {
		return true
	}

	if err := p.loader.LoadBatch(ctx, reports); err != nil {
		// The batch stays uncommitted.
		p.logger.Error("load batch failed", "error", err, "batch_size", len(reports))
		return ctx.Err() == nil && b.wait(ctx)
	}
	p.metrics.MessagesProduced.Add(float64(len(reports)))
	for _, raw := range answered {
		p.commit(ctx, raw)
	}
	p.metrics.BatchProcessingDuration.Observe(time.Since(started).Seconds())
	return true
}

// calibrateBatch turns each request into a report. Undecodable requests are
// committed and skipped. When ctx ends mid-batch nothing is returned, so the
// whole batch is redelivered.
func (p *Pipeline) calibrateBatch(ctx context.Context, batch []domain.RawEvent) ([]domain.OutputEvent, []domain.RawEvent, bool) {
	reports := make([]domain.OutputEvent, 0, len(batch))
	answered := make([]domain.RawEvent, 0, len(batch))

	for _, raw := range batch {
		report, err := p.transformer.Transform(ctx, raw)
		switch {
		case err == nil:
			reports = append(reports, report)
			answered = append(answered, raw)
		case ctx.Err() != nil:
			return nil, nil, false
		default:
			p.logger.Warn("undecodable request, skipping message",
				"error", err, "topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
			p.metrics.DecodeErrors.Inc()
			p.commit(ctx, raw)
		}
	}
	return reports, answered, true
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
