package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"golang.org/x/sync/errgroup"

	"github.com/bangalorenow/incident-heatmap/internal/domain"
	"github.com/bangalorenow/incident-heatmap/internal/observability"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second

	// rowFallbackAfter is the number of failed batch loads after which the
	// batch is retried one report at a time to isolate rows the store rejects.
	rowFallbackAfter = 3
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw event into an enriched report.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.Report, error)
}

// BatchLoader writes multiple reports to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, reports []domain.Report) error
}

// Pipeline orchestrates the extract-transform-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	batchSize   int
	concurrency int

	running atomic.Bool
	healthy atomic.Bool
}

// New creates a Pipeline with the given stages and observability. Up to
// concurrency messages of a batch are transformed at once.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize, concurrency int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
		concurrency: max(concurrency, 1),
	}
}

// CheckReadiness returns nil while the pipeline is running and its last
// extract or load succeeded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("pipeline is not running")
	}
	if !p.healthy.Load() {
		return errors.New("pipeline is retrying after a failed extract or load")
	}
	return nil
}

// Run executes the batch ETL loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize, "concurrency", p.concurrency)
	p.running.Store(true)
	p.healthy.Store(true)
	p.metrics.PipelineRunning.Set(1)
	defer func() {
		p.running.Store(false)
		p.metrics.PipelineRunning.Set(0)
	}()

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		if !p.backoffOrStop(ctx, backoff) {
			return false
		}
		// The next extract may block on an idle topic; readiness must not
		// wait for a message to recover.
		p.healthy.Store(true)
		return true
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.healthy.Store(true)
	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = initialBackoff

	loaded, ok := p.transformAndLoad(ctx, rawBatch, backoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	}
	return true
}

// transformAndLoad transforms each message in the batch, loads the successes,
// and commits offsets. Returns the number of successfully loaded reports and
// false if the pipeline should stop.
func (p *Pipeline) transformAndLoad(ctx context.Context, rawBatch []domain.RawEvent, backoff *time.Duration) (int, bool) {
	reports, ok := p.transformBatch(ctx, rawBatch)

	outBatch := make([]domain.Report, 0, len(rawBatch))
	successfulRaws := make([]domain.RawEvent, 0, len(rawBatch))
	for i, raw := range rawBatch {
		if !ok[i] {
			p.commitOffset(ctx, raw)
			continue
		}
		outBatch = append(outBatch, reports[i])
		successfulRaws = append(successfulRaws, raw)
	}

	if len(outBatch) == 0 {
		return 0, true
	}

	// Later commits would implicitly cover a dropped batch, so a failed load
	// is retried until it succeeds or the pipeline stops. After repeated
	// failures the batch is split so a single rejected row cannot block the
	// consumer group.
	for attempt := 1; ; attempt++ {
		err := p.loader.LoadBatch(ctx, outBatch)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return 0, false
		}
		p.logger.Error("load batch failed, retrying",
			"error", err, "batch_size", len(outBatch), "attempt", attempt, "backoff", *backoff)
		if attempt >= rowFallbackAfter && len(outBatch) > 1 {
			if stored, ok := p.loadRows(ctx, outBatch, successfulRaws); ok {
				p.healthy.Store(true)
				return stored, true
			}
		}
		if !p.backoffOrStop(ctx, backoff) {
			return 0, false
		}
	}
	p.healthy.Store(true)

	p.metrics.ReportsStored.Add(float64(len(outBatch)))

	for _, raw := range successfulRaws {
		p.commitOffset(ctx, raw)
	}

	return len(outBatch), true
}

// loadRows loads reports one at a time. If at least one row is stored, the
// rows that still fail are treated as rejected: they are logged, counted and
// committed so the partition can advance. If every row fails the store is
// assumed to be unavailable and nothing is committed; ok is false and the
// caller keeps retrying the whole batch.
func (p *Pipeline) loadRows(ctx context.Context, reports []domain.Report, raws []domain.RawEvent) (int, bool) {
	failed := make([]error, len(reports))
	stored := 0
	for i := range reports {
		if err := p.loader.LoadBatch(ctx, reports[i:i+1]); err != nil {
			if ctx.Err() != nil {
				return 0, false
			}
			failed[i] = err
			continue
		}
		stored++
	}
	if stored == 0 {
		return 0, false
	}

	for i, raw := range raws {
		if failed[i] != nil {
			p.logger.Error("store rejected report, skipping message",
				"error", failed[i],
				"report_id", reports[i].ID,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.LoadRejected.Inc()
		}
		p.commitOffset(ctx, raw)
	}
	p.metrics.ReportsStored.Add(float64(stored))
	return stored, true
}

// transformBatch transforms messages concurrently. Results keep batch order;
// ok[i] is false for messages that failed and should be skipped.
func (p *Pipeline) transformBatch(ctx context.Context, rawBatch []domain.RawEvent) ([]domain.Report, []bool) {
	reports := make([]domain.Report, len(rawBatch))
	ok := make([]bool, len(rawBatch))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, raw := range rawBatch {
		g.Go(func() error {
			r, err := p.transformer.Transform(ctx, raw)
			if err != nil {
				p.logger.Warn("transform failed, skipping message",
					"error", err,
					"topic", raw.Topic,
					"partition", raw.Partition,
					"offset", raw.Offset,
				)
				p.metrics.TransformErrors.Inc()
				return nil
			}
			reports[i] = r
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait() // workers never return an error

	return reports, ok
}

// backoffOrStop marks the pipeline unhealthy, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	p.healthy.Store(false)
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
