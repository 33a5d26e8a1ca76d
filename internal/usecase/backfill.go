package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BarPull/internal/domain/models"
	domrepo "BarPull/internal/domain/repository"
	"BarPull/internal/service/ratelimit"
	"BarPull/pkg/logger"
	"BarPull/pkg/metrics"
	"BarPull/pkg/util"
)

// DefaultEpoch is the backfill start used when a job names none.
var DefaultEpoch = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)

// BackfillStore is the part of the store a backfill touches.
type BackfillStore interface {
	domrepo.BarStore
	domrepo.CoverageStore
}

// BackfillerConfig holds the tunables of the chunk walk.
type BackfillerConfig struct {
	Epoch  time.Time
	Pacing ratelimit.Pacing
	// SaveTimeout bounds one chunk upsert.
	SaveTimeout time.Duration
}

// Backfiller walks [start, end) in provider-sized windows, strictly one
// chunk at a time: fetch, save, record progress, pace.
type Backfiller struct {
	fetcher domrepo.ChunkFetcher
	policy  *domrepo.TimeframePolicy
	store   BackfillStore
	events  domrepo.EventPublisher
	metrics domrepo.Metrics
	logger  *logger.Logger
	cfg     BackfillerConfig
	now     func() time.Time
}

type BackfillerOption func(*Backfiller)

func WithEvents(p domrepo.EventPublisher) BackfillerOption {
	return func(b *Backfiller) { b.events = p }
}

func WithBackfillMetrics(m domrepo.Metrics) BackfillerOption {
	return func(b *Backfiller) {
		if m != nil {
			b.metrics = m
		}
	}
}

func WithBackfillLogger(l *logger.Logger) BackfillerOption {
	return func(b *Backfiller) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock replaces time.Now; tests pin "now".
func WithClock(now func() time.Time) BackfillerOption {
	return func(b *Backfiller) { b.now = now }
}

func NewBackfiller(fetcher domrepo.ChunkFetcher, policy *domrepo.TimeframePolicy, store BackfillStore, cfg BackfillerConfig, opts ...BackfillerOption) *Backfiller {
	if policy == nil {
		policy = domrepo.DefaultTimeframePolicy()
	}
	if cfg.Epoch.IsZero() {
		cfg.Epoch = DefaultEpoch
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 30 * time.Second
	}
	b := &Backfiller{
		fetcher: fetcher,
		policy:  policy,
		store:   store,
		cfg:     cfg,
		metrics: metrics.Nop{},
		logger:  logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run executes one job. Provider failures never fail a run; a store
// failure does, and so does cancellation, which is honored between chunks
// only. The result is always non-nil; err is set whenever Success is false.
func (b *Backfiller) Run(ctx context.Context, job models.BackfillJob) (*models.BackfillResult, error) {
	res := &models.BackfillResult{
		JobResult: models.JobResult{
			Kind:      models.JobKindBackfill,
			Symbol:    job.Symbol,
			Timeframe: job.Timeframe,
			StartedAt: b.now().UTC(),
		},
		State:     models.JobInit,
		Providers: map[string]int{},
	}

	res.Start = b.cfg.Epoch.UTC()
	if job.Start != nil {
		res.Start = job.Start.UTC()
	}
	// start on the open time of the bar holding Start
	res.Start = job.Timeframe.Align(res.Start)
	res.End = b.now().UTC()
	if job.End != nil {
		res.End = job.End.UTC()
	}

	log := b.logger.With(
		logger.String("symbol", job.Symbol),
		logger.String("timeframe", job.Timeframe.String()),
		logger.Time("start", res.Start),
		logger.Time("end", res.End),
	)

	window, err := b.policy.Window(job.Timeframe, b.fetcher.MaxRows())
	if err != nil {
		return b.fail(log, res, err)
	}

	var base *models.CoverageRange
	if job.Scope == models.ScopeMerge {
		base, err = b.store.GetCoverage(ctx, job.Symbol, job.Timeframe)
		if err != nil && !errors.Is(err, domrepo.ErrNotFound) {
			return b.fail(log, res, fmt.Errorf("load coverage: %w", err))
		}
	}

	res.State = models.JobChunking
	pacer := b.cfg.Pacing.NewPacer()
	// an in-flight chunk finishes even if ctx is cancelled
	fetchCtx := ratelimit.WithPacer(context.WithoutCancel(ctx), pacer)
	var inserted, written int

	for current := res.Start; current.Before(res.End); {
		if err := ctx.Err(); err != nil {
			res.State = models.JobCancelled
			return b.cancelled(log, res, err)
		}
		windowEnd := util.MinTime(current.Add(window), res.End)

		res.State = models.JobFetching
		chunk, err := b.fetcher.FetchChunk(fetchCtx, job.Symbol, job.Timeframe, current, windowEnd)
		if err != nil {
			return b.fail(log, res, err)
		}
		res.Chunks++

		switch chunk.Outcome {
		case models.ChunkEmpty:
			res.EmptyChunks++
		case models.ChunkExhausted:
			res.ExhaustedChunks++
			log.Warn("all providers failed for chunk, continuing",
				logger.Time("window_start", current),
				logger.Time("window_end", windowEnd),
				logger.Int("attempts", chunk.Attempts),
			)
		}

		if len(chunk.Bars) > 0 {
			res.State = models.JobSaving
			up, err := b.save(ctx, job, chunk.Bars)
			if err != nil {
				return b.fail(log, res, err)
			}
			inserted += up.Inserted
			written += up.Written()
			res.Providers[chunk.Provider] += len(chunk.Bars)
			b.metrics.RecordBarsSaved(job.Symbol, job.Timeframe, up.Inserted, up.Updated)
			b.publishChunk(ctx, log, models.ChunkSavedEvent{
				Symbol:      job.Symbol,
				Timeframe:   job.Timeframe,
				WindowStart: current,
				WindowEnd:   windowEnd,
				Provider:    chunk.Provider,
				Inserted:    up.Inserted,
				Updated:     up.Updated,
				At:          b.now().UTC(),
			})
		}
		log.Debug("chunk done",
			logger.Time("window_start", current),
			logger.Time("window_end", windowEnd),
			logger.String("provider", chunk.Provider),
			logger.String("outcome", string(chunk.Outcome)),
			logger.Int("bars", len(chunk.Bars)),
		)

		current = windowEnd
		res.BarsInserted, res.BarsWritten = inserted, written

		// progress is durable even if the job stops here
		cov := b.coverage(base, job, res.Start, current, inserted, written, false)
		if err := b.writeCoverage(ctx, cov); err != nil {
			return b.fail(log, res, err)
		}
		res.Coverage = &cov

		if current.Before(res.End) {
			if err := pacer.Wait(ctx); err != nil {
				res.State = models.JobCancelled
				return b.cancelled(log, res, err)
			}
		}
	}

	res.State = models.JobRangeUpdate
	cov := b.coverage(base, job, res.Start, res.End, inserted, written, true)
	if err := b.writeCoverage(ctx, cov); err != nil {
		return b.fail(log, res, err)
	}
	res.Coverage = &cov

	res.State = models.JobDone
	res.Success = true
	res.FinishedAt = b.now().UTC()
	log.Info("backfill done",
		logger.Int("chunks", res.Chunks),
		logger.Int("empty_chunks", res.EmptyChunks),
		logger.Int("exhausted_chunks", res.ExhaustedChunks),
		logger.Int("bars_inserted", inserted),
		logger.Int("bars_written", written),
		logger.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

func (b *Backfiller) save(ctx context.Context, job models.BackfillJob, bars []models.Bar) (models.UpsertResult, error) {
	start := time.Now()
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.SaveTimeout)
	defer cancel()

	up, err := b.store.UpsertBars(saveCtx, job.Symbol, job.Timeframe, bars)
	b.metrics.RecordLatency("upsert_bars", time.Since(start).Seconds())
	if err != nil {
		return up, storeWriteError("upsert bars", err)
	}
	return up, nil
}

// coverage builds the coverage row for [start, latest]. Without a base row
// it is exactly that range; with one it only ever widens.
func (b *Backfiller) coverage(base *models.CoverageRange, job models.BackfillJob, start, latest time.Time, inserted, written int, final bool) models.CoverageRange {
	c := models.CoverageRange{
		Symbol:          job.Symbol,
		Timeframe:       job.Timeframe,
		EarliestCovered: start,
		LatestCovered:   latest,
		TotalBarCount:   int64(written),
		IsComplete:      final && written > 0,
		UpdatedAt:       b.now().UTC(),
	}
	if base == nil {
		return c
	}
	c.EarliestCovered = util.MinTime(base.EarliestCovered, start)
	c.LatestCovered = util.MaxTime(base.LatestCovered, latest)
	c.TotalBarCount = base.TotalBarCount + int64(inserted)
	c.IsComplete = base.IsComplete || c.IsComplete
	return c
}

func (b *Backfiller) writeCoverage(ctx context.Context, c models.CoverageRange) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.SaveTimeout)
	defer cancel()
	if err := b.store.UpsertCoverage(saveCtx, c); err != nil {
		return storeWriteError("upsert coverage", err)
	}
	return nil
}

func (b *Backfiller) publishChunk(ctx context.Context, log *logger.Logger, e models.ChunkSavedEvent) {
	if b.events == nil {
		return
	}
	if err := b.events.PublishChunkSaved(context.WithoutCancel(ctx), e); err != nil {
		b.metrics.RecordError("publish_chunk")
		log.Warn("publish chunk event failed", logger.Error(err))
	}
}

func (b *Backfiller) fail(log *logger.Logger, res *models.BackfillResult, err error) (*models.BackfillResult, error) {
	res.State = models.JobFailed
	res.Success = false
	res.Reason = err.Error()
	res.FinishedAt = b.now().UTC()
	b.metrics.RecordError(domrepo.ErrorKind(err))
	log.Error("backfill failed",
		logger.Int("chunks", res.Chunks),
		logger.Int("bars_written", res.BarsWritten),
		logger.Error(err),
	)
	return res, err
}

func (b *Backfiller) cancelled(log *logger.Logger, res *models.BackfillResult, err error) (*models.BackfillResult, error) {
	res.Success = false
	res.Reason = "cancelled"
	res.FinishedAt = b.now().UTC()
	log.Warn("backfill cancelled between chunks",
		logger.Int("chunks", res.Chunks),
		logger.Int("bars_written", res.BarsWritten),
	)
	return res, fmt.Errorf("backfill cancelled: %w", err)
}

func storeWriteError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(domrepo.ErrStoreWrite, err))
}
