package provider

import (
	"context"
	"errors"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	"BarPull/internal/service/ratelimit"
	"BarPull/internal/service/symbols"
	"BarPull/pkg/logger"
	"BarPull/pkg/metrics"
)

// Source is one provider in the fallback chain with its symbol mapping.
type Source struct {
	Provider repository.BarProvider
	Mapper   *symbols.Mapper
	// Intervals overrides the policy's interval code per timeframe.
	Intervals map[models.Timeframe]string
	MaxRows   int
}

// Chain tries sources in order and returns the first usable answer.
type Chain struct {
	sources []Source
	policy  *repository.TimeframePolicy
	retry   ratelimit.RetryPolicy
	budget  *ratelimit.Budget
	metrics repository.Metrics
	logger  *logger.Logger
}

// ChainOption configures Chain.
type ChainOption func(*Chain)

func WithBudget(b *ratelimit.Budget) ChainOption {
	return func(c *Chain) { c.budget = b }
}

func WithMetrics(m repository.Metrics) ChainOption {
	return func(c *Chain) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithLogger(l *logger.Logger) ChainOption {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChain builds a fallback chain. Permanent errors are never retried.
func NewChain(policy *repository.TimeframePolicy, sources []Source, retry ratelimit.RetryPolicy, opts ...ChainOption) (*Chain, error) {
	if len(sources) == 0 {
		return nil, errors.Join(repository.ErrConfiguration, errors.New("no providers configured"))
	}
	if policy == nil {
		policy = repository.DefaultTimeframePolicy()
	}
	for i := range sources {
		if sources[i].Mapper == nil {
			sources[i].Mapper = symbols.NewMapper("", nil)
		}
		if sources[i].MaxRows <= 0 {
			sources[i].MaxRows = repository.DefaultMaxRowsPerRequest
		}
	}
	retry.Retryable = func(err error) bool { return !repository.IsPermanent(err) }

	c := &Chain{
		sources: sources,
		policy:  policy,
		retry:   retry,
		metrics: metrics.Nop{},
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// MaxRows is the smallest row cap of all sources.
func (c *Chain) MaxRows() int {
	n := 0
	for _, s := range c.sources {
		if n == 0 || s.MaxRows < n {
			n = s.MaxRows
		}
	}
	return n
}

// FetchChunk resolves [start, end). A source answering with zero rows wins
// like any other; only when every source failed is the chunk exhausted.
// The returned error is non-nil only for configuration problems.
//
// When ctx carries a ratelimit.Pacer, every request after the first one of
// the chunk waits on it, retries and fallbacks included.
func (c *Chain) FetchChunk(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) (models.ChunkResult, error) {
	rule, err := c.policy.Resolve(tf)
	if err != nil {
		return models.ChunkResult{}, err
	}

	result := models.ChunkResult{Outcome: models.ChunkExhausted}
	pace := c.pacing(ctx)
	for _, src := range c.sources {
		id := src.Provider.ID()
		interval := rule.IntervalCode
		if code, ok := src.Intervals[tf]; ok {
			interval = code
		}
		req := repository.FetchRequest{
			Pair:     src.Mapper.Resolve(symbol),
			Interval: interval,
			StartMs:  start.UnixMilli(),
			EndMs:    end.UnixMilli() - 1,
			Limit:    src.MaxRows,
		}

		bars, attempts, err := c.fetch(ctx, src, req, pace)
		result.Attempts += attempts
		if err != nil {
			c.metrics.RecordProviderError(id, repository.ErrorKind(err))
			c.logger.Warn("provider failed for chunk",
				logger.String("provider", id),
				logger.String("symbol", symbol),
				logger.String("timeframe", tf.String()),
				logger.Time("window_start", start),
				logger.Int("attempts", attempts),
				logger.Error(err),
			)
			continue
		}

		for i := range bars {
			bars[i].Symbol = symbol
			bars[i].Timeframe = tf
			bars[i].Provider = id
		}
		bars = models.NormalizeBars(bars, tf, start, end)

		outcome := models.ChunkFetched
		if len(bars) == 0 {
			outcome = models.ChunkEmpty
		}
		c.metrics.RecordChunk(id, outcome, len(bars))
		return models.ChunkResult{
			Bars:     bars,
			Provider: id,
			Outcome:  outcome,
			Attempts: result.Attempts,
		}, nil
	}

	c.metrics.RecordChunk("", models.ChunkExhausted, 0)
	return result, nil
}

// pacing returns a hook to run before each request of one chunk.
func (c *Chain) pacing(ctx context.Context) func(context.Context) error {
	pacer := ratelimit.PacerFrom(ctx)
	if pacer == nil {
		return func(context.Context) error { return nil }
	}
	sent := 0
	return func(ctx context.Context) error {
		sent++
		if sent == 1 {
			return nil
		}
		return pacer.Wait(ctx)
	}
}

func (c *Chain) fetch(ctx context.Context, src Source, req repository.FetchRequest, pace func(context.Context) error) ([]models.Bar, int, error) {
	id := src.Provider.ID()
	retry := c.retry
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.metrics.RecordRetry(id)
		c.logger.Debug("retrying provider request",
			logger.String("provider", id),
			logger.Int("attempt", attempt),
			logger.Duration("backoff", delay),
			logger.Error(err),
		)
	}

	var bars []models.Bar
	attempts, err := retry.Do(ctx, func(ctx context.Context, _ int) error {
		if err := pace(ctx); err != nil {
			return err
		}
		if c.budget != nil {
			if err := c.budget.Wait(ctx, id); err != nil {
				return err
			}
		}
		b, err := src.Provider.FetchWindow(ctx, req)
		if err != nil {
			return err
		}
		bars = b
		return nil
	})
	return bars, attempts, err
}
