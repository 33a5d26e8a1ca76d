package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BarPull/internal/domain/models"
	domrepo "BarPull/internal/domain/repository"
	"BarPull/pkg/logger"
	"BarPull/pkg/metrics"
	"BarPull/pkg/util"
)

// EngineConfig controls the entry point guards.
type EngineConfig struct {
	LockTTL           time.Duration
	AllowUnregistered bool
	DefaultLookback   int
}

// Engine is what the scheduler, the queue workers and the HTTP API call.
// It resolves the instrument, holds the per-key lock and reports results.
type Engine struct {
	backfiller *Backfiller
	repairer   *GapRepairer
	assessor   *QualityAssessor
	coverage   domrepo.CoverageStore
	registry   domrepo.InstrumentRegistry
	locker     domrepo.Locker
	status     domrepo.JobStatusStore
	events     domrepo.EventPublisher
	metrics    domrepo.Metrics
	logger     *logger.Logger
	cfg        EngineConfig
}

func NewEngine(
	backfiller *Backfiller,
	repairer *GapRepairer,
	assessor *QualityAssessor,
	coverage domrepo.CoverageStore,
	registry domrepo.InstrumentRegistry,
	locker domrepo.Locker,
	status domrepo.JobStatusStore,
	events domrepo.EventPublisher,
	m domrepo.Metrics,
	log *logger.Logger,
	cfg EngineConfig,
) *Engine {
	if m == nil {
		m = metrics.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 6 * time.Hour
	}
	if cfg.DefaultLookback <= 0 {
		cfg.DefaultLookback = 168
	}
	return &Engine{
		backfiller: backfiller,
		repairer:   repairer,
		assessor:   assessor,
		coverage:   coverage,
		registry:   registry,
		locker:     locker,
		status:     status,
		events:     events,
		metrics:    m,
		logger:     log,
		cfg:        cfg,
	}
}

// LockKey is the single-writer key of a series.
func LockKey(symbol string, tf models.Timeframe) string {
	return fmt.Sprintf("lock:%s:%s", symbol, tf)
}

// Backfill runs one backfill. With Incremental set it resumes from the open
// time of the bar holding the latest covered timestamp and merges into the
// existing coverage.
func (e *Engine) Backfill(ctx context.Context, cmd models.BackfillCommand) (*models.BackfillResult, error) {
	symbol := util.NormalizeSymbol(cmd.Symbol)
	res := &models.BackfillResult{JobResult: models.JobResult{
		Kind:      models.JobKindBackfill,
		Symbol:    symbol,
		Timeframe: models.Timeframe(cmd.Timeframe),
		StartedAt: time.Now().UTC(),
	}, State: models.JobInit}

	tf, err := e.admit(ctx, symbol, cmd.Timeframe)
	if err != nil {
		return e.rejectBackfill(res, err)
	}
	unlock, err := e.lock(ctx, symbol, tf)
	if err != nil {
		return e.rejectBackfill(res, err)
	}
	defer unlock()

	job := models.BackfillJob{
		Symbol:    symbol,
		Timeframe: tf,
		Start:     cmd.Start,
		End:       cmd.End,
		Scope:     models.ScopeRange,
	}
	if cmd.Incremental {
		job.Scope = models.ScopeMerge
		cov, err := e.coverage.GetCoverage(ctx, symbol, tf)
		switch {
		case err == nil:
			// refetch the bar that was still open at the previous run
			resume := tf.Align(cov.LatestCovered)
			job.Start = &resume
		case !errors.Is(err, domrepo.ErrNotFound):
			return e.rejectBackfill(res, fmt.Errorf("load coverage: %w", err))
		}
	}

	out, err := e.backfiller.Run(ctx, job)
	e.finish(ctx, out.JobResult, out.BarsInserted, out)
	return out, err
}

// RepairGaps finds gaps in the lookback window and backfills each one.
func (e *Engine) RepairGaps(ctx context.Context, cmd models.RepairCommand) (*models.RepairResult, error) {
	symbol := util.NormalizeSymbol(cmd.Symbol)
	lookback := cmd.LookbackHours
	if lookback <= 0 {
		lookback = e.cfg.DefaultLookback
	}
	res := &models.RepairResult{JobResult: models.JobResult{
		Kind:      models.JobKindRepair,
		Symbol:    symbol,
		Timeframe: models.Timeframe(cmd.Timeframe),
		StartedAt: time.Now().UTC(),
	}, LookbackHours: lookback}

	tf, err := e.admit(ctx, symbol, cmd.Timeframe)
	if err != nil {
		return e.rejectRepair(res, err)
	}
	unlock, err := e.lock(ctx, symbol, tf)
	if err != nil {
		return e.rejectRepair(res, err)
	}
	defer unlock()

	out, err := e.repairer.Repair(ctx, symbol, tf, lookback)
	if err != nil {
		e.logger.Error("gap repair failed", logger.String("symbol", symbol), logger.String("timeframe", tf.String()), logger.Error(err))
	}
	e.finish(ctx, out.JobResult, out.BarsInserted, out)
	return out, err
}

// AssessQuality appends a completeness snapshot. It takes no lock since it
// only reads bars.
func (e *Engine) AssessQuality(ctx context.Context, cmd models.QualityCommand) (*models.QualitySnapshot, error) {
	symbol := util.NormalizeSymbol(cmd.Symbol)
	tf, err := e.admit(ctx, symbol, cmd.Timeframe)
	if err != nil {
		e.metrics.RecordJob(models.JobKindQuality, false)
		return nil, err
	}
	lookback := cmd.LookbackHours
	if lookback <= 0 {
		lookback = 24
	}
	snap, err := e.assessor.Assess(ctx, symbol, tf, lookback)
	e.metrics.RecordJob(models.JobKindQuality, err == nil)
	if err != nil {
		e.logger.Error("quality assessment failed", logger.String("symbol", symbol), logger.Error(err))
		return nil, err
	}
	return snap, nil
}

// admit validates the timeframe and checks the registry.
func (e *Engine) admit(ctx context.Context, symbol, timeframe string) (models.Timeframe, error) {
	if symbol == "" {
		return "", fmt.Errorf("%w: symbol required", domrepo.ErrConfiguration)
	}
	tf, err := domrepo.ParseTimeframe(timeframe)
	if err != nil {
		return "", err
	}
	if e.registry == nil || e.cfg.AllowUnregistered {
		return tf, nil
	}
	in, err := e.registry.Lookup(ctx, symbol)
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return "", domrepo.ErrInstrumentNotFound
		}
		return "", err
	}
	if !in.Active {
		return "", domrepo.ErrInstrumentInactive
	}
	return tf, nil
}

func (e *Engine) lock(ctx context.Context, symbol string, tf models.Timeframe) (func(), error) {
	if e.locker == nil {
		return func() {}, nil
	}
	key := LockKey(symbol, tf)
	ok, err := e.locker.TryLock(ctx, key, e.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, domrepo.ErrJobInProgress
	}
	return func() {
		if err := e.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
			e.logger.Warn("release lock failed", logger.String("key", key), logger.Error(err))
		}
	}, nil
}

// LastStatus returns the latest finished job of kind for a series.
func (e *Engine) LastStatus(ctx context.Context, kind models.JobKind, symbol string, tf models.Timeframe) (*models.JobFinishedEvent, error) {
	if e.status == nil {
		return nil, domrepo.ErrNotFound
	}
	return e.status.LastStatus(ctx, kind, util.NormalizeSymbol(symbol), tf)
}

func (e *Engine) finish(ctx context.Context, r models.JobResult, inserted int, details any) {
	e.metrics.RecordJob(r.Kind, r.Success)
	ev := models.JobFinishedEvent{
		JobResult:    r,
		BarsInserted: inserted,
		Details:      details,
	}
	ctx = context.WithoutCancel(ctx)
	if e.status != nil {
		if err := e.status.SaveStatus(ctx, ev); err != nil {
			e.logger.Warn("save job status failed", logger.String("symbol", r.Symbol), logger.Error(err))
		}
	}
	if e.events == nil {
		return
	}
	if err := e.events.PublishJobFinished(ctx, ev); err != nil {
		e.metrics.RecordError("publish_job")
		e.logger.Warn("publish job event failed", logger.String("symbol", r.Symbol), logger.Error(err))
	}
}

func (e *Engine) rejectBackfill(res *models.BackfillResult, err error) (*models.BackfillResult, error) {
	res.State = models.JobFailed
	res.Success = false
	res.Reason = err.Error()
	res.FinishedAt = time.Now().UTC()
	e.metrics.RecordJob(res.Kind, false)
	e.logger.Warn("backfill rejected", logger.String("symbol", res.Symbol), logger.String("reason", res.Reason))
	return res, err
}

func (e *Engine) rejectRepair(res *models.RepairResult, err error) (*models.RepairResult, error) {
	res.Success = false
	res.Reason = err.Error()
	res.FinishedAt = time.Now().UTC()
	e.metrics.RecordJob(res.Kind, false)
	e.logger.Warn("repair rejected", logger.String("symbol", res.Symbol), logger.String("reason", res.Reason))
	return res, err
}
