package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BarPull/internal/domain/models"
	domrepo "BarPull/internal/domain/repository"
	"BarPull/pkg/logger"
)

// DetectGaps scans ascending timestamps once and returns every pair of
// neighbors further apart than interval.
func DetectGaps(ts []time.Time, interval time.Duration) []models.GapInterval {
	var gaps []models.GapInterval
	for i := 0; i+1 < len(ts); i++ {
		if ts[i+1].Sub(ts[i]) > interval {
			gaps = append(gaps, models.GapInterval{Start: ts[i], End: ts[i+1]})
		}
	}
	return gaps
}

// GapRepairer re-runs the backfill over each detected gap, and only there.
type GapRepairer struct {
	store      domrepo.BarStore
	backfiller *Backfiller
	logger     *logger.Logger
	now        func() time.Time
}

func NewGapRepairer(store domrepo.BarStore, backfiller *Backfiller, log *logger.Logger) *GapRepairer {
	if log == nil {
		log = logger.Nop()
	}
	return &GapRepairer{store: store, backfiller: backfiller, logger: log, now: time.Now}
}

// Repair scans the last lookbackHours and backfills each gap with a merge
// scope so coverage is never shrunk. Only a store failure or cancellation
// stops the pass early.
func (r *GapRepairer) Repair(ctx context.Context, symbol string, tf models.Timeframe, lookbackHours int) (*models.RepairResult, error) {
	now := r.now().UTC()
	res := &models.RepairResult{
		JobResult: models.JobResult{
			Kind:      models.JobKindRepair,
			Symbol:    symbol,
			Timeframe: tf,
			StartedAt: now,
		},
		LookbackHours: lookbackHours,
	}
	if !tf.Valid() {
		return r.fail(res, fmt.Errorf("%w: %q", domrepo.ErrUnsupportedTimeframe, tf))
	}

	from := now.Add(-time.Duration(lookbackHours) * time.Hour)
	ts, err := r.store.ListTimestamps(ctx, symbol, tf, from, now)
	if err != nil {
		return r.fail(res, fmt.Errorf("list timestamps: %w", err))
	}

	interval := tf.Duration()
	gaps := DetectGaps(ts, interval)
	res.Gaps = gaps
	res.GapsFound = len(gaps)
	for _, g := range gaps {
		res.MissingBars += g.MissingBars(interval)
	}

	log := r.logger.With(logger.String("symbol", symbol), logger.String("timeframe", tf.String()))
	if len(gaps) > 0 {
		log.Info("gaps detected", logger.Int("gaps", len(gaps)), logger.Int("missing_bars", res.MissingBars))
	}

	for _, g := range gaps {
		start, end := g.Start, g.End
		br, err := r.backfiller.Run(ctx, models.BackfillJob{
			Symbol:    symbol,
			Timeframe: tf,
			Start:     &start,
			End:       &end,
			Scope:     models.ScopeMerge,
		})
		if br != nil {
			res.BarsInserted += br.BarsInserted
			if br.Success && br.BarsInserted > 0 {
				res.GapsRepaired++
			}
		}
		if err != nil {
			if errors.Is(err, domrepo.ErrStoreWrite) || ctx.Err() != nil {
				return r.fail(res, err)
			}
			log.Warn("gap repair failed", logger.Time("gap_start", g.Start), logger.Time("gap_end", g.End), logger.Error(err))
		}
	}

	res.Success = true
	res.FinishedAt = r.now().UTC()
	return res, nil
}

func (r *GapRepairer) fail(res *models.RepairResult, err error) (*models.RepairResult, error) {
	res.Success = false
	res.Reason = err.Error()
	res.FinishedAt = r.now().UTC()
	return res, err
}
