package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"BarPull/internal/domain/models"
	domrepo "BarPull/internal/domain/repository"
	"BarPull/pkg/logger"
	"BarPull/pkg/metrics"
)

// DefaultGapThresholdPct is the share of missing bars tolerated before a
// window is flagged as gapped.
const DefaultGapThresholdPct = 1.0

// QualityStore is the part of the store the assessor reads and appends to.
type QualityStore interface {
	CountBars(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) (int64, error)
	LatestTimestamp(ctx context.Context, symbol string, tf models.Timeframe) (time.Time, error)
	domrepo.QualityStore
}

// QualityAssessor produces completeness snapshots. It never writes bars
// or coverage.
type QualityAssessor struct {
	store     QualityStore
	threshold float64
	events    domrepo.EventPublisher
	metrics   domrepo.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

func NewQualityAssessor(store QualityStore, thresholdPct float64, events domrepo.EventPublisher, m domrepo.Metrics, log *logger.Logger) *QualityAssessor {
	if thresholdPct < 0 {
		thresholdPct = DefaultGapThresholdPct
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &QualityAssessor{store: store, threshold: thresholdPct, events: events, metrics: m, logger: log, now: time.Now}
}

// Completeness applies the completeness formula. pct is rounded to two
// decimals and is 0 when nothing is expected.
func Completeness(expected, actual int64, thresholdPct float64) (missing int64, pct float64, hasGaps bool) {
	missing = expected - actual
	if missing < 0 {
		missing = 0
	}
	if expected > 0 {
		pct = math.Round(float64(actual)/float64(expected)*100*100) / 100
	}
	hasGaps = float64(missing) > float64(expected)*thresholdPct/100
	return missing, pct, hasGaps
}

// Assess measures [now-windowHours, now) and appends the snapshot.
func (a *QualityAssessor) Assess(ctx context.Context, symbol string, tf models.Timeframe, windowHours int) (*models.QualitySnapshot, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("%w: %q", domrepo.ErrUnsupportedTimeframe, tf)
	}
	if windowHours <= 0 {
		return nil, fmt.Errorf("%w: window hours must be positive", domrepo.ErrConfiguration)
	}

	now := a.now().UTC()
	from := now.Add(-time.Duration(windowHours) * time.Hour)
	expected := int64(windowHours * 60 / tf.Minutes())

	actual, err := a.store.CountBars(ctx, symbol, tf, from, now)
	if err != nil {
		return nil, fmt.Errorf("count bars: %w", err)
	}
	missing, pct, hasGaps := Completeness(expected, actual, a.threshold)

	snap := &models.QualitySnapshot{
		Symbol:          symbol,
		Timeframe:       tf,
		WindowStart:     from,
		WindowEnd:       now,
		WindowHours:     windowHours,
		ExpectedCount:   expected,
		ActualCount:     actual,
		MissingCount:    missing,
		CompletenessPct: pct,
		HasGaps:         hasGaps,
		CreatedAt:       now,
	}

	latest, err := a.store.LatestTimestamp(ctx, symbol, tf)
	switch {
	case err == nil:
		snap.LatestBarAt = &latest
		snap.StalenessSeconds = int64(now.Sub(latest) / time.Second)
	case !errors.Is(err, domrepo.ErrNotFound):
		return nil, fmt.Errorf("latest bar: %w", err)
	}

	if err := a.store.AppendSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("append snapshot: %w", errors.Join(domrepo.ErrStoreWrite, err))
	}
	a.metrics.RecordCompleteness(symbol, tf, pct)

	if a.events != nil {
		if err := a.events.PublishQuality(ctx, *snap); err != nil {
			a.metrics.RecordError("publish_quality")
			a.logger.Warn("publish quality event failed", logger.String("symbol", symbol), logger.Error(err))
		}
	}
	return snap, nil
}
