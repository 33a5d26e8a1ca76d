package usecase

import (
	"context"
	"fmt"
	"time"

	"BarPull/internal/domain/models"
	domrepo "BarPull/internal/domain/repository"
)

// BarsUseCase serves read-only queries over stored bars, coverage and
// quality history.
type BarsUseCase struct {
	store domrepo.Store
}

func NewBarsUseCase(store domrepo.Store) *BarsUseCase {
	return &BarsUseCase{store: store}
}

type GetBarsParams struct {
	Symbol    string
	Timeframe models.Timeframe
	From      time.Time
	To        time.Time
	Limit     int
}

type GetBarsResult struct {
	Symbol    string       `json:"symbol"`
	Timeframe string       `json:"timeframe"`
	From      time.Time    `json:"from"`
	To        time.Time    `json:"to"`
	Count     int          `json:"count"`
	Bars      []models.Bar `json:"bars"`
}

func (uc *BarsUseCase) GetBars(ctx context.Context, p GetBarsParams) (*GetBarsResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", domrepo.ErrConfiguration)
	}
	if !p.Timeframe.Valid() {
		return nil, fmt.Errorf("%w: %q", domrepo.ErrUnsupportedTimeframe, p.Timeframe)
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("%w: from must be <= to", domrepo.ErrConfiguration)
	}
	if p.Limit <= 0 {
		p.Limit = 1000
	}
	if p.Limit > 50000 {
		p.Limit = 50000
	}

	bars, err := uc.store.ListBars(ctx, p.Symbol, p.Timeframe, p.From, p.To, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("list bars: %w", err)
	}

	return &GetBarsResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		From:      p.From,
		To:        p.To,
		Count:     len(bars),
		Bars:      bars,
	}, nil
}

// Coverage returns ErrNotFound for series never ingested.
func (uc *BarsUseCase) Coverage(ctx context.Context, symbol string, tf models.Timeframe) (*models.CoverageRange, error) {
	return uc.store.GetCoverage(ctx, symbol, tf)
}

func (uc *BarsUseCase) QualityHistory(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.QualitySnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	snaps, err := uc.store.ListSnapshots(ctx, symbol, tf, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// Health pings the store.
func (uc *BarsUseCase) Health(ctx context.Context) error {
	return uc.store.Health(ctx)
}
