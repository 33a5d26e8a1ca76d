package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"BarPull/internal/domain/models"
	domrepo "BarPull/internal/domain/repository"
	store "BarPull/internal/repository"
	"BarPull/internal/service/provider"
	"BarPull/internal/service/ratelimit"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// seriesProvider serves one bar per interval for any requested window,
// except timestamps listed in missing.
type seriesProvider struct {
	mu       sync.Mutex
	id       string
	step     time.Duration
	missing  map[int64]bool
	requests []domrepo.FetchRequest
	err      error
}

func (p *seriesProvider) ID() string { return p.id }

func (p *seriesProvider) FetchWindow(_ context.Context, req domrepo.FetchRequest) ([]models.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	var out []models.Bar
	for ts := time.UnixMilli(req.StartMs).UTC(); !ts.After(time.UnixMilli(req.EndMs)); ts = ts.Add(p.step) {
		if p.missing[ts.UnixMilli()] {
			continue
		}
		px := decimal.NewFromInt(ts.Unix() % 1000)
		out = append(out, models.Bar{Timestamp: ts, Open: px, High: px, Low: px, Close: px, Volume: decimal.NewFromInt(1)})
	}
	return out, nil
}

func (p *seriesProvider) Requests() []domrepo.FetchRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domrepo.FetchRequest(nil), p.requests...)
}

func instantRetry() ratelimit.RetryPolicy {
	return ratelimit.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func instantPacing() ratelimit.Pacing {
	return ratelimit.Pacing{
		BaseDelay:     time.Millisecond,
		BurstEvery:    10,
		BurstCooldown: time.Millisecond,
		Sleep:         func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

func newTestBackfiller(t *testing.T, st *store.MemoryStore, now time.Time, providers ...domrepo.BarProvider) *Backfiller {
	t.Helper()
	sources := make([]provider.Source, len(providers))
	for i, p := range providers {
		sources[i] = provider.Source{Provider: p}
	}
	chain, err := provider.NewChain(nil, sources, instantRetry())
	require.NoError(t, err)
	return NewBackfiller(chain, nil, st, BackfillerConfig{Pacing: instantPacing()}, WithClock(func() time.Time { return now }))
}

func ptr(t time.Time) *time.Time { return &t }

var (
	jan1 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	jan3 = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
)
