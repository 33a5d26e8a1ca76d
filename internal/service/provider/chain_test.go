package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	"BarPull/internal/service/ratelimit"
	"BarPull/internal/service/symbols"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu    sync.Mutex
	id    string
	calls []repository.FetchRequest
	fn    func(req repository.FetchRequest) ([]models.Bar, error)
}

func (p *fakeProvider) ID() string { return p.id }

func (p *fakeProvider) FetchWindow(_ context.Context, req repository.FetchRequest) ([]models.Bar, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()
	return p.fn(req)
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func hourlyBars(start time.Time, n int) []models.Bar {
	out := make([]models.Bar, n)
	for i := range out {
		out[i] = models.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      decimal.NewFromInt(1),
			High:      decimal.NewFromInt(2),
			Low:       decimal.NewFromInt(1),
			Close:     decimal.NewFromInt(2),
			Volume:    decimal.NewFromInt(10),
		}
	}
	return out
}

func noSleepRetry(sleeps *[]time.Duration) ratelimit.RetryPolicy {
	return ratelimit.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		},
	}
}

var chunkStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestChainFallsBackAfterTransientFailures(t *testing.T) {
	primary := &fakeProvider{id: "primary", fn: func(repository.FetchRequest) ([]models.Bar, error) {
		return nil, repository.Transient("primary", 503, errors.New("unavailable"))
	}}
	secondary := &fakeProvider{id: "secondary", fn: func(repository.FetchRequest) ([]models.Bar, error) {
		return hourlyBars(chunkStart, 24), nil
	}}

	var sleeps []time.Duration
	chain, err := NewChain(nil, []Source{{Provider: primary}, {Provider: secondary}}, noSleepRetry(&sleeps))
	require.NoError(t, err)

	res, err := chain.FetchChunk(context.Background(), "BTC", models.TF1h, chunkStart, chunkStart.Add(24*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 3, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeps)
	assert.Equal(t, models.ChunkFetched, res.Outcome)
	assert.Equal(t, "secondary", res.Provider)
	assert.Equal(t, 4, res.Attempts)
	require.Len(t, res.Bars, 24)
	for _, b := range res.Bars {
		assert.Equal(t, "secondary", b.Provider)
		assert.Equal(t, "BTC", b.Symbol)
		assert.Equal(t, models.TF1h, b.Timeframe)
	}
}

func TestChainPacesEveryRequestAfterTheFirst(t *testing.T) {
	primary := &fakeProvider{id: "primary", fn: func(repository.FetchRequest) ([]models.Bar, error) {
		return nil, repository.Transient("primary", 503, errors.New("unavailable"))
	}}
	secondary := &fakeProvider{id: "secondary", fn: func(repository.FetchRequest) ([]models.Bar, error) {
		return hourlyBars(chunkStart, 1), nil
	}}
	chain, err := NewChain(nil, []Source{{Provider: primary}, {Provider: secondary}}, noSleepRetry(nil))
	require.NoError(t, err)

	var paced []time.Duration
	pacer := ratelimit.Pacing{
		BaseDelay:     100 * time.Millisecond,
		BurstEvery:    2,
		BurstCooldown: time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			paced = append(paced, d)
			return nil
		},
	}.NewPacer()
	ctx := ratelimit.WithPacer(context.Background(), pacer)

	res, err := chain.FetchChunk(ctx, "BTC", models.TF1h, chunkStart, chunkStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "secondary", res.Provider)
	assert.Equal(t, 4, res.Attempts)

	// three retries of primary and one fallback request, the first one free
	assert.Equal(t, 3, pacer.Requests())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 1100 * time.Millisecond, 100 * time.Millisecond}, paced)

	secondary.fn = nil
	primary.fn = func(repository.FetchRequest) ([]models.Bar, error) { return hourlyBars(chunkStart, 1), nil }
	_, err = chain.FetchChunk(ctx, "BTC", models.TF1h, chunkStart, chunkStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, pacer.Requests(), "a single-request chunk is not paced by the chain")
}

func TestChainDoesNotRetryPermanentErrors(t *testing.T) {
	primary := &fakeProvider{id: "primary", fn: func(repository.FetchRequest) ([]models.Bar, error) {
		return nil, repository.Permanent("primary", 400, errors.New("Invalid symbol."))
	}}
	secondary := &fakeProvider{id: "secondary", fn: func(repository.FetchRequest) ([]models.Bar, error) {
		return nil, nil
	}}

	chain, err := NewChain(nil, []Source{{Provider: primary}, {Provider: secondary}}, noSleepRetry(nil))
	require.NoError(t, err)

	res, err := chain.FetchChunk(context.Background(), "BTC", models.TF1h, chunkStart, chunkStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, models.ChunkEmpty, res.Outcome)
	assert.Equal(t, "secondary", res.Provider)
}

func TestChainEmptySuccessWins(t *testing.T) {
	primary := &fakeProvider{id: "primary", fn: func(repository.FetchRequest) ([]models.Bar, error) {
		return []models.Bar{}, nil
	}}
	secondary := &fakeProvider{id: "secondary", fn: func(repository.FetchRequest) ([]models.Bar, error) {
		return hourlyBars(chunkStart, 1), nil
	}}

	chain, err := NewChain(nil, []Source{{Provider: primary}, {Provider: secondary}}, noSleepRetry(nil))
	require.NoError(t, err)

	res, err := chain.FetchChunk(context.Background(), "BTC", models.TF1h, chunkStart, chunkStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.ChunkEmpty, res.Outcome)
	assert.Equal(t, 0, secondary.Calls())
}

func TestChainExhausted(t *testing.T) {
	failing := func(id string) *fakeProvider {
		return &fakeProvider{id: id, fn: func(repository.FetchRequest) ([]models.Bar, error) {
			return nil, repository.Transient(id, 0, errors.New("timeout"))
		}}
	}
	a, b := failing("a"), failing("b")

	chain, err := NewChain(nil, []Source{{Provider: a}, {Provider: b}}, noSleepRetry(nil))
	require.NoError(t, err)

	res, err := chain.FetchChunk(context.Background(), "ETH", models.TF15m, chunkStart, chunkStart.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.ChunkExhausted, res.Outcome)
	assert.Empty(t, res.Bars)
	assert.Equal(t, 6, res.Attempts)
}

func TestChainBuildsRequestAndClipsToWindow(t *testing.T) {
	end := chunkStart.Add(2 * time.Hour)
	p := &fakeProvider{id: "mexc", fn: func(repository.FetchRequest) ([]models.Bar, error) {
		// upstream returns one bar on each side of the window
		return hourlyBars(chunkStart.Add(-time.Hour), 4), nil
	}}

	chain, err := NewChain(nil, []Source{{
		Provider:  p,
		Mapper:    symbols.NewMapper("USDT", map[string]string{"XBT": "BTCUSDT"}),
		Intervals: map[models.Timeframe]string{models.TF1h: "60m"},
		MaxRows:   500,
	}}, noSleepRetry(nil))
	require.NoError(t, err)
	assert.Equal(t, 500, chain.MaxRows())

	res, err := chain.FetchChunk(context.Background(), "xbt", models.TF1h, chunkStart, end)
	require.NoError(t, err)

	require.Len(t, p.calls, 1)
	assert.Equal(t, repository.FetchRequest{
		Pair:     "BTCUSDT",
		Interval: "60m",
		StartMs:  chunkStart.UnixMilli(),
		EndMs:    end.UnixMilli() - 1,
		Limit:    500,
	}, p.calls[0])

	require.Len(t, res.Bars, 2)
	assert.Equal(t, chunkStart, res.Bars[0].Timestamp)
	assert.Equal(t, chunkStart.Add(time.Hour), res.Bars[1].Timestamp)
}

func TestChainRejectsUnsupportedTimeframe(t *testing.T) {
	p := &fakeProvider{id: "p", fn: func(repository.FetchRequest) ([]models.Bar, error) { return nil, nil }}
	chain, err := NewChain(nil, []Source{{Provider: p}}, noSleepRetry(nil))
	require.NoError(t, err)

	_, err = chain.FetchChunk(context.Background(), "BTC", models.Timeframe("2h"), chunkStart, chunkStart.Add(time.Hour))
	assert.ErrorIs(t, err, repository.ErrUnsupportedTimeframe)
	assert.Equal(t, 0, p.Calls())
}

func TestNewChainRequiresSources(t *testing.T) {
	_, err := NewChain(nil, nil, noSleepRetry(nil))
	assert.ErrorIs(t, err, repository.ErrConfiguration)
}
