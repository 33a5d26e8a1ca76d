package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarPull/internal/domain/models"
	domrepo "BarPull/internal/domain/repository"
	store "BarPull/internal/repository"
	"BarPull/internal/service/provider"
	"BarPull/internal/service/ratelimit"
	"BarPull/internal/usecase"
	"BarPull/pkg/cache"
	xlogger "BarPull/pkg/logger"
)

type hourlyProvider struct{}

func (hourlyProvider) ID() string { return "binance" }

func (hourlyProvider) FetchWindow(_ context.Context, req domrepo.FetchRequest) ([]models.Bar, error) {
	var out []models.Bar
	for ts := time.UnixMilli(req.StartMs).UTC(); !ts.After(time.UnixMilli(req.EndMs)); ts = ts.Add(time.Hour) {
		px := decimal.NewFromInt(100)
		out = append(out, models.Bar{Timestamp: ts, Open: px, High: px, Low: px, Close: px, Volume: decimal.NewFromInt(1)})
	}
	return out, nil
}

type recordingDispatcher struct {
	types    []string
	payloads []interface{}
	err      error
}

func (d *recordingDispatcher) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	d.types = append(d.types, msgType)
	d.payloads = append(d.payloads, payload)
	return d.err
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, dispatcher domrepo.JobDispatcher) *echo.Echo {
	t.Helper()
	st := store.NewMemoryStore()
	noSleep := func(context.Context, time.Duration) error { return nil }

	chain, err := provider.NewChain(nil, []provider.Source{{Provider: hourlyProvider{}}},
		ratelimit.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, Sleep: noSleep})
	require.NoError(t, err)

	b := usecase.NewBackfiller(chain, nil, st, usecase.BackfillerConfig{
		Pacing: ratelimit.Pacing{BaseDelay: time.Millisecond, Sleep: noSleep},
	})
	r := usecase.NewGapRepairer(st, b, nil)
	a := usecase.NewQualityAssessor(st, usecase.DefaultGapThresholdPct, nil, nil, nil)
	locks := cache.NewMemoryCache()
	t.Cleanup(func() { _ = locks.Close() })

	engine := usecase.NewEngine(b, r, a, st, nil, store.NewCacheLocker(locks, nil),
		store.NewCacheJobStatus(locks, time.Hour), nil, nil, nil, usecase.EngineConfig{})

	e := echo.New()
	NewIngestionHandler(xlogger.Nop(), engine, usecase.NewBarsUseCase(st), dispatcher).RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestBackfillThenRead(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := do(t, e, http.MethodPost, "/api/v1/backfill",
		`{"symbol":"btc","timeframe":"1h","start":"2024-01-01T00:00:00Z","end":"2024-01-03T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res models.BackfillResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Success)
	assert.Equal(t, "BTC", res.Symbol)
	assert.Equal(t, 48, res.BarsInserted)
	assert.Equal(t, models.JobDone, res.State)

	rec, env = do(t, e, http.MethodGet, "/api/v1/coverage?symbol=BTC&timeframe=1h", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cov models.CoverageRange
	require.NoError(t, json.Unmarshal(env.Data, &cov))
	assert.EqualValues(t, 48, cov.TotalBarCount)
	assert.True(t, cov.IsComplete)

	rec, env = do(t, e, http.MethodGet, "/api/v1/bars?symbol=BTC&timeframe=1h&from=2024-01-01&to=2024-01-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var bars usecase.GetBarsResult
	require.NoError(t, json.Unmarshal(env.Data, &bars))
	assert.Equal(t, 24, bars.Count)

	rec, env = do(t, e, http.MethodGet, "/api/v1/jobs/last?kind=backfill&symbol=BTC&timeframe=1h", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var last models.JobFinishedEvent
	require.NoError(t, json.Unmarshal(env.Data, &last))
	assert.True(t, last.Success)
	assert.Equal(t, 48, last.BarsInserted)
}

func TestBackfillValidation(t *testing.T) {
	e := newTestServer(t, nil)

	rec, _ := do(t, e, http.MethodPost, "/api/v1/backfill", `{"symbol":"BTC","timeframe":"2h"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/api/v1/backfill", `{"timeframe":"1h"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAsyncBackfillIsQueued(t *testing.T) {
	d := &recordingDispatcher{}
	e := newTestServer(t, d)

	rec, env := do(t, e, http.MethodPost, "/api/v1/backfill", `{"symbol":"eth","async":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var q QueuedResponse
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.True(t, q.Queued)
	assert.Equal(t, "ETH", q.Symbol)
	assert.Equal(t, "1h", q.Timeframe)
	assert.Equal(t, []string{usecase.MsgBackfill}, d.types)

	d.err = errors.New("redis down")
	rec, _ = do(t, e, http.MethodPost, "/api/v1/repair", `{"symbol":"eth","async":true}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadEndpointsNotFound(t *testing.T) {
	e := newTestServer(t, nil)

	rec, _ := do(t, e, http.MethodGet, "/api/v1/coverage?symbol=ETH&timeframe=1h", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/v1/jobs/last?symbol=ETH", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/v1/bars?symbol=ETH&from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQualityAppendsHistory(t *testing.T) {
	e := newTestServer(t, nil)

	rec, env := do(t, e, http.MethodGet, "/api/v1/quality?symbol=BTC&timeframe=1h&lookback_hours=24", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.QualitySnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.EqualValues(t, 24, snap.ExpectedCount)
	assert.True(t, snap.HasGaps)

	rec, env = do(t, e, http.MethodGet, "/api/v1/quality/history?symbol=BTC&timeframe=1h", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.QualitySnapshot `json:"rows"`
		Total int64                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 1, list.Total)
}

func TestHealth(t *testing.T) {
	e := newTestServer(t, nil)
	rec, _ := do(t, e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJobStatusCode(t *testing.T) {
	cases := map[error]int{
		nil:                             http.StatusOK,
		domrepo.ErrUnsupportedTimeframe: http.StatusBadRequest,
		domrepo.ErrInstrumentNotFound:   http.StatusNotFound,
		domrepo.ErrInstrumentInactive:   http.StatusUnprocessableEntity,
		domrepo.ErrJobInProgress:        http.StatusConflict,
		context.Canceled:                http.StatusServiceUnavailable,
		domrepo.ErrStoreWrite:           http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, jobStatusCode(err), "%v", err)
	}
}
