package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"BarPull/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyResolvesEveryTimeframe(t *testing.T) {
	p := DefaultTimeframePolicy()
	want := map[models.Timeframe]int{
		models.TF1m:  1,
		models.TF5m:  5,
		models.TF15m: 10,
		models.TF1h:  41,
		models.TF4h:  166,
		models.TF1d:  1000,
	}
	for tf, days := range want {
		r, err := p.Resolve(tf)
		require.NoError(t, err, tf)
		assert.Equal(t, days, r.MaxWindowDays, tf)
		assert.Equal(t, string(tf), r.IntervalCode, tf)
	}
	for _, tf := range models.Timeframes() {
		_, err := p.Resolve(tf)
		assert.NoError(t, err, tf)
	}
}

func TestPolicyRejectsUnknownTimeframe(t *testing.T) {
	_, err := DefaultTimeframePolicy().Resolve("2h")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedTimeframe)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = ParseTimeframe("weekly")
	assert.ErrorIs(t, err, ErrUnsupportedTimeframe)
}

func TestWindowNeverExceedsRowBudget(t *testing.T) {
	p := DefaultTimeframePolicy()
	for _, tf := range models.Timeframes() {
		w, err := p.Window(tf, DefaultMaxRowsPerRequest)
		require.NoError(t, err)
		bars := int(w / tf.Duration())
		assert.LessOrEqual(t, bars, DefaultMaxRowsPerRequest, tf)

		r, _ := p.Resolve(tf)
		assert.LessOrEqual(t, w, r.MaxWindow(), tf)
	}
}

func TestWindowClampsMinuteTimeframes(t *testing.T) {
	p := DefaultTimeframePolicy()

	w, err := p.Window(models.TF1m, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000*time.Minute, w)

	w, err = p.Window(models.TF1h, 1000)
	require.NoError(t, err)
	assert.Equal(t, 41*24*time.Hour, w)

	w, err = p.Window(models.TF1h, 0)
	require.NoError(t, err)
	assert.Equal(t, 41*24*time.Hour, w)
}

func TestNewTimeframePolicyValidates(t *testing.T) {
	_, err := NewTimeframePolicy(map[models.Timeframe]TimeframeRule{"3m": {IntervalCode: "3m", MaxWindowDays: 1}})
	assert.ErrorIs(t, err, ErrUnsupportedTimeframe)

	_, err = NewTimeframePolicy(map[models.Timeframe]TimeframeRule{models.TF1h: {IntervalCode: "1h"}})
	assert.ErrorIs(t, err, ErrConfiguration)

	p, err := NewTimeframePolicy(map[models.Timeframe]TimeframeRule{models.TF1h: {IntervalCode: "60m", MaxWindowDays: 20}})
	require.NoError(t, err)
	r, err := p.Resolve(models.TF1h)
	require.NoError(t, err)
	assert.Equal(t, "60m", r.IntervalCode)
	_, err = p.Resolve(models.TF1d)
	assert.Error(t, err)
}

func TestProviderErrorClassification(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := fmt.Errorf("fetch: %w", Transient("binance", 503, cause))

	assert.ErrorIs(t, err, ErrTransientProvider)
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, "transient", ErrorKind(err))

	perm := Permanent("binance", 400, errors.New("Invalid symbol."))
	assert.True(t, IsPermanent(perm))
	assert.Equal(t, "permanent", ErrorKind(perm))
	assert.Contains(t, perm.Error(), "status 400")

	assert.True(t, IsPermanent(ErrUnknownProvider))
	assert.Equal(t, "store_write", ErrorKind(fmt.Errorf("%w: disk full", ErrStoreWrite)))
}
