package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarPull/internal/domain/models"
	"BarPull/internal/usecase"
)

type staticSymbols []string

func (s staticSymbols) Active(context.Context) []string { return s }

type recordingDispatcher struct {
	mu       sync.Mutex
	types    []string
	payloads []interface{}
	failOn   string
}

func (d *recordingDispatcher) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cmd, ok := payload.(models.BackfillCommand); ok && cmd.Symbol == d.failOn {
		return errors.New("queue full")
	}
	d.types = append(d.types, msgType)
	d.payloads = append(d.payloads, payload)
	return nil
}

func newTestScheduler(d *recordingDispatcher) *Scheduler {
	return New(d, staticSymbols{"BTC", "ETH"}, Config{
		BackfillCron:  "0 */15 * * * *",
		RepairCron:    "0 5 * * * *",
		QualityCron:   "0 30 * * * *",
		Timeframes:    []models.Timeframe{models.TF1h, models.TF1d},
		LookbackHours: 72,
	}, nil)
}

func TestEnqueueBackfillsFansOut(t *testing.T) {
	d := &recordingDispatcher{}
	s := newTestScheduler(d)

	s.EnqueueBackfills()

	require.Len(t, d.payloads, 4)
	for _, typ := range d.types {
		assert.Equal(t, usecase.MsgBackfill, typ)
	}
	first := d.payloads[0].(models.BackfillCommand)
	assert.Equal(t, "BTC", first.Symbol)
	assert.Equal(t, "1h", first.Timeframe)
	assert.True(t, first.Incremental)
	assert.Equal(t, "1d", d.payloads[1].(models.BackfillCommand).Timeframe)
}

func TestEnqueueRepairsAndQualityCarryWindows(t *testing.T) {
	d := &recordingDispatcher{}
	s := newTestScheduler(d)

	s.EnqueueRepairs()
	s.EnqueueQuality()

	require.Len(t, d.payloads, 8)
	assert.Equal(t, 72, d.payloads[0].(models.RepairCommand).LookbackHours)
	assert.Equal(t, usecase.MsgQuality, d.types[4])
	assert.Equal(t, 24, d.payloads[4].(models.QualityCommand).LookbackHours)
}

func TestEnqueueContinuesAfterFailure(t *testing.T) {
	d := &recordingDispatcher{failOn: "BTC"}
	s := newTestScheduler(d)

	s.EnqueueBackfills()

	require.Len(t, d.payloads, 2)
	assert.Equal(t, "ETH", d.payloads[0].(models.BackfillCommand).Symbol)
}

func TestRegisterAll(t *testing.T) {
	s := newTestScheduler(&recordingDispatcher{})
	require.NoError(t, s.RegisterAll())
	assert.Len(t, s.cron.Entries(), 3)

	s.Start()
	s.Stop()

	bad := New(&recordingDispatcher{}, staticSymbols{}, Config{BackfillCron: "every minute"}, nil)
	assert.Error(t, bad.RegisterAll())
}

func TestStoppedSchedulerEnqueuesNothing(t *testing.T) {
	d := &recordingDispatcher{}
	s := newTestScheduler(d)
	s.Stop()

	s.EnqueueQuality()
	assert.Empty(t, d.payloads)
}
