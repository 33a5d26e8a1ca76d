package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarPull/pkg/logger"
)

type payload struct {
	Symbol string `json:"symbol"`
}

func funcJob(msgType string, fn func(ctx context.Context, p interface{}) error) Job {
	return JobFunc{JobName: msgType + "-job", MsgType: msgType, Fn: fn}
}

func newTestQueue(t *testing.T, cfg *QueueConfig, jobs ...Job) *LocalQueue {
	t.Helper()
	q := NewLocalQueue(logger.Nop(), cfg)
	q.RegisterJobs(jobs)
	require.NoError(t, q.Start())
	t.Cleanup(func() { _ = q.Stop(context.Background()) })
	return q
}

func TestLocalQueueRunsJobs(t *testing.T) {
	got := make(chan string, 1)
	q := newTestQueue(t, &QueueConfig{Workers: 2}, funcJob("backfill", func(_ context.Context, p interface{}) error {
		msg, err := ParsePayload[payload](p)
		if err != nil {
			return err
		}
		got <- msg.Symbol
		return nil
	}))

	require.NoError(t, q.PublishMessage(context.Background(), "backfill", payload{Symbol: "BTC"}))
	select {
	case s := <-got:
		assert.Equal(t, "BTC", s)
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
}

func TestLocalQueueRejectsUnknownTypeAndStoppedQueue(t *testing.T) {
	q := NewLocalQueue(logger.Nop(), nil)
	err := q.PublishMessage(context.Background(), "backfill", nil)
	assert.ErrorContains(t, err, "not running")

	require.NoError(t, q.Start())
	err = q.PublishMessage(context.Background(), "repair", nil)
	assert.ErrorContains(t, err, "no job registered")
	require.NoError(t, q.Stop(context.Background()))
}

func TestLocalQueueRetriesUntilLimit(t *testing.T) {
	var calls atomic.Int32
	q := newTestQueue(t, &QueueConfig{Workers: 1, RetryLimit: 2, RetryDelay: time.Millisecond},
		funcJob("repair", func(context.Context, interface{}) error {
			calls.Add(1)
			return errors.New("store down")
		}))

	require.NoError(t, q.PublishMessage(context.Background(), "repair", payload{}))
	require.Eventually(t, func() bool {
		s, _ := q.Depth(context.Background())
		return s.Dead == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLocalQueueNoRetryGoesStraightToDead(t *testing.T) {
	var calls atomic.Int32
	q := newTestQueue(t, &QueueConfig{Workers: 1, RetryLimit: 5, RetryDelay: time.Millisecond},
		funcJob("quality", func(context.Context, interface{}) error {
			calls.Add(1)
			return NoRetry(errors.New("instrument inactive"))
		}))

	require.NoError(t, q.PublishMessage(context.Background(), "quality", payload{}))
	require.Eventually(t, func() bool {
		s, _ := q.Depth(context.Background())
		return s.Dead == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLocalQueueStopCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	q := NewLocalQueue(logger.Nop(), &QueueConfig{Workers: 1})
	q.RegisterJobs([]Job{funcJob("backfill", func(ctx context.Context, _ interface{}) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})})
	require.NoError(t, q.Start())
	require.NoError(t, q.PublishMessage(context.Background(), "backfill", payload{}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))
	s, _ := q.Depth(context.Background())
	assert.Zero(t, s.Dead)
}

func TestParsePayloadFromMap(t *testing.T) {
	p, err := ParsePayload[payload](map[string]interface{}{"symbol": "ETH"})
	require.NoError(t, err)
	assert.Equal(t, "ETH", p.Symbol)

	_, err = ParsePayload[payload](42)
	assert.Error(t, err)
}
