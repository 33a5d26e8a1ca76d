package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"BarPull/pkg/logger"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestRedisQueue(t *testing.T, client *redis.Client, retryLimit int, jobs ...Job) *RedisQueue {
	t.Helper()
	q := NewRedisQueue(logger.Nop(), &QueueConfig{Workers: 2, RetryLimit: retryLimit, RetryDelay: 50 * time.Millisecond},
		client, WithKeyPrefix("test:"+t.Name()), WithRetryPoll(20*time.Millisecond))
	q.RegisterJobs(jobs)
	return q
}

func TestRedisQueueRunsJobAndClearsProcessing(t *testing.T) {
	client := setupRedis(t)
	got := make(chan string, 1)
	q := newTestRedisQueue(t, client, 0, funcJob("backfill", func(_ context.Context, p interface{}) error {
		parsed, err := ParsePayload[payload](p)
		if err != nil {
			return err
		}
		got <- parsed.Symbol
		return nil
	}))
	require.NoError(t, q.Start())
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	require.NoError(t, q.PublishMessage(context.Background(), "backfill", payload{Symbol: "ETH"}))

	select {
	case s := <-got:
		assert.Equal(t, "ETH", s)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
	require.Eventually(t, func() bool {
		s, err := q.Depth(context.Background())
		return err == nil && s == Stats{}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRedisQueueRetriesThenDead(t *testing.T) {
	client := setupRedis(t)
	var calls atomic.Int32
	q := newTestRedisQueue(t, client, 2, funcJob("repair", func(context.Context, interface{}) error {
		calls.Add(1)
		return errors.New("upstream 502")
	}))
	require.NoError(t, q.Start())
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	require.NoError(t, q.PublishMessage(context.Background(), "repair", payload{}))

	require.Eventually(t, func() bool {
		s, err := q.Depth(context.Background())
		return err == nil && s.Dead == 1 && s.Pending == 0 && s.Retrying == 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRedisQueueNoRetryGoesStraightToDead(t *testing.T) {
	client := setupRedis(t)
	var calls atomic.Int32
	q := newTestRedisQueue(t, client, 5, funcJob("quality", func(context.Context, interface{}) error {
		calls.Add(1)
		return NoRetry(errors.New("unknown instrument"))
	}))
	require.NoError(t, q.Start())
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	require.NoError(t, q.PublishMessage(context.Background(), "quality", payload{}))

	require.Eventually(t, func() bool {
		s, err := q.Depth(context.Background())
		return err == nil && s.Dead == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRedisQueueRecoversOrphansOnStart(t *testing.T) {
	client := setupRedis(t)
	got := make(chan string, 1)
	q := newTestRedisQueue(t, client, 0, funcJob("backfill", func(_ context.Context, p interface{}) error {
		parsed, err := ParsePayload[payload](p)
		if err != nil {
			return err
		}
		got <- parsed.Symbol
		return nil
	}))

	orphan := `{"ID":"backfill-1","Type":"backfill","Payload":{"symbol":"SOL"},"Attempts":0}`
	require.NoError(t, client.LPush(context.Background(), q.processingKey(), orphan).Err())

	require.NoError(t, q.Start())
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	select {
	case s := <-got:
		assert.Equal(t, "SOL", s)
	case <-time.After(5 * time.Second):
		t.Fatal("orphan was not recovered")
	}
}

func TestRedisQueuePublishRequiresRunningAndKnownType(t *testing.T) {
	client := setupRedis(t)
	q := newTestRedisQueue(t, client, 0, funcJob("backfill", func(context.Context, interface{}) error { return nil }))

	err := q.PublishMessage(context.Background(), "backfill", payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")

	require.NoError(t, q.Start())
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	err = q.PublishMessage(context.Background(), "unknown", payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job registered")
}
