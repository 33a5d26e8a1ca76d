package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarPull/internal/domain/models"
	"BarPull/pkg/cache"
)

type sentMessage struct {
	topic   string
	key     string
	value   interface{}
	headers map[string]string
}

type fakeWriter struct {
	sent   []sentMessage
	err    error
	closed bool
}

func (w *fakeWriter) Publish(_ context.Context, topic string, key []byte, value interface{}, headers map[string]string) error {
	w.sent = append(w.sent, sentMessage{topic, string(key), value, headers})
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaEventPublisherEnvelope(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaEventPublisher(w, "barpull.ingestion", nil)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	ctx := context.Background()
	require.NoError(t, p.PublishChunkSaved(ctx, models.ChunkSavedEvent{Symbol: "BTC", Timeframe: models.TF1h, Inserted: 24}))
	require.NoError(t, p.PublishJobFinished(ctx, models.JobFinishedEvent{JobResult: models.JobResult{Symbol: "ETH", Success: true}}))
	require.NoError(t, p.PublishQuality(ctx, models.QualitySnapshot{Symbol: "SOL", CompletenessPct: 99.5}))
	require.NoError(t, p.Close())

	require.Len(t, w.sent, 3)
	assert.True(t, w.closed)

	wantTypes := []string{EventChunkSaved, EventJobFinished, EventQuality}
	wantKeys := []string{"BTC", "ETH", "SOL"}
	for i, m := range w.sent {
		assert.Equal(t, "barpull.ingestion", m.topic)
		assert.Equal(t, wantKeys[i], m.key)
		assert.Equal(t, wantTypes[i], m.headers["event_type"])
		env, ok := m.value.(Envelope)
		require.True(t, ok)
		assert.Equal(t, wantTypes[i], env.Type)
		assert.Equal(t, at, env.At)
	}
}

func TestKafkaEventPublisherReturnsWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewKafkaEventPublisher(w, "t", nil)
	assert.EqualError(t, p.PublishQuality(context.Background(), models.QualitySnapshot{Symbol: "BTC"}), "broker down")
}

func TestCacheLocker(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()
	l := NewCacheLocker(c, nil)
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "lock:BTC:1h", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryLock(ctx, "lock:BTC:1h", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Unlock(ctx, "lock:BTC:1h"))
	ok, err = l.TryLock(ctx, "lock:BTC:1h", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
