package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"BarPull/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// promoteDue moves retry entries whose due time has passed back onto the
// ready list. KEYS[1] retry zset, KEYS[2] ready list, ARGV[1] now (ms),
// ARGV[2] batch size.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
	redis.call('ZREM', KEYS[1], m)
	redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

const promoteBatch = 100

// RedisQueue runs jobs from Redis lists. A message moves ready -> processing
// while a worker holds it and is removed on completion; retries wait in a
// sorted set scored by due time; exhausted messages land on the dead list.
//
// On Start, anything left in processing by a crashed process is pushed back
// to ready, so one consumer process per key prefix is assumed.
type RedisQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	client    redis.UniversalClient
	keyPrefix string
	pollEvery time.Duration

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets the prefix of every queue key.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// WithRetryPoll sets how often due retries are promoted.
func WithRetryPoll(d time.Duration) RedisQueueOption {
	return func(r *RedisQueue) {
		if d > 0 {
			r.pollEvery = d
		}
	}
}

// NewRedisQueue creates a queue on client. Jobs must be registered before Start.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client redis.UniversalClient, opts ...RedisQueueOption) *RedisQueue {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}

	r := &RedisQueue{
		logger:    lgr,
		config:    config,
		client:    client,
		keyPrefix: "barpull:jobs",
		pollEvery: time.Second,
		jobs:      make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterJobs registers handlers by message type. A duplicate type keeps
// the first registration.
func (r *RedisQueue) RegisterJobs(jobs []Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range jobs {
		if _, exists := r.jobs[job.Type()]; exists {
			r.logger.Warn("job already registered", logger.String("job", job.Name()))
			continue
		}
		r.jobs[job.Type()] = job
		r.logger.Debug("job registered",
			logger.String("job", job.Name()),
			logger.String("type", job.Type()))
	}
}

// Start pings Redis, recovers orphaned messages and launches the workers.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	recovered, err := r.requeueOrphans(ctx)
	if err != nil {
		return err
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryLoop()

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("prefix", r.keyPrefix),
		logger.Int("recovered", recovered))
	return nil
}

// Stop cancels in-flight jobs and waits for the workers until ctx expires.
// Cancelled messages stay in processing and are recovered on next Start.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	}
}

// PublishMessage encodes payload and pushes it onto the ready list.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return fmt.Errorf("queue not running")
	}
	if !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{
		ID:        newMessageID(msgType),
		Type:      msgType,
		Payload:   json.RawMessage(raw),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.readyKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// Depth reports pending (ready plus processing), retrying and dead counts.
func (r *RedisQueue) Depth(ctx context.Context) (Stats, error) {
	pipe := r.client.Pipeline()
	ready := pipe.LLen(ctx, r.readyKey())
	processing := pipe.LLen(ctx, r.processingKey())
	retrying := pipe.ZCard(ctx, r.retryKey())
	dead := pipe.LLen(ctx, r.deadKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue depth: %w", err)
	}
	return Stats{
		Pending:  ready.Val() + processing.Val(),
		Retrying: retrying.Val(),
		Dead:     dead.Val(),
	}, nil
}

func (r *RedisQueue) requeueOrphans(ctx context.Context) (int, error) {
	n := 0
	for {
		err := r.client.LMove(ctx, r.processingKey(), r.readyKey(), "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("requeue orphans: %w", err)
		}
		n++
	}
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))

	for r.ctx.Err() == nil {
		raw, err := r.client.BLMove(r.ctx, r.readyKey(), r.processingKey(), "RIGHT", "LEFT", time.Second).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || r.ctx.Err() != nil {
				continue
			}
			r.logger.Error("blmove error", logger.Error(err))
			select {
			case <-r.ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		r.handle(raw)
	}
	r.logger.Debug("queue worker stopping", logger.Int("worker_id", id))
}

func (r *RedisQueue) handle(raw string) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		r.finish(raw, r.deadKey(), raw)
		return
	}

	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.finish(raw, r.deadKey(), raw)
		return
	}

	payload := msg.Payload
	if m, isMap := payload.(map[string]interface{}); isMap {
		if b, err := json.Marshal(m); err == nil {
			payload = json.RawMessage(b)
		}
	}

	start := time.Now()
	err := job.Handle(r.ctx, payload)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.logger.Debug("message processed",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int64("elapsed_ms", elapsed.Milliseconds()))
		r.finish(raw, "", "")
	case r.ctx.Err() != nil && errors.Is(err, context.Canceled):
		r.logger.Warn("message interrupted by shutdown",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()))
	default:
		r.fail(raw, msg, job, err)
	}
}

func (r *RedisQueue) fail(raw string, msg Message, job Job, err error) {
	r.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if IsNoRetry(err) || msg.Attempts >= r.config.RetryLimit {
		r.logger.Warn("message moved to dead list",
			logger.String("id", msg.ID),
			logger.Bool("no_retry", IsNoRetry(err)))
		r.finish(raw, r.deadKey(), raw)
		return
	}

	msg.Attempts++
	next, mErr := json.Marshal(msg)
	if mErr != nil {
		r.logger.Error("marshal retry", logger.Error(mErr))
		r.finish(raw, r.deadKey(), raw)
		return
	}
	due := time.Now().Add(r.config.RetryDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pipe := r.client.TxPipeline()
	pipe.LRem(ctx, r.processingKey(), 1, raw)
	pipe.ZAdd(ctx, r.retryKey(), redis.Z{Score: float64(due.UnixMilli()), Member: string(next)})
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("schedule retry", logger.String("id", msg.ID), logger.Error(err))
		return
	}
	r.logger.Info("scheduled retry",
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.Time("retry_at", due))
}

// finish drops raw from processing and, when dest is set, pushes data there.
func (r *RedisQueue) finish(raw, dest, data string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pipe := r.client.TxPipeline()
	pipe.LRem(ctx, r.processingKey(), 1, raw)
	if dest != "" {
		pipe.LPush(ctx, dest, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("finish message", logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case now := <-ticker.C:
			keys := []string{r.retryKey(), r.readyKey()}
			moved, err := promoteDue.Run(r.ctx, r.client, keys, now.UnixMilli(), promoteBatch).Int()
			if err != nil {
				if r.ctx.Err() == nil {
					r.logger.Error("promote retries", logger.Error(err))
				}
				continue
			}
			if moved > 0 {
				r.logger.Debug("retries promoted", logger.Int("count", moved))
			}
		}
	}
}

func (r *RedisQueue) readyKey() string      { return r.keyPrefix + ":ready" }
func (r *RedisQueue) processingKey() string { return r.keyPrefix + ":processing" }
func (r *RedisQueue) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadKey() string       { return r.keyPrefix + ":dead" }
