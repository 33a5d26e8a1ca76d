package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"BarPull/pkg/logger"
)

// LocalQueue runs jobs on an in-process worker pool. Messages are lost on
// restart; it stands in for RedisQueue when Redis is disabled.
type LocalQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	jobs      map[string]Job
	ch        chan Message
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
	retrying  atomic.Int64
	dead      atomic.Int64
}

func NewLocalQueue(lgr *logger.Logger, config *QueueConfig) *LocalQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalQueue{
		logger: lgr,
		config: config,
		jobs:   make(map[string]Job),
		ch:     make(chan Message, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (q *LocalQueue) RegisterJobs(jobs []Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, job := range jobs {
		q.jobs[job.Type()] = job
	}
}

func (q *LocalQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.isRunning {
		return fmt.Errorf("queue already running")
	}
	q.isRunning = true
	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("local queue started", logger.Int("workers", q.config.Workers))
	return nil
}

// Stop cancels running jobs and waits for the workers.
func (q *LocalQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	q.cancel()
	q.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(doneCh)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-doneCh:
		q.logger.Info("local queue stopped gracefully")
		return nil
	}
}

func (q *LocalQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	running := q.isRunning
	_, known := q.jobs[msgType]
	q.mu.RUnlock()
	if !running {
		return fmt.Errorf("queue not running")
	}
	if !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}
	return q.push(ctx, Message{ID: newMessageID(msgType), Type: msgType, Payload: payload, Timestamp: time.Now()})
}

func (q *LocalQueue) push(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.ctx.Done():
		return fmt.Errorf("queue stopped")
	default:
		return fmt.Errorf("queue full (%d)", cap(q.ch))
	}
}

func (q *LocalQueue) Depth(context.Context) (Stats, error) {
	return Stats{Pending: int64(len(q.ch)), Retrying: q.retrying.Load(), Dead: q.dead.Load()}, nil
}

func (q *LocalQueue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			q.logger.Debug("local worker stopping", logger.Int("worker_id", id))
			return
		case msg := <-q.ch:
			q.process(msg)
		}
	}
}

func (q *LocalQueue) process(msg Message) {
	q.mu.RLock()
	job, ok := q.jobs[msg.Type]
	q.mu.RUnlock()
	if !ok {
		q.logger.Error("no job found", logger.String("type", msg.Type))
		return
	}

	err := job.Handle(q.ctx, msg.Payload)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	q.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if IsNoRetry(err) || msg.Attempts >= q.config.RetryLimit {
		q.dead.Add(1)
		return
	}
	msg.Attempts++
	q.retrying.Add(1)
	time.AfterFunc(q.config.RetryDelay, func() {
		q.retrying.Add(-1)
		if err := q.push(q.ctx, msg); err != nil {
			q.dead.Add(1)
			q.logger.Warn("retry dropped", logger.String("id", msg.ID), logger.Error(err))
		}
	})
}
