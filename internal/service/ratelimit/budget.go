package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Budget is a keyed token bucket shared by every worker that calls the
// same upstream. Keys without a configured rate are unlimited.
type Budget struct {
	mu    sync.Mutex
	m     map[string]*bucket
	now   func() time.Time
	sleep Sleeper
}

func NewBudget() *Budget {
	return &Budget{m: make(map[string]*bucket), now: time.Now, sleep: SleepContext}
}

// SetRate configures key to allow perMinute requests with a burst of the same size.
func (b *Budget) SetRate(key string, perMinute int) {
	if perMinute <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	capacity := float64(perMinute)
	b.m[key] = &bucket{tokens: capacity, capacity: capacity, refillRate: capacity / 60, last: b.now()}
}

// Wait blocks until a token for key is available.
func (b *Budget) Wait(ctx context.Context, key string) error {
	for {
		ok, wait := b.reserve(key)
		if ok {
			return nil
		}
		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// reserve consumes one token for key if available, otherwise it reports how
// long until one refills.
func (b *Budget) reserve(key string) (bool, time.Duration) {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	bk, ok := b.m[key]
	if !ok {
		return true, 0
	}
	if elapsed := now.Sub(bk.last).Seconds(); elapsed > 0 {
		bk.tokens += elapsed * bk.refillRate
		if bk.tokens > bk.capacity {
			bk.tokens = bk.capacity
		}
		bk.last = now
	}
	if bk.tokens >= 1 {
		bk.tokens--
		return true, 0
	}
	missing := 1 - bk.tokens
	return false, time.Duration(missing / bk.refillRate * float64(time.Second))
}
