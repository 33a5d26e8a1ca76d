package ratelimit

import (
	"context"
	"time"
)

// Pacing is the two-tier inter-request delay: BaseDelay after every
// request, plus BurstCooldown after every BurstEvery requests.
type Pacing struct {
	BaseDelay     time.Duration
	BurstEvery    int
	BurstCooldown time.Duration
	Sleep         Sleeper
}

// NewPacer starts a fresh request counter. One pacer belongs to one job.
func (p Pacing) NewPacer() *Pacer {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	return &Pacer{cfg: p, sleep: sleep}
}

// Pacer is not safe for concurrent use.
type Pacer struct {
	cfg   Pacing
	sleep Sleeper
	count int
}

// Wait records one completed request and blocks for the required delay.
func (p *Pacer) Wait(ctx context.Context) error {
	p.count++
	return p.sleep(ctx, p.Delay(p.count))
}

// Delay returns the pause after the n-th request.
func (p *Pacer) Delay(n int) time.Duration {
	d := p.cfg.BaseDelay
	if p.cfg.BurstEvery > 0 && n > 0 && n%p.cfg.BurstEvery == 0 {
		d += p.cfg.BurstCooldown
	}
	return d
}

// Requests returns how many requests the pacer has seen.
func (p *Pacer) Requests() int { return p.count }

type pacerKey struct{}

// WithPacer attaches p to ctx so fetchers further down can pace the extra
// requests a chunk makes on retries and fallbacks.
func WithPacer(ctx context.Context, p *Pacer) context.Context {
	return context.WithValue(ctx, pacerKey{}, p)
}

// PacerFrom returns the pacer attached to ctx, or nil.
func PacerFrom(ctx context.Context) *Pacer {
	p, _ := ctx.Value(pacerKey{}).(*Pacer)
	return p
}
