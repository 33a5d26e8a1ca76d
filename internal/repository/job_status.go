package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"BarPull/internal/domain/models"
	"BarPull/internal/domain/repository"
	"BarPull/pkg/cache"
)

// CacheJobStatus stores job outcomes in the cache so async callers can
// poll them.
type CacheJobStatus struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCacheJobStatus(c cache.Service, ttl time.Duration) *CacheJobStatus {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &CacheJobStatus{cache: c, ttl: ttl}
}

func jobStatusKey(kind models.JobKind, symbol string, tf models.Timeframe) string {
	return cache.Key("job", kind, symbol, tf)
}

func (s *CacheJobStatus) SaveStatus(ctx context.Context, e models.JobFinishedEvent) error {
	return s.cache.Set(ctx, jobStatusKey(e.Kind, e.Symbol, e.Timeframe), e, s.ttl)
}

func (s *CacheJobStatus) LastStatus(ctx context.Context, kind models.JobKind, symbol string, tf models.Timeframe) (*models.JobFinishedEvent, error) {
	var e models.JobFinishedEvent
	if err := s.cache.Get(ctx, jobStatusKey(kind, symbol, tf), &e); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, fmt.Errorf("job status %s %s/%s: %w", kind, symbol, tf, repository.ErrNotFound)
		}
		return nil, err
	}
	return &e, nil
}
