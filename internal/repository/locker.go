package repository

import (
	"context"
	"time"

	"BarPull/internal/domain/repository"
	"BarPull/pkg/cache"
	"BarPull/pkg/logger"
)

// CacheLocker guards job keys with the cache's owner-token locks.
type CacheLocker struct {
	cache  cache.Service
	logger *logger.Logger
}

var _ repository.Locker = (*CacheLocker)(nil)

func NewCacheLocker(c cache.Service, log *logger.Logger) *CacheLocker {
	if log == nil {
		log = logger.Nop()
	}
	return &CacheLocker{cache: c, logger: log}
}

func (l *CacheLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.cache.TryLock(ctx, key, ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		l.logger.Debug("lock held elsewhere", logger.String("key", key))
	}
	return ok, nil
}

func (l *CacheLocker) Unlock(ctx context.Context, key string) error {
	return l.cache.Unlock(ctx, key)
}
