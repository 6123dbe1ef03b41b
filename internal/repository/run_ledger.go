package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"AltPull/internal/domain/models"
	"AltPull/pkg/cache"
)

const (
	lockPrefix      = "etl:lock"
	completedPrefix = "etl:done"
)

// CacheRunLedger keeps run locks and completed-run markers in a cache.Service
// (Redis in production, memory for single-node runs and tests).
type CacheRunLedger struct {
	cache cache.Service
}

func NewCacheRunLedger(c cache.Service) *CacheRunLedger {
	return &CacheRunLedger{cache: c}
}

// Acquire takes the run lock; false means another worker holds it.
func (l *CacheRunLedger) Acquire(ctx context.Context, runKey string, ttl time.Duration) (bool, error) {
	ok, err := l.cache.TryLock(ctx, cache.GenerateKey(lockPrefix, runKey), ttl)
	if err != nil {
		return false, fmt.Errorf("acquire run lock %s: %w", runKey, err)
	}
	return ok, nil
}

func (l *CacheRunLedger) Release(ctx context.Context, runKey string) error {
	if err := l.cache.Unlock(ctx, cache.GenerateKey(lockPrefix, runKey)); err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return fmt.Errorf("release run lock %s: %w", runKey, err)
	}
	return nil
}

// Completed returns the stored result of an earlier successful run with the same key.
func (l *CacheRunLedger) Completed(ctx context.Context, runKey string) (*models.ETLResult, bool, error) {
	var res models.ETLResult
	err := l.cache.Get(ctx, cache.GenerateKey(completedPrefix, runKey), &res)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read completed marker %s: %w", runKey, err)
	}
	return &res, true, nil
}

// MarkCompleted stores res under its run key; ttl <= 0 keeps the cache default.
func (l *CacheRunLedger) MarkCompleted(ctx context.Context, res *models.ETLResult, ttl time.Duration) error {
	if err := l.cache.Set(ctx, cache.GenerateKey(completedPrefix, res.RunKey), res, ttl); err != nil {
		return fmt.Errorf("write completed marker %s: %w", res.RunKey, err)
	}
	return nil
}
