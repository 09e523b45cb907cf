package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/atlasedu/academy-api/pkg/config"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
)

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts the Redis read-path cache. A nil receiver or a
// disabled config degrades every call to a no-op so callers never branch
// on cache availability.
type CacheService struct {
	store   cacheStore
	enabled bool
	ttl     time.Duration
	metrics *MetricsService
	logger  *zap.Logger
}

// NewCacheService constructs CacheService.
func NewCacheService(store cacheStore, cfg config.CacheConfig, metrics *MetricsService, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{store: store, enabled: cfg.Enabled, ttl: cfg.TTL, metrics: metrics, logger: logger}
}

// Enabled reports whether cache reads and writes are live.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.store != nil
}

// Get fills dest from the cache. The boolean reports a hit; a miss is not
// an error.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.store.Get(ctx, key, dest)
	s.metrics.RecordCacheLookup(err == nil, time.Since(start))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, appErrors.ErrCacheMiss) {
		return false, nil
	}
	s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	return false, err
}

// Set stores value under key. A non-positive ttl falls back to the
// configured default.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.ttl
	}
	start := time.Now()
	defer func() { s.metrics.ObserveCacheWrite(time.Since(start)) }()
	if err := s.store.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Invalidate removes every key matching the pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	return s.store.DeleteByPattern(ctx, pattern)
}
