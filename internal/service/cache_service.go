package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lrs-metrics-api/pkg/config"
	appErrors "github.com/noah-isme/lrs-metrics-api/pkg/errors"
)

// TTL categories resolved through config.CacheConfig.
const (
	CategoryMetrics = "metrics"
	CategoryResults = "results"
	CategoryHealth  = "health"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
	Ping(ctx context.Context) error
}

// CacheService orchestrates cache operations and related metrics. Store
// unavailability is absorbed here: every operation degrades to its miss or
// no-op outcome instead of raising, so callers never see cache failures.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	cfg     config.CacheConfig
	logger  *zap.Logger
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, cfg config.CacheConfig, logger *zap.Logger) *CacheService {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	return &CacheService{repo: repo, metrics: metrics, cfg: cfg, logger: logger}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.cfg.Enabled && s.repo != nil
}

// StaleRetention returns the physical retention window for stale fallback
// reads.
func (s *CacheService) StaleRetention() time.Duration {
	if s == nil || s.cfg.StaleRetention <= 0 {
		return 24 * time.Hour
	}
	return s.cfg.StaleRetention
}

// FreshTTL returns the logical freshness window for a category.
func (s *CacheService) FreshTTL(category string) time.Duration {
	if s == nil {
		return 0
	}
	return s.cfg.TTLFor(category)
}

// Get attempts to retrieve a cached entry. It returns true when the cache
// was hit. Deserialization failures and store errors behave like a miss.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) bool {
	if !s.Enabled() {
		return false
	}
	start := time.Now()
	err := s.repo.Get(ctx, key, dest)
	duration := time.Since(start)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(false, duration)
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) && s.logger != nil {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(true, duration)
	}
	return true
}

// Set stores the value in cache. When ttl is zero, the TTL is resolved
// from the category. Returns true when the write succeeded.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration, category string) bool {
	if !s.Enabled() {
		return false
	}
	if ttl <= 0 {
		ttl = s.cfg.TTLFor(category)
	}
	start := time.Now()
	err := s.repo.Set(ctx, key, value, ttl)
	if s.metrics != nil {
		s.metrics.ObserveCacheWrite(time.Since(start))
	}
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return true
}

// Delete removes a single key, returning true only when the key existed
// and was removed.
func (s *CacheService) Delete(ctx context.Context, key string) bool {
	if !s.Enabled() {
		return false
	}
	removed, err := s.repo.Delete(ctx, key)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if removed && s.metrics != nil {
		s.metrics.RecordCacheEvictions(1)
	}
	return removed
}

// InvalidatePattern removes all keys matching the glob pattern and returns
// the number of keys actually removed. Scan errors abort the operation and
// yield 0, never a partial count.
func (s *CacheService) InvalidatePattern(ctx context.Context, pattern string) int64 {
	if !s.Enabled() {
		return 0
	}
	removed, err := s.repo.DeleteByPattern(ctx, pattern)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		}
		return 0
	}
	if s.metrics != nil {
		s.metrics.RecordCacheEvictions(removed)
	}
	if s.logger != nil {
		s.logger.Info("cache invalidated", zap.String("pattern", pattern), zap.Int64("removed", removed))
	}
	return removed
}

// IsHealthy reports key-value store liveness without raising.
func (s *CacheService) IsHealthy(ctx context.Context) bool {
	if !s.Enabled() {
		return false
	}
	return s.repo.Ping(ctx) == nil
}
