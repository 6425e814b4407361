package service

import (
	"context"
	"encoding/json"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/lrs-metrics-api/pkg/config"
	appErrors "github.com/noah-isme/lrs-metrics-api/pkg/errors"
)

// stubCacheRepo is an in-memory CacheRepository with glob-pattern support.
type stubCacheRepo struct {
	store    map[string][]byte
	lastTTL  time.Duration
	failAll  bool
	scanFail bool
}

func (s *stubCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	if s.failAll {
		return appErrors.ErrCacheUnavailable
	}
	payload, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(payload, dest)
}

func (s *stubCacheRepo) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	if s.failAll {
		return appErrors.ErrCacheUnavailable
	}
	if s.store == nil {
		s.store = make(map[string][]byte)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = payload
	s.lastTTL = ttl
	return nil
}

func (s *stubCacheRepo) Delete(_ context.Context, key string) (bool, error) {
	if s.failAll {
		return false, appErrors.ErrCacheUnavailable
	}
	if _, ok := s.store[key]; !ok {
		return false, nil
	}
	delete(s.store, key)
	return true, nil
}

func (s *stubCacheRepo) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	if s.failAll || s.scanFail {
		return 0, appErrors.ErrCacheUnavailable
	}
	var removed int64
	for key := range s.store {
		if ok, _ := path.Match(pattern, key); ok {
			delete(s.store, key)
			removed++
		}
	}
	return removed, nil
}

func (s *stubCacheRepo) Ping(_ context.Context) error {
	if s.failAll {
		return appErrors.ErrCacheUnavailable
	}
	return nil
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:        true,
		DefaultTTL:     10 * time.Minute,
		MetricsTTL:     time.Hour,
		ResultsTTL:     5 * time.Minute,
		HealthTTL:      30 * time.Second,
		StaleRetention: 24 * time.Hour,
	}
}

func TestCacheServiceGetSetRoundTrip(t *testing.T) {
	repo := &stubCacheRepo{}
	svc := NewCacheService(repo, nil, testCacheConfig(), zap.NewNop())

	ctx := context.Background()
	ok := svc.Set(ctx, "cache:k:lrs-1:course:v1", map[string]string{"a": "b"}, 0, CategoryResults)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, repo.lastTTL)

	var got map[string]string
	assert.True(t, svc.Get(ctx, "cache:k:lrs-1:course:v1", &got))
	assert.Equal(t, "b", got["a"])

	var missed map[string]string
	assert.False(t, svc.Get(ctx, "cache:other:lrs-1:course:v1", &missed))
}

func TestCacheServiceTTLCategories(t *testing.T) {
	repo := &stubCacheRepo{}
	svc := NewCacheService(repo, nil, testCacheConfig(), zap.NewNop())
	ctx := context.Background()

	svc.Set(ctx, "k1", "v", 0, CategoryMetrics)
	assert.Equal(t, time.Hour, repo.lastTTL)

	svc.Set(ctx, "k2", "v", 0, CategoryHealth)
	assert.Equal(t, 30*time.Second, repo.lastTTL)

	svc.Set(ctx, "k3", "v", 0, "unknown-category")
	assert.Equal(t, 10*time.Minute, repo.lastTTL)

	svc.Set(ctx, "k4", "v", 42*time.Second, CategoryMetrics)
	assert.Equal(t, 42*time.Second, repo.lastTTL)
}

func TestCacheServiceAbsorbsStoreFailures(t *testing.T) {
	repo := &stubCacheRepo{failAll: true}
	svc := NewCacheService(repo, nil, testCacheConfig(), zap.NewNop())
	ctx := context.Background()

	var dest string
	assert.False(t, svc.Get(ctx, "k", &dest))
	assert.False(t, svc.Set(ctx, "k", "v", 0, CategoryResults))
	assert.False(t, svc.Delete(ctx, "k"))
	assert.Zero(t, svc.InvalidatePattern(ctx, "cache:*"))
	assert.False(t, svc.IsHealthy(ctx))
}

func TestCacheServiceDeleteReportsExistence(t *testing.T) {
	repo := &stubCacheRepo{}
	svc := NewCacheService(repo, nil, testCacheConfig(), zap.NewNop())
	ctx := context.Background()

	assert.False(t, svc.Delete(ctx, "absent"))

	svc.Set(ctx, "present", "v", 0, CategoryResults)
	assert.True(t, svc.Delete(ctx, "present"))
	assert.False(t, svc.Delete(ctx, "present"))
}

func TestCacheServiceInvalidatePattern(t *testing.T) {
	repo := &stubCacheRepo{}
	svc := NewCacheService(repo, nil, testCacheConfig(), zap.NewNop())
	ctx := context.Background()

	require.True(t, svc.Set(ctx, "cache:test-a:lrs-1:course:v1", "a", 0, CategoryResults))
	require.True(t, svc.Set(ctx, "cache:test-b:lrs-1:course:v1", "b", 0, CategoryResults))
	require.True(t, svc.Set(ctx, "cache:other:lrs-1:course:v1", "c", 0, CategoryResults))

	removed := svc.InvalidatePattern(ctx, "cache:test-*")
	assert.Equal(t, int64(2), removed)

	var untouched string
	assert.True(t, svc.Get(ctx, "cache:other:lrs-1:course:v1", &untouched))
	assert.Equal(t, "c", untouched)
}

func TestCacheServiceInvalidatePatternScanErrorYieldsZero(t *testing.T) {
	repo := &stubCacheRepo{scanFail: true}
	svc := NewCacheService(repo, nil, testCacheConfig(), zap.NewNop())
	ctx := context.Background()

	svc.Set(ctx, "cache:test-a:lrs-1:course:v1", "a", 0, CategoryResults)
	assert.Zero(t, svc.InvalidatePattern(ctx, "cache:test-*"))
}

func TestCacheServiceDisabled(t *testing.T) {
	cfg := testCacheConfig()
	cfg.Enabled = false
	svc := NewCacheService(&stubCacheRepo{}, nil, cfg, zap.NewNop())
	ctx := context.Background()

	assert.False(t, svc.Enabled())
	assert.False(t, svc.Set(ctx, "k", "v", 0, CategoryResults))
	var dest string
	assert.False(t, svc.Get(ctx, "k", &dest))
}
