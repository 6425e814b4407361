package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lrs-metrics-api/internal/models"
	"github.com/noah-isme/lrs-metrics-api/internal/provider"
	"github.com/noah-isme/lrs-metrics-api/pkg/cachekey"
	appErrors "github.com/noah-isme/lrs-metrics-api/pkg/errors"
)

// userSafeUnavailableMessage is the only failure text end callers ever see
// for store outages. No raw error text or stack frames leak past it.
const userSafeUnavailableMessage = "metric data is temporarily unavailable"

// StatementStore describes the statement-store client required by the
// orchestrator.
type StatementStore interface {
	InstanceID() string
	QueryStatements(ctx context.Context, filters models.QueryFilters, maxStatements int) ([]models.Statement, error)
	GetInstanceHealth(ctx context.Context) models.InstanceHealth
}

// MetricService orchestrates metric serving: validate, consult cache,
// gate on the circuit breaker, query the store, compute, write through,
// and degrade gracefully when the store is unreachable.
type MetricService struct {
	registry        *provider.Registry
	cache           *CacheService
	stores          map[string]StatementStore
	breaker         *CircuitBreaker
	metrics         *MetricsService
	logger          *zap.Logger
	maxStatements   int
	defaultInstance string
}

// NewMetricService constructs the orchestrator. The first store in order
// of registration becomes the default instance.
func NewMetricService(
	registry *provider.Registry,
	cache *CacheService,
	stores []StatementStore,
	breaker *CircuitBreaker,
	metrics *MetricsService,
	logger *zap.Logger,
	maxStatements int,
) *MetricService {
	if maxStatements <= 0 {
		maxStatements = 1000
	}
	byID := make(map[string]StatementStore, len(stores))
	defaultInstance := ""
	for _, store := range stores {
		if defaultInstance == "" {
			defaultInstance = store.InstanceID()
		}
		byID[store.InstanceID()] = store
	}
	return &MetricService{
		registry:        registry,
		cache:           cache,
		stores:          byID,
		breaker:         breaker,
		metrics:         metrics,
		logger:          logger,
		maxStatements:   maxStatements,
		defaultInstance: defaultInstance,
	}
}

// Catalog lists all registered metrics.
func (s *MetricService) Catalog() []models.ProviderInfo {
	return s.registry.List()
}

// GetMetric serves one metric request. Validation and unknown-id failures
// surface as errors; store failures never do — they produce a degraded or
// unavailable envelope with a normal success status.
func (s *MetricService) GetMetric(ctx context.Context, metricID, instanceID string, params models.MetricParams) (models.MetricEnvelope, error) {
	prov, err := s.registry.Get(metricID)
	if err != nil {
		return models.MetricEnvelope{}, err
	}
	if err := prov.ValidateParams(params); err != nil {
		return models.MetricEnvelope{}, err
	}

	if instanceID == "" {
		instanceID = s.defaultInstance
	}
	store, ok := s.stores[instanceID]
	if !ok {
		return models.MetricEnvelope{}, appErrors.Clone(appErrors.ErrNotFound, "unknown store instance")
	}

	key := cachekey.Encode(cachekey.Params{
		MetricID:   metricID,
		InstanceID: instanceID,
		Scope:      prov.DashboardLevel(),
		Filters:    map[string]interface{}(params),
	})

	var entry models.CacheEntry
	cached := s.cache.Get(ctx, key, &entry)
	if cached && time.Since(entry.CachedAt) <= s.cache.FreshTTL(CategoryResults) {
		return freshEnvelope(entry.Result, true, entry.CachedAt), nil
	}

	if !s.breaker.Allow(instanceID) {
		if s.logger != nil {
			s.logger.Warn("circuit open, skipping store call",
				zap.String("metric_id", metricID),
				zap.String("instance_id", instanceID))
		}
		return s.degrade(metricID, entry, cached), nil
	}

	filters, err := buildQueryFilters(params)
	if err != nil {
		return models.MetricEnvelope{}, err
	}

	statements, err := store.QueryStatements(ctx, filters, s.maxStatements)
	if err != nil {
		s.breaker.RecordFailure(instanceID)
		if s.logger != nil {
			s.logger.Warn("statement store query failed",
				zap.String("metric_id", metricID),
				zap.String("instance_id", instanceID),
				zap.Int("consecutive_failures", s.breaker.Failures(instanceID)),
				zap.Error(err))
		}
		return s.degrade(metricID, entry, cached), nil
	}
	s.breaker.RecordSuccess(instanceID)

	statements = filterByWindow(statements, filters.Since, filters.Until)

	result, err := prov.Compute(params, statements)
	if err != nil {
		return models.MetricEnvelope{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "metric computation failed")
	}

	now := time.Now().UTC()
	// Written only after a fully successful compute, under the stale
	// retention window so logically expired entries stay readable for
	// the degradation fallback.
	s.cache.Set(ctx, key, models.CacheEntry{Result: result, CachedAt: now}, s.cache.StaleRetention(), CategoryResults)

	return freshEnvelope(result, false, now), nil
}

// InvalidateCache removes cached results matching the partial key. Empty
// fields widen the pattern.
func (s *MetricService) InvalidateCache(ctx context.Context, metricID, instanceID, scope string) int64 {
	pattern := cachekey.EncodePattern(cachekey.Params{
		MetricID:   metricID,
		InstanceID: instanceID,
		Scope:      scope,
	})
	return s.cache.InvalidatePattern(ctx, pattern)
}

// SystemHealth probes every configured store and the cache.
func (s *MetricService) SystemHealth(ctx context.Context) models.SystemHealth {
	health := models.SystemHealth{
		CacheHealthy: s.cache.IsHealthy(ctx),
		CheckedAt:    time.Now().UTC(),
	}
	for _, store := range s.stores {
		health.Instances = append(health.Instances, store.GetInstanceHealth(ctx))
	}
	return health
}

// SystemMetrics returns the instrumentation snapshot.
func (s *MetricService) SystemMetrics() models.SystemMetrics {
	if s.metrics == nil {
		return models.SystemMetrics{}
	}
	return s.metrics.Snapshot()
}

// degrade builds the fallback envelope: stale cache when any entry is
// physically present, otherwise an explicit unavailable result.
func (s *MetricService) degrade(metricID string, entry models.CacheEntry, hasEntry bool) models.MetricEnvelope {
	if hasEntry {
		cachedAt := entry.CachedAt
		return models.MetricEnvelope{
			MetricID:      metricID,
			Value:         entry.Result.Value,
			Timestamp:     entry.Result.Computed,
			FromCache:     true,
			Status:        models.StatusDegraded,
			Metadata:      entry.Result.Metadata,
			Warning:       "stale data",
			DataAvailable: true,
			AgeSeconds:    int64(time.Since(cachedAt).Seconds()),
			CachedAt:      &cachedAt,
		}
	}
	return models.MetricEnvelope{
		MetricID:      metricID,
		Value:         nil,
		Timestamp:     time.Now().UTC(),
		Status:        models.StatusUnavailable,
		Error:         userSafeUnavailableMessage,
		Cause:         models.CauseStoreUnavailable,
		DataAvailable: false,
	}
}

func freshEnvelope(result models.MetricResult, fromCache bool, cachedAt time.Time) models.MetricEnvelope {
	envelope := models.MetricEnvelope{
		MetricID:      result.MetricID,
		Value:         result.Value,
		Timestamp:     result.Computed,
		FromCache:     fromCache,
		Status:        models.StatusFresh,
		Metadata:      result.Metadata,
		DataAvailable: true,
	}
	if fromCache {
		envelope.CachedAt = &cachedAt
	}
	return envelope
}

// buildQueryFilters maps metric params onto statement-store query filters.
func buildQueryFilters(params models.MetricParams) (models.QueryFilters, error) {
	filters := models.QueryFilters{}

	if userID := stringParam(params, "userId"); userID != "" {
		filters.Agent = agentJSON(userID)
	}
	if activity := firstStringParam(params, "elementId", "topicId", "courseId"); activity != "" {
		filters.Activity = activity
		// Element ids address a single activity; topic and course ids
		// address a grouping, so related activities must be included.
		if stringParam(params, "elementId") == "" {
			filters.RelatedActivities = true
		}
	}

	var err error
	if filters.Since, err = timeParam(params, "since"); err != nil {
		return filters, err
	}
	if filters.Until, err = timeParam(params, "until"); err != nil {
		return filters, err
	}

	return filters, nil
}

// agentJSON renders the xAPI agent query parameter. Mailbox identities
// pass through; anything else becomes an account identity.
func agentJSON(userID string) string {
	var agent map[string]interface{}
	if len(userID) > 7 && userID[:7] == "mailto:" {
		agent = map[string]interface{}{"mbox": userID}
	} else {
		agent = map[string]interface{}{"account": map[string]string{"homePage": "urn:lms", "name": userID}}
	}
	raw, err := json.Marshal(agent)
	if err != nil {
		return ""
	}
	return string(raw)
}

// filterByWindow drops statements outside [since, until]. Statements
// without a timestamp sort as the oldest possible time.
func filterByWindow(statements []models.Statement, since, until *time.Time) []models.Statement {
	if since == nil && until == nil {
		return statements
	}
	filtered := make([]models.Statement, 0, len(statements))
	for _, stmt := range statements {
		var ts time.Time
		if stmt.Timestamp != nil {
			ts = *stmt.Timestamp
		}
		if since != nil && ts.Before(*since) {
			continue
		}
		if until != nil && ts.After(*until) {
			continue
		}
		filtered = append(filtered, stmt)
	}
	return filtered
}

func stringParam(params models.MetricParams, key string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func firstStringParam(params models.MetricParams, keys ...string) string {
	for _, key := range keys {
		if v := stringParam(params, key); v != "" {
			return v
		}
	}
	return ""
}

func timeParam(params models.MetricParams, key string) (*time.Time, error) {
	raw := stringParam(params, key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid "+key+" timestamp")
	}
	return &t, nil
}
