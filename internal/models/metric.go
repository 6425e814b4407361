package models

import "time"

// Serving statuses for MetricEnvelope. Degradation is a result shape, not a
// transport error: all three are returned with HTTP 200.
const (
	StatusFresh       = "fresh"
	StatusDegraded    = "degraded"
	StatusUnavailable = "unavailable"
)

// CauseStoreUnavailable is the machine-readable cause attached to
// unavailable results.
const CauseStoreUnavailable = "STORE_UNAVAILABLE"

// MetricParams is the caller-supplied parameter map for one metric request,
// validated per metric before use.
type MetricParams map[string]interface{}

// MetricResult is the computable, cacheable unit produced by a provider.
// Immutable once produced.
type MetricResult struct {
	MetricID string                 `json:"metricId"`
	Value    interface{}            `json:"value"`
	Computed time.Time              `json:"computed"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// CacheEntry wraps a metric result with its write time. Logical freshness
// is decided from CachedAt; the entry stays physically readable for the
// stale-fallback window after it goes logically stale.
type CacheEntry struct {
	Result   MetricResult `json:"result"`
	CachedAt time.Time    `json:"cachedAt"`
}

// MetricEnvelope is the result shape returned to collaborators. Callers
// must branch on Status, not on HTTP codes.
type MetricEnvelope struct {
	MetricID      string                 `json:"metricId"`
	Value         interface{}            `json:"value"`
	Timestamp     time.Time              `json:"timestamp"`
	FromCache     bool                   `json:"fromCache"`
	Status        string                 `json:"status"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Warning       string                 `json:"warning,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Cause         string                 `json:"cause,omitempty"`
	DataAvailable bool                   `json:"dataAvailable"`
	AgeSeconds    int64                  `json:"age,omitempty"`
	CachedAt      *time.Time             `json:"cachedAt,omitempty"`
}

// ProviderInfo is the catalog entry describing one registered metric.
type ProviderInfo struct {
	ID             string   `json:"id"`
	DashboardLevel string   `json:"dashboardLevel"`
	RequiredParams []string `json:"requiredParams"`
	OptionalParams []string `json:"optionalParams,omitempty"`
	OutputType     string   `json:"outputType"`
}

// InstanceHealth is the outcome of probing a statement store. Auth
// failures report Healthy=true with the error noted: the transport is up,
// only the credentials are wrong.
type InstanceHealth struct {
	InstanceID     string  `json:"instanceId"`
	Healthy        bool    `json:"healthy"`
	Version        string  `json:"version,omitempty"`
	ResponseTimeMs int64   `json:"responseTimeMs"`
	Error          string  `json:"error,omitempty"`
}

// SystemHealth aggregates store and cache liveness for the ops endpoint.
type SystemHealth struct {
	Instances    []InstanceHealth `json:"instances"`
	CacheHealthy bool             `json:"cacheHealthy"`
	CheckedAt    time.Time        `json:"checkedAt"`
}

// SystemMetrics is a lightweight instrumentation snapshot.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"avg_request_duration_ms"`
	LRSRequestCount          uint64    `json:"lrs_request_count"`
	AverageLRSDurationMs     float64   `json:"avg_lrs_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
