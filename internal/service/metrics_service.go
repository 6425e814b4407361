package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/lrs-metrics-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides
// lightweight snapshots for the system endpoint.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheEvictions  prometheus.Counter
	lrsDuration     *prometheus.HistogramVec
	lrsTotal        *prometheus.CounterVec
	lrsRetries      *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	lrsRequestCount      uint64
	lrsDurationTotal     uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	cacheEvictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_evictions_total",
		Help: "Total keys removed by explicit deletion or pattern invalidation",
	})

	lrsDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lrs_request_duration_seconds",
		Help:    "Duration of outbound statement-store requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"instance", "operation"})

	lrsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lrs_requests_total",
		Help: "Total outbound statement-store requests",
	}, []string{"instance", "result"})

	lrsRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lrs_retries_total",
		Help: "Total statement-store retry attempts",
	}, []string{"instance"})

	circuitState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_state",
		Help: "Circuit breaker state per instance (0=closed, 1=open)",
	}, []string{"instance"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio,
		cacheHits, cacheMisses, cacheEvictions, lrsDuration, lrsTotal, lrsRetries, circuitState, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheEvictions:  cacheEvictions,
		lrsDuration:     lrsDuration,
		lrsTotal:        lrsTotal,
		lrsRetries:      lrsRetries,
		circuitState:    circuitState,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordCacheEvictions counts keys removed by deletion or invalidation.
func (m *MetricsService) RecordCacheEvictions(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.cacheEvictions.Add(float64(count))
}

// ObserveLRSRequest records outbound statement-store request timing.
func (m *MetricsService) ObserveLRSRequest(instanceID, operation string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.lrsDuration.WithLabelValues(instanceID, operation).Observe(duration.Seconds())
	result := "success"
	if failed {
		result = "failure"
	}
	m.lrsTotal.WithLabelValues(instanceID, result).Inc()
	atomic.AddUint64(&m.lrsRequestCount, 1)
	atomic.AddUint64(&m.lrsDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordLRSRetry counts a retry attempt against an instance.
func (m *MetricsService) RecordLRSRetry(instanceID string) {
	if m == nil {
		return
	}
	m.lrsRetries.WithLabelValues(instanceID).Inc()
}

// SetCircuitOpen flips the per-instance circuit gauge.
func (m *MetricsService) SetCircuitOpen(instanceID string, open bool) {
	if m == nil {
		return
	}
	value := 0.0
	if open {
		value = 1.0
	}
	m.circuitState.WithLabelValues(instanceID).Set(value)
}

// Snapshot returns aggregated metrics suitable for the system endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)
	lrsCount := atomic.LoadUint64(&m.lrsRequestCount)
	lrsDuration := atomic.LoadUint64(&m.lrsDurationTotal)

	var cacheRatio float64
	totalLookups := hits + misses
	if totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	var avgLRSMs float64
	if lrsCount > 0 {
		avgLRSMs = float64(lrsDuration) / float64(lrsCount) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		LRSRequestCount:          lrsCount,
		AverageLRSDurationMs:     avgLRSMs,
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
