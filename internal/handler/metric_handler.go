package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/lrs-metrics-api/internal/dto"
	"github.com/noah-isme/lrs-metrics-api/internal/middleware"
	"github.com/noah-isme/lrs-metrics-api/internal/models"
	"github.com/noah-isme/lrs-metrics-api/internal/service"
	appErrors "github.com/noah-isme/lrs-metrics-api/pkg/errors"
	"github.com/noah-isme/lrs-metrics-api/pkg/response"
)

// MetricServer is the orchestrator surface the handler depends on.
type MetricServer interface {
	Catalog() []models.ProviderInfo
	GetMetric(ctx context.Context, metricID, instanceID string, params models.MetricParams) (models.MetricEnvelope, error)
	InvalidateCache(ctx context.Context, metricID, instanceID, scope string) int64
	SystemHealth(ctx context.Context) models.SystemHealth
	SystemMetrics() models.SystemMetrics
}

// MetricHandler exposes the metric catalog and serving endpoints.
type MetricHandler struct {
	metrics   MetricServer
	exports   *service.ExportService
	validator *validator.Validate
}

// NewMetricHandler constructs the metric handler.
func NewMetricHandler(metrics MetricServer, exports *service.ExportService) *MetricHandler {
	return &MetricHandler{metrics: metrics, exports: exports, validator: validator.New()}
}

// Catalog lists all registered metrics with their parameter contracts.
func (h *MetricHandler) Catalog(c *gin.Context) {
	if h.metrics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	response.JSON(c, http.StatusOK, h.metrics.Catalog())
}

// Serve computes or retrieves one metric. Store outages never surface as
// transport errors; the envelope's status field carries the degradation.
func (h *MetricHandler) Serve(c *gin.Context) {
	if h.metrics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var query dto.MetricQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	start := time.Now()
	envelope, err := h.metrics.GetMetric(c.Request.Context(), c.Param("metricId"), query.InstanceID, query.Params())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, envelope.FromCache)
	middleware.SetServeStatus(c, envelope.Status)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = make(map[string]interface{})
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, envelope, meta)
}

// Export renders one served metric as a downloadable document.
func (h *MetricHandler) Export(c *gin.Context) {
	if h.metrics == nil || h.exports == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var format dto.ExportQuery
	if err := c.ShouldBindQuery(&format); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	var query dto.MetricQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}

	envelope, err := h.metrics.GetMetric(c.Request.Context(), c.Param("metricId"), query.InstanceID, query.Params())
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.RenderEnvelope(envelope, format.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// CatalogExport renders the metric catalog as a downloadable document.
func (h *MetricHandler) CatalogExport(c *gin.Context) {
	if h.metrics == nil || h.exports == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var format dto.ExportQuery
	if err := c.ShouldBindQuery(&format); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	file, err := h.exports.RenderCatalog(h.metrics.Catalog(), format.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// Invalidate removes cached results matching the supplied partial key.
func (h *MetricHandler) Invalidate(c *gin.Context) {
	if h.metrics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req dto.InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid invalidation payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "scope must be course, topic or element"))
		return
	}
	removed := h.metrics.InvalidateCache(c.Request.Context(), req.MetricID, req.InstanceID, req.Scope)
	response.JSON(c, http.StatusOK, dto.InvalidateResponse{Removed: removed})
}

// SystemHealth probes every statement store plus the cache.
func (h *MetricHandler) SystemHealth(c *gin.Context) {
	if h.metrics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	response.JSON(c, http.StatusOK, h.metrics.SystemHealth(c.Request.Context()))
}

// SystemMetrics returns the instrumentation snapshot.
func (h *MetricHandler) SystemMetrics(c *gin.Context) {
	if h.metrics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	response.JSON(c, http.StatusOK, h.metrics.SystemMetrics())
}
