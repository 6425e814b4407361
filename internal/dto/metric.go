package dto

import (
	"github.com/noah-isme/lrs-metrics-api/internal/models"
)

// MetricQuery captures the query parameters of GET /metrics/:metricId.
// Which identifiers are required depends on the metric; the provider
// validates the assembled parameter map.
type MetricQuery struct {
	InstanceID string `form:"instanceId"`
	UserID     string `form:"userId"`
	ElementID  string `form:"elementId"`
	TopicID    string `form:"topicId"`
	CourseID   string `form:"courseId"`
	Since      string `form:"since"`
	Until      string `form:"until"`
}

// Params assembles the provider parameter map, omitting unset fields.
func (q MetricQuery) Params() models.MetricParams {
	params := models.MetricParams{}
	set := func(key, value string) {
		if value != "" {
			params[key] = value
		}
	}
	set("userId", q.UserID)
	set("elementId", q.ElementID)
	set("topicId", q.TopicID)
	set("courseId", q.CourseID)
	set("since", q.Since)
	set("until", q.Until)
	return params
}

// InvalidateRequest captures POST /cache/invalidate payload. Empty fields
// widen the invalidation pattern.
type InvalidateRequest struct {
	MetricID   string `json:"metricId"`
	InstanceID string `json:"instanceId"`
	Scope      string `json:"scope" validate:"omitempty,oneof=course topic element"`
}

// InvalidateResponse reports how many cached entries were removed.
type InvalidateResponse struct {
	Removed int64 `json:"removed"`
}

// ExportQuery captures the export format selector.
type ExportQuery struct {
	Format string `form:"format" binding:"required,oneof=csv pdf"`
}
