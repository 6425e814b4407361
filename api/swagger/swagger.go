package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "LRS Metrics API",
        "description": "Learning-analytics metric serving over xAPI statement stores",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Metrics", "description": "Metric catalog and serving"},
        {"name": "Cache", "description": "Cache invalidation"},
        {"name": "System", "description": "Health and instrumentation"}
    ],
    "paths": {
        "/metrics": {
            "get": {
                "tags": ["Metrics"],
                "summary": "List registered metrics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/{metricId}": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Serve one metric",
                "description": "Store outages never fail the request; inspect the status field of the result for fresh, degraded or unavailable.",
                "parameters": [
                    {"name": "metricId", "in": "path", "required": true, "type": "string"},
                    {"name": "instanceId", "in": "query", "type": "string"},
                    {"name": "userId", "in": "query", "type": "string"},
                    {"name": "elementId", "in": "query", "type": "string"},
                    {"name": "topicId", "in": "query", "type": "string"},
                    {"name": "courseId", "in": "query", "type": "string"},
                    {"name": "since", "in": "query", "type": "string", "format": "date-time"},
                    {"name": "until", "in": "query", "type": "string", "format": "date-time"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown metric or instance", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/metrics/{metricId}/export": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Export one served metric",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "metricId", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "required": true, "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "userId", "in": "query", "type": "string"},
                    {"name": "elementId", "in": "query", "type": "string"},
                    {"name": "topicId", "in": "query", "type": "string"},
                    {"name": "courseId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Rendered document"},
                    "400": {"description": "Validation error"}
                }
            }
        },
        "/catalog/export": {
            "get": {
                "tags": ["Metrics"],
                "summary": "Export the metric catalog",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "required": true, "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Rendered document"}
                }
            }
        },
        "/cache/invalidate": {
            "post": {
                "tags": ["Cache"],
                "summary": "Invalidate cached results",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/InvalidateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/system/health": {
            "get": {
                "tags": ["System"],
                "summary": "Statement-store and cache health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/system/metrics": {
            "get": {
                "tags": ["System"],
                "summary": "Instrumentation snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "MetricEnvelope": {
            "type": "object",
            "properties": {
                "metricId": {"type": "string"},
                "value": {"type": "object"},
                "timestamp": {"type": "string"},
                "fromCache": {"type": "boolean"},
                "status": {"type": "string", "enum": ["fresh", "degraded", "unavailable"]},
                "metadata": {"type": "object"},
                "warning": {"type": "string"},
                "error": {"type": "string"},
                "cause": {"type": "string"},
                "dataAvailable": {"type": "boolean"},
                "age": {"type": "integer"},
                "cachedAt": {"type": "string"}
            }
        },
        "ProviderInfo": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "dashboardLevel": {"type": "string"},
                "requiredParams": {"type": "array", "items": {"type": "string"}},
                "optionalParams": {"type": "array", "items": {"type": "string"}},
                "outputType": {"type": "string"}
            }
        },
        "InvalidateRequest": {
            "type": "object",
            "properties": {
                "metricId": {"type": "string"},
                "instanceId": {"type": "string"},
                "scope": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
