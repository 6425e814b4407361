package service

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lrs-metrics-api/internal/models"
	appErrors "github.com/noah-isme/lrs-metrics-api/pkg/errors"
)

func TestExportServiceRendersEnvelopeAsCSV(t *testing.T) {
	svc := NewExportService()
	envelope := models.MetricEnvelope{
		MetricID:  "element-score",
		Value:     85.0,
		Status:    models.StatusFresh,
		Timestamp: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
	}

	file, err := svc.RenderEnvelope(envelope, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "element-score.csv", file.Filename)

	lines := strings.Split(strings.TrimSpace(string(file.Content)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "metricId,value,status,fromCache,timestamp", lines[0])
	assert.Contains(t, lines[1], "element-score,85,fresh,false")
}

func TestExportServiceIncludesDegradationColumns(t *testing.T) {
	svc := NewExportService()
	envelope := models.MetricEnvelope{
		MetricID:   "element-score",
		Value:      85.0,
		Status:     models.StatusDegraded,
		FromCache:  true,
		Warning:    "stale data",
		AgeSeconds: 7200,
		Timestamp:  time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
	}

	file, err := svc.RenderEnvelope(envelope, FormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(file.Content)), "\n")
	assert.Contains(t, lines[0], "warning")
	assert.Contains(t, lines[0], "age")
	assert.Contains(t, lines[1], "stale data")
	assert.Contains(t, lines[1], "7200")
}

func TestExportServiceRendersEnvelopeAsPDF(t *testing.T) {
	svc := NewExportService()
	envelope := models.MetricEnvelope{
		MetricID:  "course-progress",
		Value:     50.0,
		Status:    models.StatusFresh,
		Timestamp: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC),
	}

	file, err := svc.RenderEnvelope(envelope, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.Equal(t, "course-progress.pdf", file.Filename)
	assert.True(t, strings.HasPrefix(string(file.Content), "%PDF"))
}

func TestExportServiceRendersCatalog(t *testing.T) {
	svc := NewExportService()
	infos := []models.ProviderInfo{
		{ID: "element-score", DashboardLevel: "element", RequiredParams: []string{"userId", "elementId"}, OutputType: "scalar"},
	}

	file, err := svc.RenderCatalog(infos, FormatCSV)
	require.NoError(t, err)
	assert.Contains(t, string(file.Content), "element-score")
	assert.Contains(t, string(file.Content), "userId elementId")
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc := NewExportService()
	_, err := svc.RenderEnvelope(models.MetricEnvelope{MetricID: "m"}, "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
