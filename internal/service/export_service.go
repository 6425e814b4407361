package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/lrs-metrics-api/internal/models"
	appErrors "github.com/noah-isme/lrs-metrics-api/pkg/errors"
	"github.com/noah-isme/lrs-metrics-api/pkg/export"
)

// Export formats accepted by the export endpoints.
const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

// ExportFile is a rendered document ready for download.
type ExportFile struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders metric results and the catalog into downloadable
// documents.
type ExportService struct {
	csv *export.CSVExporter
	pdf *export.PDFExporter
}

// NewExportService constructs the export service.
func NewExportService() *ExportService {
	return &ExportService{csv: export.NewCSVExporter(), pdf: export.NewPDFExporter()}
}

// RenderEnvelope renders one served metric result.
func (s *ExportService) RenderEnvelope(envelope models.MetricEnvelope, format string) (ExportFile, error) {
	headers := []string{"metricId", "value", "status", "fromCache", "timestamp"}
	row := map[string]string{
		"metricId":  envelope.MetricID,
		"value":     formatCell(envelope.Value),
		"status":    envelope.Status,
		"fromCache": strconv.FormatBool(envelope.FromCache),
		"timestamp": envelope.Timestamp.Format(time.RFC3339),
	}
	if envelope.Warning != "" {
		headers = append(headers, "warning")
		row["warning"] = envelope.Warning
	}
	if envelope.AgeSeconds > 0 {
		headers = append(headers, "age")
		row["age"] = strconv.FormatInt(envelope.AgeSeconds, 10)
	}

	dataset := export.Dataset{Headers: headers, Rows: []map[string]string{row}}
	return s.render(dataset, envelope.MetricID, format)
}

// RenderCatalog renders the metric catalog.
func (s *ExportService) RenderCatalog(infos []models.ProviderInfo, format string) (ExportFile, error) {
	dataset := export.Dataset{
		Headers: []string{"id", "dashboardLevel", "requiredParams", "optionalParams", "outputType"},
	}
	for _, info := range infos {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":             info.ID,
			"dashboardLevel": info.DashboardLevel,
			"requiredParams": strings.Join(info.RequiredParams, " "),
			"optionalParams": strings.Join(info.OptionalParams, " "),
			"outputType":     info.OutputType,
		})
	}
	return s.render(dataset, "metric-catalog", format)
}

func (s *ExportService) render(dataset export.Dataset, name, format string) (ExportFile, error) {
	switch format {
	case FormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return ExportFile{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render csv export")
		}
		return ExportFile{Content: content, ContentType: "text/csv", Filename: name + ".csv"}, nil
	case FormatPDF:
		content, err := s.pdf.Render(dataset, name)
		if err != nil {
			return ExportFile{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render pdf export")
		}
		return ExportFile{Content: content, ContentType: "application/pdf", Filename: name + ".pdf"}, nil
	default:
		return ExportFile{}, appErrors.Clone(appErrors.ErrValidation, "unsupported export format: "+format)
	}
}

func formatCell(value interface{}) string {
	switch t := value.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return fmt.Sprint(t)
	}
}
