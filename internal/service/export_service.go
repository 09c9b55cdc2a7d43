package service

import (
	"fmt"

	"github.com/classtrack/attendance-api/internal/models"
	"github.com/classtrack/attendance-api/pkg/export"
	appErrors "github.com/classtrack/attendance-api/pkg/errors"
)

// ExportService renders monthly reports into downloadable documents.
type ExportService struct {
	csv *export.CSVExporter
	pdf *export.PDFExporter
}

// NewExportService constructs the export service.
func NewExportService() *ExportService {
	return &ExportService{csv: export.NewCSVExporter(), pdf: export.NewPDFExporter()}
}

// ExportResult carries the rendered document.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// MonthlyReport renders the report in the requested format (csv or pdf).
func (s *ExportService) MonthlyReport(report *models.MonthlyReport, format string) (*ExportResult, error) {
	dataset := monthlyReportDataset(report)
	base := fmt.Sprintf("attendance-report-%04d-%02d", report.Year, report.Month)

	switch format {
	case "csv":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{Content: content, ContentType: "text/csv", Filename: base + ".csv"}, nil
	case "pdf":
		title := fmt.Sprintf("Attendance Report %04d-%02d", report.Year, report.Month)
		content, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{Content: content, ContentType: "application/pdf", Filename: base + ".pdf"}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format, expected csv or pdf")
	}
}

func monthlyReportDataset(report *models.MonthlyReport) export.Dataset {
	rows := make([][]string, len(report.Records))
	for i, record := range report.Records {
		rows[i] = []string{
			record.Student.Name,
			record.Student.Code,
			record.Student.Class,
			record.Student.Section,
			fmt.Sprintf("%d", record.Present),
			fmt.Sprintf("%d", record.Total),
			fmt.Sprintf("%.2f", record.Percent),
		}
	}
	return export.Dataset{
		Headers: []string{"Name", "Student ID", "Class", "Section", "Present", "Total", "Percent"},
		Rows:    rows,
	}
}
