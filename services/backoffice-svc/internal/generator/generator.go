package generator

import (
	"context"
	"fmt"
	"time"
)

// Generator renders one ReportData into one format.
type Generator interface {
	Generate(ctx context.Context, data *ReportData) ([]byte, error)
	Format() Format
	MimeType() string
	Extension() string
}

// BaseGenerator holds the shared presentation helpers.
type BaseGenerator struct{}

// GetTitle returns the configured or kind-derived title.
func (b *BaseGenerator) GetTitle(data *ReportData) string {
	if data.Options != nil && data.Options.Title != "" {
		return data.Options.Title
	}
	switch data.Kind {
	case KindBookings:
		return "Booking Roster"
	case KindAgreements:
		return "Agreement Snapshot"
	case KindSourceHealth:
		return "Source Health Overview"
	case KindSummary:
		return "Brokering Summary"
	default:
		return "Brokering Report"
	}
}

// GetAuthor returns the configured or default author.
func (b *BaseGenerator) GetAuthor(data *ReportData) string {
	if data.Options != nil && data.Options.Author != "" {
		return data.Options.Author
	}
	return "Brokering Backoffice"
}

// GetCompanyName returns the configured company name.
func (b *BaseGenerator) GetCompanyName(data *ReportData) string {
	if data.Options != nil && data.Options.CompanyName != "" {
		return data.Options.CompanyName
	}
	return "Car Rental Brokering"
}

// FormatTime renders timestamps uniformly across formats.
func (b *BaseGenerator) FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// FormatTimePtr renders nullable timestamps.
func (b *BaseGenerator) FormatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return b.FormatTime(*t)
}

// New returns the generator for a format.
func New(format Format) (Generator, error) {
	switch format {
	case FormatCSV:
		return NewCSVGenerator(), nil
	case FormatJSON:
		return NewJSONGenerator(), nil
	case FormatMarkdown:
		return NewMarkdownGenerator(), nil
	case FormatHTML:
		return NewHTMLGenerator(), nil
	case FormatExcel:
		return NewExcelGenerator(), nil
	case FormatPDF:
		return NewPDFGenerator(nil), nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// Formats lists every supported format.
func Formats() []Format {
	return []Format{FormatCSV, FormatJSON, FormatMarkdown, FormatHTML, FormatExcel, FormatPDF}
}

// Filename builds the download name for a report.
func Filename(data *ReportData, g Generator) string {
	stamp := data.GeneratedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	return fmt.Sprintf("%s-%s.%s", data.Kind, stamp.UTC().Format("20060102-150405"), g.Extension())
}
