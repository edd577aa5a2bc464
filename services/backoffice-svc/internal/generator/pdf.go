package generator

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	marotocfg "github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/border"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"

	"carbroker/pkg/config"
)

// PDFGenerator renders the voucher-style document finance circulates.
type PDFGenerator struct {
	BaseGenerator
	pdfConfig *config.PDFConfig
}

// NewPDFGenerator creates the generator; cfg nil means defaults.
func NewPDFGenerator(cfg *config.PDFConfig) *PDFGenerator {
	return &PDFGenerator{pdfConfig: cfg}
}

func (g *PDFGenerator) Format() Format    { return FormatPDF }
func (g *PDFGenerator) MimeType() string  { return "application/pdf" }
func (g *PDFGenerator) Extension() string { return "pdf" }

// Styles
var (
	headerColor    = &props.Color{Red: 44, Green: 62, Blue: 80}    // #2c3e50
	accentColor    = &props.Color{Red: 52, Green: 152, Blue: 219}  // #3498db
	mutedColor     = &props.Color{Red: 127, Green: 140, Blue: 141} // #7f8c8d
	lightGrayColor = &props.Color{Red: 236, Green: 240, Blue: 241} // #ecf0f1

	titleStyle = props.Text{
		Size:  20,
		Style: fontstyle.Bold,
		Align: align.Center,
		Color: headerColor,
	}

	metaStyle = props.Text{
		Size:  9,
		Align: align.Center,
		Color: mutedColor,
	}

	tableHeaderCell = &props.Cell{
		BackgroundColor: accentColor,
	}

	tableHeaderText = props.Text{
		Size:  9,
		Style: fontstyle.Bold,
		Color: &props.Color{Red: 255, Green: 255, Blue: 255},
		Align: align.Center,
	}

	tableCell = &props.Cell{
		BorderType:  border.Bottom,
		BorderColor: lightGrayColor,
	}

	tableText = props.Text{
		Size:  8,
		Align: align.Center,
	}
)

func (g *PDFGenerator) Generate(_ context.Context, data *ReportData) ([]byte, error) {
	builder := marotocfg.NewBuilder().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15)
	if g.pdfConfig == nil || g.pdfConfig.EnablePageNumbers {
		builder = builder.WithPageNumber()
	}

	m := maroto.New(builder.Build())

	g.addHeader(m, data)

	headers, rows, err := g.tabulate(data)
	if err != nil {
		return nil, err
	}
	g.addTable(m, headers, rows)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("pdf generator: %w", err)
	}
	return doc.GetBytes(), nil
}

func (g *PDFGenerator) addHeader(m core.Maroto, data *ReportData) {
	m.AddRow(12, col.New(12).Add(text.New(g.GetTitle(data), titleStyle)))
	m.AddRow(6, col.New(12).Add(text.New(
		fmt.Sprintf("%s — generated %s by %s", g.GetCompanyName(data), g.FormatTime(data.GeneratedAt), g.GetAuthor(data)),
		metaStyle,
	)))
	m.AddRow(4, col.New(12).Add(line.New()))
	m.AddRow(4)
}

func (g *PDFGenerator) addTable(m core.Maroto, headers []string, rows [][]string) {
	width := 12 / len(headers)

	headerCols := make([]core.Col, 0, len(headers))
	for _, h := range headers {
		headerCols = append(headerCols, col.New(width).Add(text.New(h, tableHeaderText)).WithStyle(tableHeaderCell))
	}
	m.AddRow(8, headerCols...)

	for _, row := range rows {
		cells := make([]core.Col, 0, len(row))
		for _, value := range row {
			cells = append(cells, col.New(width).Add(text.New(value, tableText)).WithStyle(tableCell))
		}
		m.AddRow(6, cells...)
	}
}

// tabulate flattens the report into printable string rows.
func (g *PDFGenerator) tabulate(data *ReportData) ([]string, [][]string, error) {
	switch data.Kind {
	case KindBookings:
		headers := []string{"Booking", "Agent", "Source", "Agreement", "Status", "Created"}
		n := truncated(len(data.Bookings), maxRows(data))
		rows := make([][]string, 0, n)
		for _, b := range data.Bookings[:n] {
			rows = append(rows, []string{b.BookingID, b.AgentName, b.SourceName, b.AgreementRef, b.Status, g.FormatTime(b.CreatedAt)})
		}
		return headers, rows, nil

	case KindAgreements:
		headers := []string{"Ref", "Agent", "Source", "Status", "Valid To", "Coverage"}
		n := truncated(len(data.Agreements), maxRows(data))
		rows := make([][]string, 0, n)
		for _, a := range data.Agreements[:n] {
			rows = append(rows, []string{a.AgreementRef, a.AgentName, a.SourceName, a.Status, g.FormatTimePtr(a.ValidTo), fmt.Sprintf("%d", a.CoverageCount)})
		}
		return headers, rows, nil

	case KindSourceHealth:
		headers := []string{"Source", "Backoff", "Excluded Until", "Updated"}
		n := truncated(len(data.SourceHealth), maxRows(data))
		rows := make([][]string, 0, n)
		for _, h := range data.SourceHealth[:n] {
			rows = append(rows, []string{h.SourceName, fmt.Sprintf("%d", h.BackoffLevel), g.FormatTimePtr(h.ExcludedUntil), g.FormatTime(h.UpdatedAt)})
		}
		return headers, rows, nil

	case KindSummary:
		if data.Summary == nil {
			return nil, nil, fmt.Errorf("pdf generator: summary kind without summary data")
		}
		s := data.Summary
		headers := []string{"Metric", "Value"}
		rows := [][]string{
			{"Period", g.FormatTime(s.PeriodFrom) + " — " + g.FormatTime(s.PeriodTo)},
			{"Total bookings", fmt.Sprintf("%d", s.TotalBookings)},
			{"Confirmed", fmt.Sprintf("%d", s.ConfirmedCount)},
			{"Cancelled", fmt.Sprintf("%d", s.CancelledCount)},
			{"Failed", fmt.Sprintf("%d", s.FailedCount)},
			{"Active agreements", fmt.Sprintf("%d", s.ActiveAgreements)},
			{"Excluded sources", fmt.Sprintf("%d", s.ExcludedSources)},
		}
		return headers, rows, nil

	default:
		return nil, nil, fmt.Errorf("pdf generator: unsupported kind %s", data.Kind)
	}
}
