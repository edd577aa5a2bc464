package generator

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExcelGenerator renders one worksheet per report kind, with a styled
// header row and frozen pane for long rosters.
type ExcelGenerator struct {
	BaseGenerator
}

// NewExcelGenerator creates the generator.
func NewExcelGenerator() *ExcelGenerator {
	return &ExcelGenerator{}
}

func (g *ExcelGenerator) Format() Format    { return FormatExcel }
func (g *ExcelGenerator) MimeType() string  { return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" }
func (g *ExcelGenerator) Extension() string { return "xlsx" }

func (g *ExcelGenerator) Generate(_ context.Context, data *ReportData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := string(data.Kind)
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, fmt.Errorf("excel generator: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("excel generator: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2C3E50"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("excel generator: %w", err)
	}

	headers, rows, err := g.tabulate(data)
	if err != nil {
		return nil, err
	}

	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, fmt.Errorf("excel generator: %w", err)
		}
	}
	endHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(sheet, "A1", endHeader, headerStyle); err != nil {
		return nil, fmt.Errorf("excel generator: %w", err)
	}

	for i, row := range rows {
		for col, value := range row {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("excel generator: %w", err)
			}
		}
	}

	// Freeze the header row for long rosters
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("excel generator: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("excel generator: %w", err)
	}
	return buf.Bytes(), nil
}

// tabulate flattens the report into a header plus string rows.
func (g *ExcelGenerator) tabulate(data *ReportData) ([]string, [][]any, error) {
	switch data.Kind {
	case KindBookings:
		headers := []string{"Booking", "Supplier Ref", "Agent", "Source", "Agreement", "Status", "Created", "Updated"}
		n := truncated(len(data.Bookings), maxRows(data))
		rows := make([][]any, 0, n)
		for _, b := range data.Bookings[:n] {
			rows = append(rows, []any{b.BookingID, b.SourceRef, b.AgentName, b.SourceName, b.AgreementRef, b.Status, g.FormatTime(b.CreatedAt), g.FormatTime(b.UpdatedAt)})
		}
		return headers, rows, nil

	case KindAgreements:
		headers := []string{"Ref", "Agent", "Source", "Status", "Valid From", "Valid To", "Coverage"}
		n := truncated(len(data.Agreements), maxRows(data))
		rows := make([][]any, 0, n)
		for _, a := range data.Agreements[:n] {
			rows = append(rows, []any{a.AgreementRef, a.AgentName, a.SourceName, a.Status, g.FormatTimePtr(a.ValidFrom), g.FormatTimePtr(a.ValidTo), a.CoverageCount})
		}
		return headers, rows, nil

	case KindSourceHealth:
		headers := []string{"Source", "Backoff Level", "Excluded Until", "Updated"}
		n := truncated(len(data.SourceHealth), maxRows(data))
		rows := make([][]any, 0, n)
		for _, h := range data.SourceHealth[:n] {
			rows = append(rows, []any{h.SourceName, h.BackoffLevel, g.FormatTimePtr(h.ExcludedUntil), g.FormatTime(h.UpdatedAt)})
		}
		return headers, rows, nil

	case KindSummary:
		if data.Summary == nil {
			return nil, nil, fmt.Errorf("excel generator: summary kind without summary data")
		}
		s := data.Summary
		headers := []string{"Metric", "Value"}
		rows := [][]any{
			{"Period from", g.FormatTime(s.PeriodFrom)},
			{"Period to", g.FormatTime(s.PeriodTo)},
			{"Total bookings", s.TotalBookings},
			{"Confirmed", s.ConfirmedCount},
			{"Cancelled", s.CancelledCount},
			{"Failed", s.FailedCount},
			{"Active agreements", s.ActiveAgreements},
			{"Excluded sources", s.ExcludedSources},
		}
		return headers, rows, nil

	default:
		return nil, nil, fmt.Errorf("excel generator: unsupported kind %s", data.Kind)
	}
}
