package generator

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
)

// CSVGenerator renders one table per report kind; the summary kind renders
// the aggregate block as key/value rows.
type CSVGenerator struct {
	BaseGenerator
}

// NewCSVGenerator creates the generator.
func NewCSVGenerator() *CSVGenerator {
	return &CSVGenerator{}
}

func (g *CSVGenerator) Format() Format    { return FormatCSV }
func (g *CSVGenerator) MimeType() string  { return "text/csv" }
func (g *CSVGenerator) Extension() string { return "csv" }

func (g *CSVGenerator) Generate(_ context.Context, data *ReportData) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	var err error
	switch data.Kind {
	case KindBookings:
		err = g.writeBookings(w, data)
	case KindAgreements:
		err = g.writeAgreements(w, data)
	case KindSourceHealth:
		err = g.writeSourceHealth(w, data)
	case KindSummary:
		err = g.writeSummary(w, data)
	default:
		return nil, fmt.Errorf("csv generator: unsupported kind %s", data.Kind)
	}
	if err != nil {
		return nil, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv generator: %w", err)
	}
	return buf.Bytes(), nil
}

func maxRows(data *ReportData) int {
	if data.Options != nil {
		return data.Options.MaxRows
	}
	return 0
}

func (g *CSVGenerator) writeBookings(w *csv.Writer, data *ReportData) error {
	if err := w.Write([]string{"booking_id", "supplier_ref", "agent", "source", "agreement_ref", "status", "created_at", "updated_at"}); err != nil {
		return err
	}
	n := truncated(len(data.Bookings), maxRows(data))
	for _, b := range data.Bookings[:n] {
		if err := w.Write([]string{
			b.BookingID, b.SourceRef, b.AgentName, b.SourceName, b.AgreementRef, b.Status,
			g.FormatTime(b.CreatedAt), g.FormatTime(b.UpdatedAt),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (g *CSVGenerator) writeAgreements(w *csv.Writer, data *ReportData) error {
	if err := w.Write([]string{"agreement_id", "agreement_ref", "agent", "source", "status", "valid_from", "valid_to", "coverage_count"}); err != nil {
		return err
	}
	n := truncated(len(data.Agreements), maxRows(data))
	for _, a := range data.Agreements[:n] {
		if err := w.Write([]string{
			a.AgreementID, a.AgreementRef, a.AgentName, a.SourceName, a.Status,
			g.FormatTimePtr(a.ValidFrom), g.FormatTimePtr(a.ValidTo), strconv.Itoa(a.CoverageCount),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (g *CSVGenerator) writeSourceHealth(w *csv.Writer, data *ReportData) error {
	if err := w.Write([]string{"source_id", "source", "backoff_level", "excluded_until", "updated_at"}); err != nil {
		return err
	}
	n := truncated(len(data.SourceHealth), maxRows(data))
	for _, h := range data.SourceHealth[:n] {
		if err := w.Write([]string{
			h.SourceID, h.SourceName, strconv.Itoa(h.BackoffLevel),
			g.FormatTimePtr(h.ExcludedUntil), g.FormatTime(h.UpdatedAt),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (g *CSVGenerator) writeSummary(w *csv.Writer, data *ReportData) error {
	if data.Summary == nil {
		return fmt.Errorf("csv generator: summary kind without summary data")
	}
	s := data.Summary
	rows := [][]string{
		{"metric", "value"},
		{"period_from", g.FormatTime(s.PeriodFrom)},
		{"period_to", g.FormatTime(s.PeriodTo)},
		{"total_bookings", strconv.Itoa(s.TotalBookings)},
		{"confirmed", strconv.Itoa(s.ConfirmedCount)},
		{"cancelled", strconv.Itoa(s.CancelledCount)},
		{"failed", strconv.Itoa(s.FailedCount)},
		{"active_agreements", strconv.Itoa(s.ActiveAgreements)},
		{"excluded_sources", strconv.Itoa(s.ExcludedSources)},
	}
	return w.WriteAll(rows)
}
