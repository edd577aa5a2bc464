package generator

import (
	"context"
	"fmt"
	"strings"
)

// MarkdownGenerator renders tables suitable for wikis and chat.
type MarkdownGenerator struct {
	BaseGenerator
}

// NewMarkdownGenerator creates the generator.
func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{}
}

func (g *MarkdownGenerator) Format() Format    { return FormatMarkdown }
func (g *MarkdownGenerator) MimeType() string  { return "text/markdown" }
func (g *MarkdownGenerator) Extension() string { return "md" }

func (g *MarkdownGenerator) Generate(_ context.Context, data *ReportData) ([]byte, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", g.GetTitle(data))
	fmt.Fprintf(&b, "*%s — generated %s by %s*\n\n", g.GetCompanyName(data), g.FormatTime(data.GeneratedAt), g.GetAuthor(data))

	switch data.Kind {
	case KindBookings:
		g.writeBookings(&b, data)
	case KindAgreements:
		g.writeAgreements(&b, data)
	case KindSourceHealth:
		g.writeSourceHealth(&b, data)
	case KindSummary:
		if err := g.writeSummary(&b, data); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("markdown generator: unsupported kind %s", data.Kind)
	}

	return []byte(b.String()), nil
}

func mdRow(b *strings.Builder, cells ...string) {
	b.WriteString("| ")
	b.WriteString(strings.Join(cells, " | "))
	b.WriteString(" |\n")
}

func mdSeparator(b *strings.Builder, n int) {
	b.WriteString("|")
	b.WriteString(strings.Repeat("---|", n))
	b.WriteString("\n")
}

func (g *MarkdownGenerator) writeBookings(b *strings.Builder, data *ReportData) {
	mdRow(b, "Booking", "Supplier Ref", "Agent", "Source", "Agreement", "Status", "Created")
	mdSeparator(b, 7)
	n := truncated(len(data.Bookings), maxRows(data))
	for _, row := range data.Bookings[:n] {
		mdRow(b, row.BookingID, row.SourceRef, row.AgentName, row.SourceName, row.AgreementRef, row.Status, g.FormatTime(row.CreatedAt))
	}
	if n < len(data.Bookings) {
		fmt.Fprintf(b, "\n_%d more rows truncated_\n", len(data.Bookings)-n)
	}
}

func (g *MarkdownGenerator) writeAgreements(b *strings.Builder, data *ReportData) {
	mdRow(b, "Ref", "Agent", "Source", "Status", "Valid To", "Coverage")
	mdSeparator(b, 6)
	n := truncated(len(data.Agreements), maxRows(data))
	for _, row := range data.Agreements[:n] {
		mdRow(b, row.AgreementRef, row.AgentName, row.SourceName, row.Status, g.FormatTimePtr(row.ValidTo), fmt.Sprintf("%d", row.CoverageCount))
	}
}

func (g *MarkdownGenerator) writeSourceHealth(b *strings.Builder, data *ReportData) {
	mdRow(b, "Source", "Backoff", "Excluded Until", "Updated")
	mdSeparator(b, 4)
	n := truncated(len(data.SourceHealth), maxRows(data))
	for _, row := range data.SourceHealth[:n] {
		mdRow(b, row.SourceName, fmt.Sprintf("%d", row.BackoffLevel), g.FormatTimePtr(row.ExcludedUntil), g.FormatTime(row.UpdatedAt))
	}
}

func (g *MarkdownGenerator) writeSummary(b *strings.Builder, data *ReportData) error {
	if data.Summary == nil {
		return fmt.Errorf("markdown generator: summary kind without summary data")
	}
	s := data.Summary
	fmt.Fprintf(b, "**Period:** %s — %s\n\n", g.FormatTime(s.PeriodFrom), g.FormatTime(s.PeriodTo))
	mdRow(b, "Metric", "Value")
	mdSeparator(b, 2)
	mdRow(b, "Total bookings", fmt.Sprintf("%d", s.TotalBookings))
	mdRow(b, "Confirmed", fmt.Sprintf("%d", s.ConfirmedCount))
	mdRow(b, "Cancelled", fmt.Sprintf("%d", s.CancelledCount))
	mdRow(b, "Failed", fmt.Sprintf("%d", s.FailedCount))
	mdRow(b, "Active agreements", fmt.Sprintf("%d", s.ActiveAgreements))
	mdRow(b, "Excluded sources", fmt.Sprintf("%d", s.ExcludedSources))
	return nil
}
