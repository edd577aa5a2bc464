package generator

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

// HTMLGenerator renders a standalone page with a small theme-aware style
// block, for mailing and in-browser review.
type HTMLGenerator struct {
	BaseGenerator
}

// NewHTMLGenerator creates the generator.
func NewHTMLGenerator() *HTMLGenerator {
	return &HTMLGenerator{}
}

func (g *HTMLGenerator) Format() Format    { return FormatHTML }
func (g *HTMLGenerator) MimeType() string  { return "text/html" }
func (g *HTMLGenerator) Extension() string { return "html" }

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; margin: 2rem; background: {{.Background}}; color: {{.Foreground}}; }
h1 { font-size: 1.4rem; }
.meta { color: #888; margin-bottom: 1.5rem; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; font-size: 0.9rem; }
th { background: {{.HeaderBackground}}; }
.truncated { color: #888; font-style: italic; margin-top: 0.5rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">{{.Company}} &mdash; generated {{.GeneratedAt}} by {{.Author}}</div>
<table>
<tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
{{if .Truncated}}<div class="truncated">{{.Truncated}} more rows truncated</div>{{end}}
</body>
</html>
`))

type htmlView struct {
	Title            string
	Company          string
	Author           string
	GeneratedAt      string
	Background       template.CSS
	Foreground       template.CSS
	HeaderBackground template.CSS
	Headers          []string
	Rows             [][]string
	Truncated        int
}

func (g *HTMLGenerator) Generate(_ context.Context, data *ReportData) ([]byte, error) {
	view := htmlView{
		Title:            g.GetTitle(data),
		Company:          g.GetCompanyName(data),
		Author:           g.GetAuthor(data),
		GeneratedAt:      g.FormatTime(data.GeneratedAt),
		Background:       "#ffffff",
		Foreground:       "#1a1a1a",
		HeaderBackground: "#f0f0f0",
	}
	if data.Options != nil && data.Options.Theme == "dark" {
		view.Background = "#1e1e1e"
		view.Foreground = "#e8e8e8"
		view.HeaderBackground = "#333333"
	}

	switch data.Kind {
	case KindBookings:
		view.Headers = []string{"Booking", "Supplier Ref", "Agent", "Source", "Agreement", "Status", "Created"}
		n := truncated(len(data.Bookings), maxRows(data))
		for _, b := range data.Bookings[:n] {
			view.Rows = append(view.Rows, []string{b.BookingID, b.SourceRef, b.AgentName, b.SourceName, b.AgreementRef, b.Status, g.FormatTime(b.CreatedAt)})
		}
		view.Truncated = len(data.Bookings) - n
	case KindAgreements:
		view.Headers = []string{"Ref", "Agent", "Source", "Status", "Valid To", "Coverage"}
		n := truncated(len(data.Agreements), maxRows(data))
		for _, a := range data.Agreements[:n] {
			view.Rows = append(view.Rows, []string{a.AgreementRef, a.AgentName, a.SourceName, a.Status, g.FormatTimePtr(a.ValidTo), fmt.Sprintf("%d", a.CoverageCount)})
		}
		view.Truncated = len(data.Agreements) - n
	case KindSourceHealth:
		view.Headers = []string{"Source", "Backoff", "Excluded Until", "Updated"}
		n := truncated(len(data.SourceHealth), maxRows(data))
		for _, h := range data.SourceHealth[:n] {
			view.Rows = append(view.Rows, []string{h.SourceName, fmt.Sprintf("%d", h.BackoffLevel), g.FormatTimePtr(h.ExcludedUntil), g.FormatTime(h.UpdatedAt)})
		}
		view.Truncated = len(data.SourceHealth) - n
	case KindSummary:
		if data.Summary == nil {
			return nil, fmt.Errorf("html generator: summary kind without summary data")
		}
		s := data.Summary
		view.Headers = []string{"Metric", "Value"}
		view.Rows = [][]string{
			{"Period", g.FormatTime(s.PeriodFrom) + " — " + g.FormatTime(s.PeriodTo)},
			{"Total bookings", fmt.Sprintf("%d", s.TotalBookings)},
			{"Confirmed", fmt.Sprintf("%d", s.ConfirmedCount)},
			{"Cancelled", fmt.Sprintf("%d", s.CancelledCount)},
			{"Failed", fmt.Sprintf("%d", s.FailedCount)},
			{"Active agreements", fmt.Sprintf("%d", s.ActiveAgreements)},
			{"Excluded sources", fmt.Sprintf("%d", s.ExcludedSources)},
		}
	default:
		return nil, fmt.Errorf("html generator: unsupported kind %s", data.Kind)
	}

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("html generator: %w", err)
	}
	return buf.Bytes(), nil
}
