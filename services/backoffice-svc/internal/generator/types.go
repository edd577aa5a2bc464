// Package generator renders Booking, Agreement, and SourceHealth snapshots
// into office formats for reconciliation: CSV, JSON, Markdown, HTML, Excel,
// and PDF share one row model and one Generator interface.
package generator

import "time"

// Kind selects what a report covers.
type Kind string

const (
	KindBookings     Kind = "bookings"
	KindAgreements   Kind = "agreements"
	KindSourceHealth Kind = "source_health"
	KindSummary      Kind = "summary"
)

// Format selects the output encoding.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatExcel    Format = "excel"
	FormatPDF      Format = "pdf"
)

// Options carries presentation settings.
type Options struct {
	Title       string
	Author      string
	CompanyName string
	Currency    string
	Theme       string // light, dark, corporate
	MaxRows     int
}

// BookingRow is one booking line.
type BookingRow struct {
	BookingID    string
	SourceRef    string
	AgentName    string
	SourceName   string
	AgreementRef string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AgreementRow is one agreement line with its effective coverage size.
type AgreementRow struct {
	AgreementID   string
	AgreementRef  string
	AgentName     string
	SourceName    string
	Status        string
	ValidFrom     *time.Time
	ValidTo       *time.Time
	CoverageCount int
}

// SourceHealthRow is one source's health line.
type SourceHealthRow struct {
	SourceID      string
	SourceName    string
	BackoffLevel  int
	ExcludedUntil *time.Time
	UpdatedAt     time.Time
}

// Summary aggregates the period for the cover sheet.
type Summary struct {
	PeriodFrom       time.Time
	PeriodTo         time.Time
	TotalBookings    int
	ConfirmedCount   int
	CancelledCount   int
	FailedCount      int
	ActiveAgreements int
	ExcludedSources  int
}

// ReportData is the input every generator renders.
type ReportData struct {
	Kind        Kind
	Options     *Options
	GeneratedAt time.Time

	Bookings     []BookingRow
	Agreements   []AgreementRow
	SourceHealth []SourceHealthRow
	Summary      *Summary
}

// Rows reports how many data lines the report carries.
func (d *ReportData) Rows() int {
	switch d.Kind {
	case KindBookings:
		return len(d.Bookings)
	case KindAgreements:
		return len(d.Agreements)
	case KindSourceHealth:
		return len(d.SourceHealth)
	default:
		return len(d.Bookings) + len(d.Agreements) + len(d.SourceHealth)
	}
}

// truncated applies Options.MaxRows to a slice length.
func truncated(n, maxRows int) int {
	if maxRows > 0 && n > maxRows {
		return maxRows
	}
	return n
}
