// Package repository covers backoffice-svc's two data needs: the report
// store (generated documents kept for download) and the snapshot reader
// over the shared brokering tables.
package repository

import (
	"context"
	"errors"
	"time"

	"carbroker/services/backoffice-svc/internal/generator"
)

// ErrReportNotFound is returned when a report id is unknown.
var ErrReportNotFound = errors.New("report not found")

// ReportStore keeps generated reports until their retention expires.
type ReportStore interface {
	Save(ctx context.Context, r *StoredReport) error
	Get(ctx context.Context, id string) (*StoredReport, error)
	List(ctx context.Context, companyID string, limit, offset int) ([]*ReportSummary, int64, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SnapshotReader pulls the report rows from the shared brokering schema.
type SnapshotReader interface {
	Bookings(ctx context.Context, from, to time.Time) ([]generator.BookingRow, error)
	Agreements(ctx context.Context) ([]generator.AgreementRow, error)
	SourceHealth(ctx context.Context) ([]generator.SourceHealthRow, error)
	Summary(ctx context.Context, from, to time.Time) (*generator.Summary, error)
}
