// Package backofficesvc wires the report service for hosts outside
// cmd/main.go, e.g. the benchmark suite.
package backofficesvc

import (
	"context"
	"fmt"
	"time"

	backofficev1 "carbroker/gen/go/carbroker/backoffice/v1"
	"carbroker/pkg/config"
	"carbroker/services/backoffice-svc/internal/generator"
	"carbroker/services/backoffice-svc/internal/repository"
	"carbroker/services/backoffice-svc/internal/service"
)

// NewBenchmarkServer builds the service over synthetic snapshots so
// benchmarks exercise the generators without Postgres.
func NewBenchmarkServer(rows int) backofficev1.BackofficeServiceServer {
	cfg := &config.BackofficeConfig{
		DefaultCompanyName: "Benchmark Broker",
		RetentionPeriod:    time.Hour,
	}
	return service.NewReportService(discardStore{}, &fixtureSnapshots{rows: rows}, cfg)
}

// discardStore drops stored reports; benchmarks measure generation only.
type discardStore struct{}

func (discardStore) Save(context.Context, *repository.StoredReport) error { return nil }
func (discardStore) Get(context.Context, string) (*repository.StoredReport, error) {
	return nil, repository.ErrReportNotFound
}
func (discardStore) List(context.Context, string, int, int) ([]*repository.ReportSummary, int64, error) {
	return nil, 0, nil
}
func (discardStore) Delete(context.Context, string) error { return repository.ErrReportNotFound }
func (discardStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

// fixtureSnapshots serves deterministic rows sized by `rows`.
type fixtureSnapshots struct {
	rows int
}

func (f *fixtureSnapshots) Bookings(_ context.Context, _, _ time.Time) ([]generator.BookingRow, error) {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	statuses := []string{"REQUESTED", "CONFIRMED", "CANCELLED", "FAILED"}
	out := make([]generator.BookingRow, f.rows)
	for i := range out {
		out[i] = generator.BookingRow{
			BookingID:    fmt.Sprintf("bk-%06d", i),
			SourceRef:    fmt.Sprintf("SBR-%06d", i),
			AgentName:    "Benchmark Agent",
			SourceName:   fmt.Sprintf("Source %d", i%20),
			AgreementRef: fmt.Sprintf("AGR-%03d", i%50),
			Status:       statuses[i%len(statuses)],
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:    base.Add(time.Duration(i+30) * time.Minute),
		}
	}
	return out, nil
}

func (f *fixtureSnapshots) Agreements(context.Context) ([]generator.AgreementRow, error) {
	out := make([]generator.AgreementRow, f.rows/10+1)
	for i := range out {
		out[i] = generator.AgreementRow{
			AgreementID:   fmt.Sprintf("agr-%d", i),
			AgreementRef:  fmt.Sprintf("AGR-%03d", i),
			AgentName:     "Benchmark Agent",
			SourceName:    fmt.Sprintf("Source %d", i),
			Status:        "ACTIVE",
			CoverageCount: 10 + i,
		}
	}
	return out, nil
}

func (f *fixtureSnapshots) SourceHealth(context.Context) ([]generator.SourceHealthRow, error) {
	out := make([]generator.SourceHealthRow, f.rows/20+1)
	for i := range out {
		out[i] = generator.SourceHealthRow{
			SourceID:     fmt.Sprintf("src-%d", i),
			SourceName:   fmt.Sprintf("Source %d", i),
			BackoffLevel: i % 4,
			UpdatedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		}
	}
	return out, nil
}

func (f *fixtureSnapshots) Summary(_ context.Context, from, to time.Time) (*generator.Summary, error) {
	return &generator.Summary{
		PeriodFrom:       from,
		PeriodTo:         to,
		TotalBookings:    f.rows,
		ConfirmedCount:   f.rows / 2,
		CancelledCount:   f.rows / 10,
		FailedCount:      f.rows / 10,
		ActiveAgreements: f.rows / 10,
		ExcludedSources:  2,
	}, nil
}
