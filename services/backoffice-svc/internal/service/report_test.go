package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	backofficev1 "carbroker/gen/go/carbroker/backoffice/v1"
	"carbroker/pkg/config"
	"carbroker/services/backoffice-svc/internal/generator"
	"carbroker/services/backoffice-svc/internal/repository"
)

// memoryStore backs service tests.
type memoryStore struct {
	mu      sync.Mutex
	reports map[string]*repository.StoredReport
}

func newMemoryStore() *memoryStore {
	return &memoryStore{reports: make(map[string]*repository.StoredReport)}
}

func (m *memoryStore) Save(_ context.Context, r *repository.StoredReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.ID] = r
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*repository.StoredReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, repository.ErrReportNotFound
	}
	return r, nil
}

func (m *memoryStore) List(_ context.Context, companyID string, _, _ int) ([]*repository.ReportSummary, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.ReportSummary
	for _, r := range m.reports {
		if r.CompanyID != companyID {
			continue
		}
		out = append(out, &repository.ReportSummary{ID: r.ID, CompanyID: r.CompanyID, Kind: r.Kind, Format: r.Format, Filename: r.Filename, SizeBytes: r.SizeBytes})
	}
	return out, int64(len(out)), nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[id]; !ok {
		return repository.ErrReportNotFound
	}
	delete(m.reports, id)
	return nil
}

func (m *memoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, r := range m.reports {
		if now.After(r.ExpiresAt) {
			delete(m.reports, id)
			deleted++
		}
	}
	return deleted, nil
}

// fixtureSnapshots serves canned rows.
type fixtureSnapshots struct{}

func (fixtureSnapshots) Bookings(context.Context, time.Time, time.Time) ([]generator.BookingRow, error) {
	return []generator.BookingRow{
		{BookingID: "bk-1", AgentName: "Agent One", SourceName: "Source One", AgreementRef: "AGR-001", Status: "CONFIRMED", CreatedAt: time.Now(), UpdatedAt: time.Now()},
	}, nil
}

func (fixtureSnapshots) Agreements(context.Context) ([]generator.AgreementRow, error) {
	return []generator.AgreementRow{{AgreementID: "agr-1", AgreementRef: "AGR-001", Status: "ACTIVE"}}, nil
}

func (fixtureSnapshots) SourceHealth(context.Context) ([]generator.SourceHealthRow, error) {
	return []generator.SourceHealthRow{{SourceID: "src-1", SourceName: "Source One", UpdatedAt: time.Now()}}, nil
}

func (fixtureSnapshots) Summary(_ context.Context, from, to time.Time) (*generator.Summary, error) {
	return &generator.Summary{PeriodFrom: from, PeriodTo: to, TotalBookings: 1, ConfirmedCount: 1}, nil
}

func newTestService() (*ReportService, *memoryStore) {
	store := newMemoryStore()
	cfg := &config.BackofficeConfig{RetentionPeriod: 24 * time.Hour, DefaultCompanyName: "Acme Broker"}
	return NewReportService(store, fixtureSnapshots{}, cfg), store
}

func TestGenerateReport(t *testing.T) {
	s, _ := newTestService()

	resp, err := s.GenerateReport(context.Background(), &backofficev1.GenerateReportRequest{
		CompanyId: "agent-1",
		Kind:      "bookings",
		Format:    "csv",
	})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if len(resp.Content) == 0 || resp.SizeBytes != int64(len(resp.Content)) {
		t.Errorf("resp = %+v", resp)
	}
	if !strings.HasSuffix(resp.Filename, ".csv") || resp.MimeType != "text/csv" {
		t.Errorf("filename/mime = %s/%s", resp.Filename, resp.MimeType)
	}
	if resp.ReportId != "" {
		t.Error("report must not be stored without save=true")
	}
	if !strings.Contains(string(resp.Content), "bk-1") {
		t.Error("snapshot rows missing from output")
	}
}

func TestGenerateReport_SaveAndDownload(t *testing.T) {
	s, store := newTestService()
	ctx := context.Background()

	resp, err := s.GenerateReport(ctx, &backofficev1.GenerateReportRequest{
		CompanyId: "agent-1",
		Kind:      "summary",
		Format:    "json",
		Title:     "Monthly summary",
		Save:      true,
	})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if resp.ReportId == "" {
		t.Fatal("save=true must return a report id")
	}
	if _, ok := store.reports[resp.ReportId]; !ok {
		t.Fatal("report not stored")
	}

	download, err := s.DownloadReport(ctx, &backofficev1.DownloadReportRequest{ReportId: resp.ReportId})
	if err != nil {
		t.Fatalf("DownloadReport: %v", err)
	}
	if string(download.Content) != string(resp.Content) {
		t.Error("downloaded bytes differ from generated bytes")
	}

	list, err := s.ListReports(ctx, &backofficev1.ListReportsRequest{CompanyId: "agent-1"})
	if err != nil || list.TotalCount != 1 {
		t.Errorf("list = (%+v, %v)", list, err)
	}

	if _, err := s.DeleteReport(ctx, &backofficev1.DeleteReportRequest{ReportId: resp.ReportId}); err != nil {
		t.Fatalf("DeleteReport: %v", err)
	}
	if _, err := s.DownloadReport(ctx, &backofficev1.DownloadReportRequest{ReportId: resp.ReportId}); err == nil {
		t.Error("deleted report still downloadable")
	}
}

func TestGenerateReport_BadInputs(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	if _, err := s.GenerateReport(ctx, &backofficev1.GenerateReportRequest{Kind: "bookings", Format: "docx"}); err == nil {
		t.Error("unknown format must be rejected")
	}
	if _, err := s.GenerateReport(ctx, &backofficev1.GenerateReportRequest{Kind: "invoices", Format: "csv"}); err == nil {
		t.Error("unknown kind must be rejected")
	}
}

func TestGenerateReport_SizeLimit(t *testing.T) {
	store := newMemoryStore()
	cfg := &config.BackofficeConfig{MaxReportSizeBytes: 1}
	s := NewReportService(store, fixtureSnapshots{}, cfg)

	if _, err := s.GenerateReport(context.Background(), &backofficev1.GenerateReportRequest{Kind: "bookings", Format: "csv"}); err == nil {
		t.Error("oversized report must be rejected")
	}
}

func TestRunCleanup(t *testing.T) {
	s, store := newTestService()
	ctx := context.Background()

	expired := &repository.StoredReport{ID: "old", CompanyID: "agent-1", ExpiresAt: time.Now().Add(-time.Hour)}
	live := &repository.StoredReport{ID: "new", CompanyID: "agent-1", ExpiresAt: time.Now().Add(time.Hour)}
	_ = store.Save(ctx, expired)
	_ = store.Save(ctx, live)

	s.RunCleanup(ctx)

	if _, ok := store.reports["old"]; ok {
		t.Error("expired report survived cleanup")
	}
	if _, ok := store.reports["new"]; !ok {
		t.Error("live report deleted by cleanup")
	}
}
