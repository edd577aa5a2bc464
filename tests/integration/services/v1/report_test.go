package v1_test

import (
	"strings"
	"testing"

	backofficev1 "carbroker/gen/go/carbroker/backoffice/v1"
	"carbroker/tests/integration/testutil"
)

func TestBackoffice_GenerateFormats(t *testing.T) {
	backoffice := SetupBackofficeClient(t)
	ctx, cancel := testutil.Context(t)
	defer cancel()

	for _, format := range []string{"csv", "json", "markdown", "html", "excel", "pdf"} {
		t.Run(format, func(t *testing.T) {
			resp, err := backoffice.GenerateReport(ctx, &backofficev1.GenerateReportRequest{
				CompanyId: "integration-suite",
				Kind:      "summary",
				Format:    format,
			})
			if err != nil {
				t.Fatalf("GenerateReport(%s): %v", format, err)
			}
			if len(resp.Content) == 0 {
				t.Error("empty report")
			}
			if resp.Filename == "" || resp.MimeType == "" {
				t.Errorf("metadata missing: %+v", resp)
			}
		})
	}
}

func TestBackoffice_SaveListDownloadDelete(t *testing.T) {
	backoffice := SetupBackofficeClient(t)
	ctx, cancel := testutil.Context(t)
	defer cancel()

	companyID := testutil.UniqueKey("company")
	gen, err := backoffice.GenerateReport(ctx, &backofficev1.GenerateReportRequest{
		CompanyId: companyID,
		Kind:      "source_health",
		Format:    "csv",
		Title:     "Integration health report",
		Save:      true,
	})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if gen.ReportId == "" {
		t.Fatal("save=true must return a report id")
	}

	list, err := backoffice.ListReports(ctx, &backofficev1.ListReportsRequest{CompanyId: companyID})
	if err != nil || list.TotalCount != 1 {
		t.Fatalf("list = (%+v, %v)", list, err)
	}

	download, err := backoffice.DownloadReport(ctx, &backofficev1.DownloadReportRequest{ReportId: gen.ReportId})
	if err != nil {
		t.Fatalf("DownloadReport: %v", err)
	}
	if string(download.Content) != string(gen.Content) {
		t.Error("downloaded content differs")
	}
	if !strings.HasSuffix(download.Filename, ".csv") {
		t.Errorf("filename = %s", download.Filename)
	}

	if _, err := backoffice.DeleteReport(ctx, &backofficev1.DeleteReportRequest{ReportId: gen.ReportId}); err != nil {
		t.Fatalf("DeleteReport: %v", err)
	}
	if _, err := backoffice.DownloadReport(ctx, &backofficev1.DownloadReportRequest{ReportId: gen.ReportId}); err == nil {
		t.Error("deleted report still downloadable")
	}
}

func TestBackoffice_RejectsUnknownFormat(t *testing.T) {
	backoffice := SetupBackofficeClient(t)
	ctx, cancel := testutil.Context(t)
	defer cancel()

	if _, err := backoffice.GenerateReport(ctx, &backofficev1.GenerateReportRequest{
		Kind:   "summary",
		Format: "docx",
	}); err == nil {
		t.Error("unknown format accepted")
	}
}
