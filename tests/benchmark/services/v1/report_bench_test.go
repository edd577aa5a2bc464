package services_benchmark

import (
	"context"
	"fmt"
	"testing"

	backofficev1 "carbroker/gen/go/carbroker/backoffice/v1"
	backofficesvc "carbroker/services/backoffice-svc"
)

func benchmarkReportFormat(b *testing.B, format string, rows int) {
	server := backofficesvc.NewBenchmarkServer(rows)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := server.GenerateReport(ctx, &backofficev1.GenerateReportRequest{
			CompanyId: "benchmark",
			Kind:      "bookings",
			Format:    format,
		}); err != nil {
			b.Fatalf("GenerateReport(%s): %v", format, err)
		}
	}
}

func BenchmarkGenerateCSV(b *testing.B) {
	for _, rows := range []int{100, 1000, 10000} {
		b.Run(fmt.Sprintf("rows_%d", rows), func(b *testing.B) {
			benchmarkReportFormat(b, "csv", rows)
		})
	}
}

func BenchmarkGenerateJSON(b *testing.B) {
	for _, rows := range []int{100, 1000} {
		b.Run(fmt.Sprintf("rows_%d", rows), func(b *testing.B) {
			benchmarkReportFormat(b, "json", rows)
		})
	}
}

func BenchmarkGenerateMarkdown(b *testing.B) {
	benchmarkReportFormat(b, "markdown", 1000)
}

func BenchmarkGenerateHTML(b *testing.B) {
	benchmarkReportFormat(b, "html", 1000)
}

func BenchmarkGenerateExcel(b *testing.B) {
	benchmarkReportFormat(b, "excel", 500)
}

func BenchmarkGenerateSummaryPDF(b *testing.B) {
	server := backofficesvc.NewBenchmarkServer(200)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := server.GenerateReport(ctx, &backofficev1.GenerateReportRequest{
			CompanyId: "benchmark",
			Kind:      "summary",
			Format:    "pdf",
		}); err != nil {
			b.Fatalf("GenerateReport(pdf): %v", err)
		}
	}
}
