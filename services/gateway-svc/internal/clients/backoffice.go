package clients

import (
	"context"

	"google.golang.org/grpc"

	backofficev1 "carbroker/gen/go/carbroker/backoffice/v1"
	"carbroker/pkg/config"
)

// BackofficeClient wraps backoffice-svc's export surface: Booking,
// Agreement, and SourceHealth snapshots in office formats.
type BackofficeClient struct {
	conn   *grpc.ClientConn
	client backofficev1.BackofficeServiceClient
}

// NewBackofficeClient dials backoffice-svc.
func NewBackofficeClient(ctx context.Context, endpoint config.ServiceEndpoint) (*BackofficeClient, error) {
	conn, err := dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return &BackofficeClient{
		conn:   conn,
		client: backofficev1.NewBackofficeServiceClient(conn),
	}, nil
}

// GenerateReport builds an export in the requested format.
func (c *BackofficeClient) GenerateReport(ctx context.Context, req *backofficev1.GenerateReportRequest) (*backofficev1.GenerateReportResponse, error) {
	return c.client.GenerateReport(ctx, req)
}

// GetReport fetches a stored report's metadata.
func (c *BackofficeClient) GetReport(ctx context.Context, reportID string) (*backofficev1.GetReportResponse, error) {
	return c.client.GetReport(ctx, &backofficev1.GetReportRequest{ReportId: reportID})
}

// DownloadReport fetches a stored report's bytes.
func (c *BackofficeClient) DownloadReport(ctx context.Context, reportID string) (*backofficev1.DownloadReportResponse, error) {
	return c.client.DownloadReport(ctx, &backofficev1.DownloadReportRequest{ReportId: reportID})
}

// ListReports lists stored reports for a company.
func (c *BackofficeClient) ListReports(ctx context.Context, req *backofficev1.ListReportsRequest) (*backofficev1.ListReportsResponse, error) {
	return c.client.ListReports(ctx, req)
}

// DeleteReport removes a stored report.
func (c *BackofficeClient) DeleteReport(ctx context.Context, reportID string) error {
	_, err := c.client.DeleteReport(ctx, &backofficev1.DeleteReportRequest{ReportId: reportID})
	return err
}

// Raw exposes the underlying gRPC client.
func (c *BackofficeClient) Raw() backofficev1.BackofficeServiceClient {
	return c.client
}
