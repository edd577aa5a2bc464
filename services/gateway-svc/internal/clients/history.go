package clients

import (
	"context"

	"google.golang.org/grpc"

	historyv1 "carbroker/gen/go/carbroker/history/v1"
	"carbroker/pkg/config"
)

// HistoryClient wraps history-svc: archived jobs, echo campaigns, and
// bookings past their retention window.
type HistoryClient struct {
	conn   *grpc.ClientConn
	client historyv1.HistoryServiceClient
}

// NewHistoryClient dials history-svc.
func NewHistoryClient(ctx context.Context, endpoint config.ServiceEndpoint) (*HistoryClient, error) {
	conn, err := dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return &HistoryClient{
		conn:   conn,
		client: historyv1.NewHistoryServiceClient(conn),
	}, nil
}

// ListArchivedJobs lists an agent's archived availability jobs.
func (c *HistoryClient) ListArchivedJobs(ctx context.Context, req *historyv1.ListArchivedJobsRequest) (*historyv1.ListArchivedJobsResponse, error) {
	return c.client.ListArchivedJobs(ctx, req)
}

// ListArchivedBookings lists an agent's archived bookings.
func (c *HistoryClient) ListArchivedBookings(ctx context.Context, req *historyv1.ListArchivedBookingsRequest) (*historyv1.ListArchivedBookingsResponse, error) {
	return c.client.ListArchivedBookings(ctx, req)
}

// GetStatistics returns aggregate archival stats for a company.
func (c *HistoryClient) GetStatistics(ctx context.Context, req *historyv1.GetStatisticsRequest) (*historyv1.GetStatisticsResponse, error) {
	return c.client.GetStatistics(ctx, req)
}

// Raw exposes the underlying gRPC client.
func (c *HistoryClient) Raw() historyv1.HistoryServiceClient {
	return c.client
}
