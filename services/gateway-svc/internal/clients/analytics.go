package clients

import (
	"context"

	"google.golang.org/grpc"

	analyticsv1 "carbroker/gen/go/carbroker/analytics/v1"
	"carbroker/pkg/config"
)

// AnalyticsClient wraps analytics-svc: source bottlenecks, coverage gaps,
// booking funnel.
type AnalyticsClient struct {
	conn   *grpc.ClientConn
	client analyticsv1.AnalyticsServiceClient
}

// NewAnalyticsClient dials analytics-svc.
func NewAnalyticsClient(ctx context.Context, endpoint config.ServiceEndpoint) (*AnalyticsClient, error) {
	conn, err := dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return &AnalyticsClient{
		conn:   conn,
		client: analyticsv1.NewAnalyticsServiceClient(conn),
	}, nil
}

// GetSourceBottlenecks returns sources degrading fan-out latency.
func (c *AnalyticsClient) GetSourceBottlenecks(ctx context.Context, req *analyticsv1.GetSourceBottlenecksRequest) (*analyticsv1.GetSourceBottlenecksResponse, error) {
	return c.client.GetSourceBottlenecks(ctx, req)
}

// GetCoverageGaps returns routes requested but never eligible.
func (c *AnalyticsClient) GetCoverageGaps(ctx context.Context, req *analyticsv1.GetCoverageGapsRequest) (*analyticsv1.GetCoverageGapsResponse, error) {
	return c.client.GetCoverageGaps(ctx, req)
}

// GetBookingFunnel returns request-to-confirmation conversion stats.
func (c *AnalyticsClient) GetBookingFunnel(ctx context.Context, req *analyticsv1.GetBookingFunnelRequest) (*analyticsv1.GetBookingFunnelResponse, error) {
	return c.client.GetBookingFunnel(ctx, req)
}

// Raw exposes the underlying gRPC client.
func (c *AnalyticsClient) Raw() analyticsv1.AnalyticsServiceClient {
	return c.client
}
