package clients

import (
	"context"

	"google.golang.org/grpc"

	auditv1 "carbroker/gen/go/carbroker/audit/v1"
	"carbroker/pkg/config"
)

// AuditClient wraps audit-svc's query surface.
type AuditClient struct {
	conn   *grpc.ClientConn
	client auditv1.AuditServiceClient
}

// NewAuditClient dials audit-svc.
func NewAuditClient(ctx context.Context, endpoint config.ServiceEndpoint) (*AuditClient, error) {
	conn, err := dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return &AuditClient{
		conn:   conn,
		client: auditv1.NewAuditServiceClient(conn),
	}, nil
}

// QueryEvents reads audit entries by filter.
func (c *AuditClient) QueryEvents(ctx context.Context, req *auditv1.QueryEventsRequest) (*auditv1.QueryEventsResponse, error) {
	return c.client.QueryEvents(ctx, req)
}

// GetCompanyActivity reads one company's recent boundary events.
func (c *AuditClient) GetCompanyActivity(ctx context.Context, req *auditv1.GetCompanyActivityRequest) (*auditv1.GetCompanyActivityResponse, error) {
	return c.client.GetCompanyActivity(ctx, req)
}

// GetStats returns aggregate audit statistics.
func (c *AuditClient) GetStats(ctx context.Context, req *auditv1.GetStatsRequest) (*auditv1.GetStatsResponse, error) {
	return c.client.GetStats(ctx, req)
}

// Raw exposes the underlying gRPC client.
func (c *AuditClient) Raw() auditv1.AuditServiceClient {
	return c.client
}
