package clients

import (
	"context"

	"google.golang.org/grpc"

	brokeringv1 "carbroker/gen/go/carbroker/brokering/v1"
	commonv1 "carbroker/gen/go/carbroker/common/v1"
	"carbroker/pkg/config"
)

// BrokeringClient wraps brokering-svc: availability fan-out, booking
// commands, agreements, coverage, and echo probes.
type BrokeringClient struct {
	conn   *grpc.ClientConn
	client brokeringv1.BrokeringServiceClient
}

// NewBrokeringClient dials brokering-svc.
func NewBrokeringClient(ctx context.Context, endpoint config.ServiceEndpoint) (*BrokeringClient, error) {
	conn, err := dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return &BrokeringClient{
		conn:   conn,
		client: brokeringv1.NewBrokeringServiceClient(conn),
	}, nil
}

// ==================== Availability ====================

// SubmitAvailability starts a fan-out for the agent.
func (c *BrokeringClient) SubmitAvailability(ctx context.Context, req *brokeringv1.SubmitAvailabilityRequest) (*brokeringv1.SubmitAvailabilityResponse, error) {
	return c.client.SubmitAvailability(ctx, req)
}

// PollAvailability reads new fan-in results.
func (c *BrokeringClient) PollAvailability(ctx context.Context, requestID string, sinceSeq int64, waitMs int32) (*brokeringv1.PollAvailabilityResponse, error) {
	return c.client.PollAvailability(ctx, &brokeringv1.PollAvailabilityRequest{
		RequestId: requestID,
		SinceSeq:  sinceSeq,
		WaitMs:    waitMs,
	})
}

// ==================== Booking ====================

// CreateBooking runs the idempotent create path.
func (c *BrokeringClient) CreateBooking(ctx context.Context, req *brokeringv1.CreateBookingRequest) (*brokeringv1.BookingResponse, error) {
	return c.client.CreateBooking(ctx, req)
}

// ModifyBooking forwards free-form fields to the source.
func (c *BrokeringClient) ModifyBooking(ctx context.Context, req *brokeringv1.ModifyBookingRequest) (*brokeringv1.BookingResponse, error) {
	return c.client.ModifyBooking(ctx, req)
}

// CancelBooking cancels with the source.
func (c *BrokeringClient) CancelBooking(ctx context.Context, req *brokeringv1.BookingRefRequest) (*brokeringv1.BookingResponse, error) {
	return c.client.CancelBooking(ctx, req)
}

// CheckBooking refreshes status from the source.
func (c *BrokeringClient) CheckBooking(ctx context.Context, req *brokeringv1.BookingRefRequest) (*brokeringv1.BookingResponse, error) {
	return c.client.CheckBooking(ctx, req)
}

// ==================== Agreements ====================

// CreateDraftAgreement creates a DRAFT agreement.
func (c *BrokeringClient) CreateDraftAgreement(ctx context.Context, req *brokeringv1.CreateDraftAgreementRequest) (*commonv1.Agreement, error) {
	return c.client.CreateDraftAgreement(ctx, req)
}

// OfferAgreement moves DRAFT -> OFFERED.
func (c *BrokeringClient) OfferAgreement(ctx context.Context, id string) (*commonv1.Agreement, error) {
	return c.client.OfferAgreement(ctx, &brokeringv1.AgreementIdRequest{Id: id})
}

// AcceptAgreement moves OFFERED -> ACCEPTED.
func (c *BrokeringClient) AcceptAgreement(ctx context.Context, id string) (*commonv1.Agreement, error) {
	return c.client.AcceptAgreement(ctx, &brokeringv1.AgreementIdRequest{Id: id})
}

// SetAgreementStatus applies a state-machine transition.
func (c *BrokeringClient) SetAgreementStatus(ctx context.Context, id, status string) (*commonv1.Agreement, error) {
	return c.client.SetAgreementStatus(ctx, &brokeringv1.SetAgreementStatusRequest{Id: id, Status: status})
}

// GetAgreement returns one agreement.
func (c *BrokeringClient) GetAgreement(ctx context.Context, id string) (*commonv1.Agreement, error) {
	return c.client.GetAgreement(ctx, &brokeringv1.AgreementIdRequest{Id: id})
}

// ListAgreementsByAgent lists an agent's agreements.
func (c *BrokeringClient) ListAgreementsByAgent(ctx context.Context, companyID, status string) (*brokeringv1.ListAgreementsResponse, error) {
	return c.client.ListAgreementsByAgent(ctx, &brokeringv1.ListAgreementsRequest{CompanyId: companyID, Status: status})
}

// ListAgreementsBySource lists a source's agreements.
func (c *BrokeringClient) ListAgreementsBySource(ctx context.Context, companyID, status string) (*brokeringv1.ListAgreementsResponse, error) {
	return c.client.ListAgreementsBySource(ctx, &brokeringv1.ListAgreementsRequest{CompanyId: companyID, Status: status})
}

// ==================== Coverage ====================

// SyncSourceCoverage refreshes a source's base coverage.
func (c *BrokeringClient) SyncSourceCoverage(ctx context.Context, sourceID string) (*brokeringv1.SyncSourceCoverageResponse, error) {
	return c.client.SyncSourceCoverage(ctx, &brokeringv1.SyncSourceCoverageRequest{SourceId: sourceID})
}

// ListCoverageByAgreement returns the effective set.
func (c *BrokeringClient) ListCoverageByAgreement(ctx context.Context, agreementID string) (*brokeringv1.ListCoverageResponse, error) {
	return c.client.ListCoverageByAgreement(ctx, &brokeringv1.ListCoverageRequest{AgreementId: agreementID})
}

// UpsertAgreementOverride sets an allow/deny row.
func (c *BrokeringClient) UpsertAgreementOverride(ctx context.Context, agreementID, unlocode string, allowed bool) error {
	_, err := c.client.UpsertAgreementOverride(ctx, &brokeringv1.AgreementOverrideRequest{
		AgreementId: agreementID,
		Unlocode:    unlocode,
		Allowed:     allowed,
	})
	return err
}

// RemoveAgreementOverride deletes an override row.
func (c *BrokeringClient) RemoveAgreementOverride(ctx context.Context, agreementID, unlocode string) error {
	_, err := c.client.RemoveAgreementOverride(ctx, &brokeringv1.AgreementOverrideRequest{
		AgreementId: agreementID,
		Unlocode:    unlocode,
	})
	return err
}

// ==================== Echo ====================

// SubmitEcho starts an echo campaign.
func (c *BrokeringClient) SubmitEcho(ctx context.Context, req *brokeringv1.SubmitEchoRequest) (*brokeringv1.SubmitEchoResponse, error) {
	return c.client.SubmitEcho(ctx, req)
}

// GetEchoResults reads echo items.
func (c *BrokeringClient) GetEchoResults(ctx context.Context, requestID string, sinceSeq int64, waitMs int32) (*brokeringv1.GetEchoResultsResponse, error) {
	return c.client.GetEchoResults(ctx, &brokeringv1.GetEchoResultsRequest{
		RequestId: requestID,
		SinceSeq:  sinceSeq,
		WaitMs:    waitMs,
	})
}

// WatchEchoResults opens the server stream.
func (c *BrokeringClient) WatchEchoResults(ctx context.Context, requestID string, sinceSeq int64) (grpc.ServerStreamingClient[brokeringv1.GetEchoResultsResponse], error) {
	return c.client.WatchEchoResults(ctx, &brokeringv1.GetEchoResultsRequest{
		RequestId: requestID,
		SinceSeq:  sinceSeq,
	})
}

// Raw exposes the underlying gRPC client.
func (c *BrokeringClient) Raw() brokeringv1.BrokeringServiceClient {
	return c.client
}
