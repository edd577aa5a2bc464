package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"

	brokeringv1 "carbroker/gen/go/carbroker/brokering/v1"
	commonv1 "carbroker/gen/go/carbroker/common/v1"
)

// BrokerClient wraps the brokering-svc gRPC surface for callers outside the
// gateway: the sourcesim prober uses it to drive availability and echo
// campaigns end to end.
type BrokerClient struct {
	conn    *grpc.ClientConn
	client  brokeringv1.BrokeringServiceClient
	timeout time.Duration
}

// BrokerClientConfig configures the client connection.
type BrokerClientConfig struct {
	Address    string
	Timeout    time.Duration
	MaxRetries int
	EnableTLS  bool
	CertFile   string
}

// DefaultBrokerClientConfig returns the default connection settings.
func DefaultBrokerClientConfig() *BrokerClientConfig {
	return &BrokerClientConfig{
		Address:    "localhost:50052",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
	}
}

// NewBrokerClient dials brokering-svc.
func NewBrokerClient(ctx context.Context, cfg *BrokerClientConfig) (*BrokerClient, error) {
	if cfg == nil {
		cfg = DefaultBrokerClientConfig()
	}

	conn, err := NewGRPCClient(ctx, ClientConfig{
		Address:      cfg.Address,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("dial brokering-svc: %w", err)
	}

	return &BrokerClient{
		conn:    conn,
		client:  brokeringv1.NewBrokeringServiceClient(conn),
		timeout: cfg.Timeout,
	}, nil
}

// Close closes the connection.
func (c *BrokerClient) Close() error {
	return c.conn.Close()
}

// SubmitAvailability starts one availability fan-out and returns the job id
// and expected source count.
func (c *BrokerClient) SubmitAvailability(ctx context.Context, agentID string, criteria *commonv1.SearchCriteria, agreementRefs []string) (*brokeringv1.SubmitAvailabilityResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.client.SubmitAvailability(ctx, &brokeringv1.SubmitAvailabilityRequest{
		AgentId:       agentID,
		Criteria:      criteria,
		AgreementRefs: agreementRefs,
	})
}

// PollAvailability reads new fan-in results from sinceSeq, waiting up to
// waitMs for fresh appends.
func (c *BrokerClient) PollAvailability(ctx context.Context, requestID string, sinceSeq int64, waitMs int32) (*brokeringv1.PollAvailabilityResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.client.PollAvailability(ctx, &brokeringv1.PollAvailabilityRequest{
		RequestId: requestID,
		SinceSeq:  sinceSeq,
		WaitMs:    waitMs,
	})
}

// DrainAvailability polls until the job completes or ctx expires and
// returns every item in seq order.
func (c *BrokerClient) DrainAvailability(ctx context.Context, requestID string, waitMs int32) ([]*commonv1.ResultItem, error) {
	var items []*commonv1.ResultItem
	var sinceSeq int64

	for {
		resp, err := c.PollAvailability(ctx, requestID, sinceSeq, waitMs)
		if err != nil {
			return items, err
		}
		items = append(items, resp.NewItems...)
		sinceSeq = resp.LastSeq
		if resp.Complete {
			return items, nil
		}
		if err := ctx.Err(); err != nil {
			return items, err
		}
	}
}

// SubmitEcho starts one echo campaign.
func (c *BrokerClient) SubmitEcho(ctx context.Context, agentID, agreementRef, message string, attrs map[string]string) (*brokeringv1.SubmitEchoResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.client.SubmitEcho(ctx, &brokeringv1.SubmitEchoRequest{
		AgentId:      agentID,
		AgreementRef: agreementRef,
		Message:      message,
		Attrs:        attrs,
	})
}

// GetEchoResults reads new echo items from sinceSeq.
func (c *BrokerClient) GetEchoResults(ctx context.Context, requestID string, sinceSeq int64, waitMs int32) (*brokeringv1.GetEchoResultsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.client.GetEchoResults(ctx, &brokeringv1.GetEchoResultsRequest{
		RequestId: requestID,
		SinceSeq:  sinceSeq,
		WaitMs:    waitMs,
	})
}

// PollStats summarizes one drained availability job for probe reporting.
type PollStats struct {
	Items     int32
	Offers    int32
	TimedOut  int32
	Errored   int32
	AvgOffers float64
}

// calculatePollStats aggregates per-item outcomes of a drained job.
func calculatePollStats(items []*commonv1.ResultItem) PollStats {
	var stats PollStats
	var sourcesWithOffers int32

	for _, item := range items {
		stats.Items++
		switch {
		case item.ErrorCode != "":
			stats.Errored++
		case item.TimedOut:
			stats.TimedOut++
		default:
			stats.Offers += int32(len(item.Offers))
			if len(item.Offers) > 0 {
				sourcesWithOffers++
			}
		}
	}
	if sourcesWithOffers > 0 {
		stats.AvgOffers = float64(stats.Offers) / float64(sourcesWithOffers)
	}
	return stats
}

// Stats drains a job and returns its aggregate outcome.
func (c *BrokerClient) Stats(ctx context.Context, requestID string, waitMs int32) (PollStats, error) {
	items, err := c.DrainAvailability(ctx, requestID, waitMs)
	if err != nil {
		return PollStats{}, err
	}
	return calculatePollStats(items), nil
}
